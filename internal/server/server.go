package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/customer"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	"github.com/smallbiznis/billbook/internal/inventory"
	"github.com/smallbiznis/billbook/internal/invoice"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/invoice/render"
	"github.com/smallbiznis/billbook/internal/observability"
	obslogger "github.com/smallbiznis/billbook/internal/observability/logger"
	obstracing "github.com/smallbiznis/billbook/internal/observability/tracing"
	"github.com/smallbiznis/billbook/internal/product"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	customer.Module,
	product.Module,
	inventory.Module,
	invoice.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log, obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obstracing.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	billing     *config.BillingConfigHolder
	customerSvc customerdomain.Service
	productSvc  productdomain.Service
	invoiceSvc  invoicedomain.Service
	renderer    *render.HTMLRenderer
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Billing     *config.BillingConfigHolder
	CustomerSvc customerdomain.Service
	ProductSvc  productdomain.Service
	InvoiceSvc  invoicedomain.Service
	Renderer    *render.HTMLRenderer
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		billing:     p.Billing,
		customerSvc: p.CustomerSvc,
		productSvc:  p.ProductSvc,
		invoiceSvc:  p.InvoiceSvc,
		renderer:    p.Renderer,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", OrgContext())

	// -------- Customers --------
	api.GET("/customers", s.ListCustomers)
	api.POST("/customers", s.CreateCustomer)
	api.GET("/customers/:id", s.GetCustomerByID)

	// -------- Products --------
	api.GET("/products", s.ListProducts)
	api.POST("/products", s.CreateProduct)
	api.GET("/products/:id", s.GetProductByID)
	api.PATCH("/products/:id", s.UpdateProduct)
	api.POST("/products/:id/restock", s.RestockProduct)

	// -------- Invoices --------
	api.POST("/invoices/stock-check", s.CheckInvoiceStock)
	api.POST("/invoices/preview", s.PreviewInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.GET("/invoices/:id/render", s.RenderInvoice)
	api.PATCH("/invoices/:id", s.UpdateInvoice)
	api.POST("/invoices/:id/status", s.UpdateInvoiceStatus)
	api.DELETE("/invoices/:id", s.DeleteInvoice)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
