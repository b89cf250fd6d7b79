package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	inventoryservice "github.com/smallbiznis/billbook/internal/inventory/service"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/invoice/numbering"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	invoicerepo "github.com/smallbiznis/billbook/internal/invoice/repository"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	productrepo "github.com/smallbiznis/billbook/internal/product/repository"
	taxservice "github.com/smallbiznis/billbook/internal/tax/service"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testOrg      = int64(100)
	testCustomer = snowflake.ID(500)
)

var testDay = time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	db    *gorm.DB
	clock *clock.FakeClock
	ctx   context.Context
}

// setupInvoiceService builds the service on an in-memory database. wrap, when
// given, decorates the product store the service and reconciler share.
func setupInvoiceService(t *testing.T, wrap ...func(productdomain.Repository) productdomain.Repository) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Exec("PRAGMA busy_timeout = 5000").Error)

	models := append([]any{&productdomain.Product{}, &customerdomain.Customer{}}, invoicedomain.Models()...)
	require.NoError(t, db.AutoMigrate(models...))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(testDay)
	log := zap.NewNop()
	repo := invoicerepo.Provide(db)
	products := productrepo.Provide()
	for _, w := range wrap {
		products = w(products)
	}
	m := metrics.NewNoop()

	svc := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Billing:   config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Repo:      repo,
		Products:  products,
		Inventory: inventoryservice.New(inventoryservice.Params{DB: db, Log: log, Repo: products}),
		Tax:       taxservice.New(),
		Numbering: numbering.NewAssigner(numbering.NewMemoryIndex(time.Minute), numbering.RepositoryLoader(db, repo), "", log, m),
		Metrics:   m,
	}).(*Service)

	require.NoError(t, db.Create(&customerdomain.Customer{
		ID:        testCustomer,
		OrgID:     snowflake.ID(testOrg),
		Name:      "Acme Traders",
		CreatedAt: testDay,
		UpdatedAt: testDay,
	}).Error)

	return &fixture{
		svc:   svc,
		db:    db,
		clock: fake,
		ctx:   orgcontext.WithOrgID(context.Background(), testOrg),
	}
}

func (f *fixture) seedProduct(t *testing.T, id snowflake.ID, stock int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&productdomain.Product{
		ID:                id,
		OrgID:             snowflake.ID(testOrg),
		Code:              fmt.Sprintf("p-%d", id),
		Name:              fmt.Sprintf("Product %d", id),
		HSNCode:           "8471",
		Price:             decimal.NewFromInt(100),
		TaxRate:           decimal.NewFromInt(18),
		StockQuantity:     stock,
		LowStockThreshold: 2,
		Active:            true,
		CreatedAt:         testDay,
		UpdatedAt:         testDay,
	}).Error)
}

func (f *fixture) stock(t *testing.T, id snowflake.ID) int64 {
	t.Helper()
	var stock int64
	require.NoError(t, f.db.Raw("SELECT stock_quantity FROM products WHERE id = ?", id).Scan(&stock).Error)
	return stock
}

func (f *fixture) invoiceCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	return count
}

func line(productID snowflake.ID, qty int64) invoicedomain.LineItemInput {
	return invoicedomain.LineItemInput{ProductID: productID.String(), Quantity: qty}
}

func createReq(lines ...invoicedomain.LineItemInput) invoicedomain.CreateInvoiceRequest {
	return invoicedomain.CreateInvoiceRequest{CustomerID: testCustomer.String(), Items: lines}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func orgWithID(id int64) context.Context {
	return orgcontext.WithOrgID(context.Background(), id)
}

var (
	spanRecorderOnce sync.Once
	spanRecorder     *tracetest.SpanRecorder
)

// recordSpans installs one recording provider for the package. The service
// tracer binds to the first global provider it sees, so it is never swapped.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	spanRecorderOnce.Do(func() {
		spanRecorder = tracetest.NewSpanRecorder()
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder)))
	})
	return spanRecorder
}

