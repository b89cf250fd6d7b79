package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	customerrepo "github.com/smallbiznis/billbook/internal/customer/repository"
	customerservice "github.com/smallbiznis/billbook/internal/customer/service"
	inventoryservice "github.com/smallbiznis/billbook/internal/inventory/service"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/invoice/numbering"
	"github.com/smallbiznis/billbook/internal/invoice/render"
	invoicerepo "github.com/smallbiznis/billbook/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/billbook/internal/invoice/service"
	"github.com/smallbiznis/billbook/internal/migration"
	"github.com/smallbiznis/billbook/internal/observability"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	productrepo "github.com/smallbiznis/billbook/internal/product/repository"
	productservice "github.com/smallbiznis/billbook/internal/product/service"
	taxservice "github.com/smallbiznis/billbook/internal/tax/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const testOrgHeader = "100"

var testDay = time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)

func setupTestServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	fake := clock.NewFakeClock(testDay)
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())
	products := productrepo.Provide()
	invoices := invoicerepo.Provide(db)

	engine := NewEngine(observability.Config{Environment: "test"}, log)
	NewServer(ServerParams{
		Gin:      engine,
		Billing:  billing,
		Renderer: render.NewRenderer(),
		CustomerSvc: customerservice.New(customerservice.Params{
			DB: db, Log: log, GenID: node, Clock: fake, Repo: customerrepo.Provide(),
		}),
		ProductSvc: productservice.New(productservice.Params{
			DB: db, Log: log, GenID: node, Clock: fake, Billing: billing, Repo: products,
		}),
		InvoiceSvc: invoiceservice.New(invoiceservice.Params{
			DB:        db,
			Log:       log,
			GenID:     node,
			Clock:     fake,
			Billing:   billing,
			Repo:      invoices,
			Products:  products,
			Inventory: inventoryservice.New(inventoryservice.Params{DB: db, Log: log, Repo: products}),
			Tax:       taxservice.New(),
			Numbering: numbering.NewAssigner(numbering.NewMemoryIndex(time.Minute), numbering.RepositoryLoader(db, invoices), "", log, nil),
		}),
	})

	return engine, db
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderOrg, testOrgHeader)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error errorPayload    `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createCustomerAndProduct(t *testing.T, engine *gin.Engine, stock int64) (string, string) {
	t.Helper()

	rec := doJSON(t, engine, http.MethodPost, "/api/customers", map[string]any{"name": "Acme Traders"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var customer struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &customer))

	rec = doJSON(t, engine, http.MethodPost, "/api/products", map[string]any{
		"name":           "USB Keyboard",
		"hsn_code":       "8471",
		"price":          "100",
		"tax_rate":       "18",
		"stock_quantity": stock,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var product struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &product))

	return customer.ID, product.ID
}

func productStock(t *testing.T, db *gorm.DB, id string) int64 {
	t.Helper()
	var stock int64
	require.NoError(t, db.Raw("SELECT stock_quantity FROM products WHERE id = ?", id).Scan(&stock).Error)
	return stock
}

func TestHealth(t *testing.T) {
	engine, _ := setupTestServer(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresOrgHeader(t *testing.T) {
	engine, _ := setupTestServer(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "validation_error", out.Error.Type)
	require.Len(t, out.Error.Errors, 1)
	assert.Equal(t, "organization", out.Error.Errors[0].Field)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	engine, _ := setupTestServer(t)

	rec := doJSON(t, engine, http.MethodGet, "/api/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateInvoiceLifecycle(t *testing.T) {
	engine, db := setupTestServer(t)
	customerID, productID := createCustomerAndProduct(t, engine, 5)

	rec := doJSON(t, engine, http.MethodPost, "/api/invoices", map[string]any{
		"customer_id": customerID,
		"items":       []map[string]any{{"product_id": productID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var view struct {
		ID     string          `json:"id"`
		Number string          `json:"number"`
		Status string          `json:"status"`
		Total  decimal.Decimal `json:"total"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &view))
	assert.Equal(t, "05032024001", view.Number)
	assert.Equal(t, "draft", view.Status)
	assert.True(t, view.Total.Equal(decimal.NewFromInt(236)), view.Total.String())
	assert.EqualValues(t, 3, productStock(t, db, productID))

	rec = doJSON(t, engine, http.MethodGet, "/api/invoices/"+view.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodGet, "/api/invoices/"+view.ID+"/render", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "05032024001")

	rec = doJSON(t, engine, http.MethodPost, "/api/invoices/"+view.ID+"/status", map[string]any{"status": "paid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodDelete, "/api/invoices/"+view.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.EqualValues(t, 5, productStock(t, db, productID))

	rec = doJSON(t, engine, http.MethodGet, "/api/invoices/"+view.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateInvoiceStockViolation(t *testing.T) {
	engine, db := setupTestServer(t)
	customerID, productID := createCustomerAndProduct(t, engine, 3)

	rec := doJSON(t, engine, http.MethodPost, "/api/invoices", map[string]any{
		"customer_id": customerID,
		"items":       []map[string]any{{"product_id": productID, "quantity": 5}},
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Equal(t, "stock_violation", out.Error.Type)
	require.Len(t, out.Error.Items, 1)
	assert.EqualValues(t, 5, out.Error.Items[0].Requested)
	assert.EqualValues(t, 3, out.Error.Items[0].Available)
	assert.EqualValues(t, 2, out.Error.Items[0].Shortfall)
	assert.EqualValues(t, 3, productStock(t, db, productID))
}

func TestCreateInvoiceValidationListsEveryField(t *testing.T) {
	engine, _ := setupTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/invoices", map[string]any{
		"items": []map[string]any{},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Equal(t, "validation_error", out.Error.Type)
	fields := make([]string, 0, len(out.Error.Errors))
	for _, v := range out.Error.Errors {
		fields = append(fields, v.Field)
	}
	assert.Contains(t, fields, "customer_id")
	assert.Contains(t, fields, "items")
}

func TestMalformedBodyIsInvalidRequest(t *testing.T) {
	engine, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", strings.NewReader("{not json"))
	req.Header.Set(HeaderOrg, testOrgHeader)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	require.Len(t, out.Error.Errors, 1)
	assert.Equal(t, "invalid_request", out.Error.Errors[0].Code)
}

func TestStockCheckAndPreview(t *testing.T) {
	engine, db := setupTestServer(t)
	_, productID := createCustomerAndProduct(t, engine, 4)

	rec := doJSON(t, engine, http.MethodPost, "/api/invoices/stock-check", map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 6}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var check struct {
		Blocked bool `json:"blocked"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &check))
	assert.True(t, check.Blocked)

	rec = doJSON(t, engine, http.MethodPost, "/api/invoices/preview", map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 1}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview struct {
		Subtotal decimal.Decimal `json:"subtotal"`
		TotalTax decimal.Decimal `json:"total_tax"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &preview))
	assert.True(t, preview.Subtotal.Equal(decimal.NewFromInt(100)))
	assert.True(t, preview.TotalTax.Equal(decimal.NewFromInt(18)))

	assert.EqualValues(t, 4, productStock(t, db, productID))
}

func TestRestockProduct(t *testing.T) {
	engine, db := setupTestServer(t)
	_, productID := createCustomerAndProduct(t, engine, 1)

	rec := doJSON(t, engine, http.MethodPost, "/api/products/"+productID+"/restock", map[string]any{"quantity": 9})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 10, productStock(t, db, productID))
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invoice not found", fmt.Errorf("get: %w", invoicedomain.ErrInvoiceNotFound), http.StatusNotFound, "not_found"},
		{"product not found", productdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"numbering conflict", fmt.Errorf("%w: duplicate", invoicedomain.ErrNumberingConflict), http.StatusConflict, "conflict"},
		{"duplicate product code", productdomain.ErrDuplicateCode, http.StatusConflict, "conflict"},
		{"reconciliation", &invoicedomain.ReconciliationError{Operation: "delete", Err: errors.New("gone")}, http.StatusConflict, "reconciliation_failure"},
		{"unavailable", fmt.Errorf("%w: timeout", invoicedomain.ErrUnavailable), http.StatusServiceUnavailable, "service_unavailable"},
		{"customer name", customerdomain.ErrInvalidName, http.StatusBadRequest, "validation_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.kind, payload.Type)
		})
	}
}

func TestClassifyErrorForLogUsesFirstViolation(t *testing.T) {
	kind, code := classifyErrorForLog(&invoicedomain.ValidationError{Violations: []invoicedomain.FieldViolation{
		{Field: "items", Code: "min", Message: "must have at least 1 entry"},
	}})
	assert.Equal(t, "validation_error", kind)
	assert.Equal(t, "min", code)
}

func TestInternalErrorsAreLoggedWithOrganization(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.ErrorLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)

	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.GET("/api/boom", OrgContext(), func(c *gin.Context) {
		AbortWithError(c, errors.New("disk full"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/boom", nil)
	req.Header.Set(HeaderOrg, "7")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "internal_error", out.Error.Type)
	assert.NotContains(t, rec.Body.String(), "disk full")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "request failed", entry.Message)
	assert.Equal(t, "7", entry.ContextMap()["org_id"])
	assert.Equal(t, "disk full", entry.ContextMap()["error"])
}
