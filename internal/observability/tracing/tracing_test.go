package tracing

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSafeAttributesDropsUnknownKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/v1/invoices"),
		attribute.String("customer.name", "Jane"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorTrimsWrappedDetail(t *testing.T) {
	err := fmt.Errorf("unavailable: %w", errors.New("dial tcp 10.0.0.1:5432"))
	assert.EqualError(t, SafeError(err), "unavailable")
	assert.Nil(t, SafeError(nil))
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestGinMiddlewareRecordsServerSpan(t *testing.T) {
	recorder := recordSpans(t)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/api/invoices/:id", func(c *gin.Context) {
		_ = c.Error(errors.New("db down"))
		c.Status(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/invoices/1", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /api/invoices/:id", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	attrs := spanAttrs(spans[0])
	assert.Equal(t, int64(500), attrs["http.status_code"].AsInt64())
	_, hasOrg := attrs["org_id"]
	assert.False(t, hasOrg)
}

func TestGinMiddlewareTagsOrganizationAndErrorClass(t *testing.T) {
	recorder := recordSpans(t)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "stock_violation", "insufficient_stock" },
	}))
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(orgcontext.WithOrgID(c.Request.Context(), 42))
		c.Next()
	})
	r.POST("/api/invoices", func(c *gin.Context) {
		_ = c.Error(errors.New("stock_violation"))
		c.Status(http.StatusConflict)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/invoices", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP POST /api/invoices", spans[0].Name())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code, "client errors do not fail the span")
	attrs := spanAttrs(spans[0])
	assert.Equal(t, "42", attrs["org_id"].AsString())
	assert.Equal(t, "stock_violation", attrs["error.type"].AsString())
	assert.Equal(t, "insufficient_stock", attrs["error.code"].AsString())
}

func TestGinMiddlewareNamesUnmatchedRoutes(t *testing.T) {
	recorder := recordSpans(t)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET unmatched", spans[0].Name())
}
