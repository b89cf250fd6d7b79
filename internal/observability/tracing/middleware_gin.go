package tracing

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billbook/internal/observability/logger"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// MiddlewareConfig mirrors the request logger: ErrorClassifier turns the
// last handler error into an error type and code for the span.
type MiddlewareConfig struct {
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware opens one server span per request, named after the matched
// route, and tags it with the organization the request ran under.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	tracer := otel.Tracer("billbook/http")
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		startAttrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		}
		if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
			startAttrs = append(startAttrs, attribute.String("request_id", requestID))
		}
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(SafeAttributes(startAttrs...)...),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []attribute.KeyValue{
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		}
		// OrgContext runs after this middleware and replaces the request context.
		if orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context()); ok {
			attrs = append(attrs, attribute.String("org_id", orgID.String()))
		}

		lastErr := c.Errors.Last()
		if lastErr != nil && cfg.ErrorClassifier != nil {
			errType, errCode := cfg.ErrorClassifier(lastErr.Err)
			attrs = append(attrs,
				attribute.String("error.type", errType),
				attribute.String("error.code", errCode),
			)
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status >= http.StatusInternalServerError {
			if lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
