package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	obslogger "github.com/smallbiznis/billbook/internal/observability/logger"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ValidationError = invoicedomain.FieldViolation

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string                         `json:"type"`
	Message string                         `json:"message"`
	Errors  []ValidationError              `json:"errors,omitempty"`
	Items   []invoicedomain.StockShortfall `json:"items,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status >= http.StatusInternalServerError {
			// The response hides the cause; keep it in the log.
			obslogger.FromContext(c.Request.Context()).Error("request failed",
				zap.String("error_type", payload.Type),
				zap.Error(lastErr.Err),
			)
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var invoiceErr *invoicedomain.ValidationError
	if errors.As(err, &invoiceErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  invoiceErr.Violations,
		}
	}

	var stockErr *invoicedomain.StockViolationError
	if errors.As(err, &stockErr) {
		return http.StatusConflict, errorPayload{
			Type:    "stock_violation",
			Message: "insufficient stock",
			Items:   stockErr.Items,
		}
	}

	if code, ok := sentinelValidationCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, invoicedomain.ErrNumberingConflict),
		errors.Is(err, productdomain.ErrDuplicateCode):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, invoicedomain.ErrReconciliationFailure):
		return http.StatusConflict, errorPayload{
			Type:    "reconciliation_failure",
			Message: "stock could not be reconciled",
		}
	case errors.Is(err, invoicedomain.ErrUnavailable), db.IsUnavailableErr(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger. It reuses mapError so the
// logged type always matches the response body.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,
	invoicedomain.ErrInvalidOrganization,
	invoicedomain.ErrInvalidInvoiceID,
	customerdomain.ErrInvalidOrganization,
	customerdomain.ErrInvalidName,
	customerdomain.ErrInvalidEmail,
	customerdomain.ErrInvalidID,
	productdomain.ErrInvalidOrganization,
	productdomain.ErrInvalidCode,
	productdomain.ErrInvalidName,
	productdomain.ErrInvalidPrice,
	productdomain.ErrInvalidTaxRate,
	productdomain.ErrInvalidStock,
	productdomain.ErrInvalidThreshold,
	productdomain.ErrInvalidQuantity,
	productdomain.ErrInvalidID,
}

func sentinelValidationCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_invoice_id", "invalid_id":
		return "id"
	case "invalid_page_token":
		return "page_token"
	case "invalid_stock_quantity":
		return "stock_quantity"
	case "invalid_low_stock_threshold":
		return "low_stock_threshold"
	}
	if field, ok := strings.CutPrefix(code, "invalid_"); ok {
		return field
	}
	return ""
}
