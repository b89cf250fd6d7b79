package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidInvoiceID    = errors.New("invalid_invoice_id")

	ErrValidation            = errors.New("validation_failed")
	ErrStockViolation        = errors.New("stock_violation")
	ErrReconciliationFailure = errors.New("reconciliation_failure")
	ErrNumberingConflict     = errors.New("numbering_conflict")
	// ErrUnavailable marks infrastructure failures. It is the only class a
	// caller may retry.
	ErrUnavailable = errors.New("unavailable")

	ErrNotFound         = errors.New("not_found")
	ErrInvoiceNotFound  = fmt.Errorf("invoice_%w", ErrNotFound)
	ErrCustomerNotFound = fmt.Errorf("customer_%w", ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("product_%w", ErrNotFound)
	// ErrNumberNotFound means the ordering index has no entry for an invoice
	// even after a reload.
	ErrNumberNotFound = fmt.Errorf("invoice_number_%w", ErrNotFound)
)

type FieldViolation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of a request.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type StockShortfall struct {
	ProductID snowflake.ID `json:"product_id"`
	Requested int64        `json:"requested"`
	Available int64        `json:"available"`
	Shortfall int64        `json:"shortfall"`
}

// StockViolationError names every product the invoice would oversell.
type StockViolationError struct {
	Items []StockShortfall
}

func (e *StockViolationError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, fmt.Sprintf("product %s short by %d", item.ProductID, item.Shortfall))
	}
	return ErrStockViolation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *StockViolationError) Unwrap() error { return ErrStockViolation }

// ReconciliationError means a stock write failed after validation passed.
// The surrounding transaction has been rolled back.
type ReconciliationError struct {
	Operation string
	ProductID snowflake.ID
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s: %s product %s: %v", ErrReconciliationFailure, e.Operation, e.ProductID, e.Err)
}

func (e *ReconciliationError) Unwrap() []error { return []error{ErrReconciliationFailure, e.Err} }
