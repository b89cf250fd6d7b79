package service

import (
	"context"
	"errors"
	"fmt"

	inventorydomain "github.com/smallbiznis/billbook/internal/inventory/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/observability/tracing"
	"github.com/smallbiznis/billbook/pkg/db"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var classified = []error{
	invoicedomain.ErrInvalidOrganization,
	invoicedomain.ErrInvalidInvoiceID,
	invoicedomain.ErrValidation,
	invoicedomain.ErrStockViolation,
	invoicedomain.ErrReconciliationFailure,
	invoicedomain.ErrNumberingConflict,
	invoicedomain.ErrUnavailable,
	invoicedomain.ErrNotFound,
}

// classify maps a failure inside a lifecycle operation onto the invoice
// error taxonomy.
func classify(operation string, err error) error {
	var shortage *inventorydomain.InsufficientStockError
	var missing *inventorydomain.MissingProductError

	switch {
	case err == nil:
		return nil
	case errors.As(err, &shortage):
		items := make([]invoicedomain.StockShortfall, 0, len(shortage.Shortages))
		for _, s := range shortage.Shortages {
			items = append(items, invoicedomain.StockShortfall{
				ProductID: s.ProductID,
				Requested: s.Requested,
				Available: s.Available,
				Shortfall: max(s.Requested-s.Available, 0),
			})
		}
		return &invoicedomain.StockViolationError{Items: items}
	case errors.As(err, &missing):
		return &invoicedomain.ReconciliationError{Operation: operation, ProductID: missing.ProductID, Err: err}
	}

	for _, target := range classified {
		if errors.Is(err, target) {
			return err
		}
	}

	switch {
	case db.IsDuplicateKeyErr(err):
		return fmt.Errorf("%w: %w", invoicedomain.ErrNumberingConflict, err)
	case db.IsUnavailableErr(err):
		return fmt.Errorf("%w: %w", invoicedomain.ErrUnavailable, err)
	}
	return err
}

func stockViolation(lines []inventorydomain.LineCheck) error {
	items := make([]invoicedomain.StockShortfall, 0, len(lines))
	for _, line := range lines {
		items = append(items, invoicedomain.StockShortfall{
			ProductID: line.ProductID,
			Requested: line.Requested,
			Available: line.Available,
			Shortfall: line.Shortfall,
		})
	}
	return &invoicedomain.StockViolationError{Items: items}
}

// fail classifies err, counts it and marks the span.
func (s *Service) fail(ctx context.Context, span trace.Span, orgID, operation string, err error) error {
	err = classify(operation, err)

	var stockErr *invoicedomain.StockViolationError
	var reconErr *invoicedomain.ReconciliationError
	switch {
	case errors.As(err, &stockErr):
		s.metrics.RecordStockViolation(ctx, orgID, operation, len(stockErr.Items))
	case errors.As(err, &reconErr):
		s.metrics.RecordReconciliationFailure(ctx, orgID, operation)
		s.log.Error("stock reconciliation failed, invoice rolled back",
			zap.String("org_id", orgID),
			zap.String("operation", operation),
			zap.String("product_id", reconErr.ProductID.String()),
			zap.Error(reconErr.Err),
		)
	case errors.Is(err, invoicedomain.ErrUnavailable):
		s.log.Warn("invoice store unavailable", zap.String("operation", operation), zap.Error(err))
	}

	span.RecordError(tracing.SafeError(err))
	span.SetStatus(codes.Error, operation+" failed")
	return err
}
