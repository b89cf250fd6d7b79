package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrProductMissing    = errors.New("product_missing")
)

// Shortage is one product whose guarded decrement did not apply.
type Shortage struct {
	ProductID snowflake.ID
	Requested int64
	Available int64
}

// InsufficientStockError reports every product a decrement could not cover.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s requested %d available %d", s.ProductID, s.Requested, s.Available))
	}
	return ErrInsufficientStock.Error() + ": " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// MissingProductError means a stock write found no product row.
type MissingProductError struct {
	ProductID snowflake.ID
	Delta     int64
}

func (e *MissingProductError) Error() string {
	return fmt.Sprintf("%s: %s (delta %d)", ErrProductMissing, e.ProductID, e.Delta)
}

func (e *MissingProductError) Unwrap() error { return ErrProductMissing }
