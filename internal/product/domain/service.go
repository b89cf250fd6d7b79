package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Restock(ctx context.Context, req RestockRequest) (*Response, error)
}

type ListRequest struct {
	Name    string `form:"name"`
	Active  *bool  `form:"active"`
	SortBy  string `form:"sort_by"`
	OrderBy string `form:"order_by"`
}

type CreateRequest struct {
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	Description       *string         `json:"description"`
	HSNCode           string          `json:"hsn_code"`
	Price             decimal.Decimal `json:"price"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	StockQuantity     int64           `json:"stock_quantity"`
	LowStockThreshold *int64          `json:"low_stock_threshold"`
	Active            *bool           `json:"active"`
	Metadata          map[string]any  `json:"metadata"`
}

type UpdateRequest struct {
	ID                string           `json:"-"`
	Name              *string          `json:"name"`
	Description       *string          `json:"description"`
	HSNCode           *string          `json:"hsn_code"`
	Price             *decimal.Decimal `json:"price"`
	TaxRate           *decimal.Decimal `json:"tax_rate"`
	LowStockThreshold *int64           `json:"low_stock_threshold"`
	Active            *bool            `json:"active"`
	Metadata          map[string]any   `json:"metadata"`
}

type RestockRequest struct {
	ID       string `json:"-"`
	Quantity int64  `json:"quantity"`
}

type Response struct {
	ID                string          `json:"id"`
	OrganizationID    string          `json:"organization_id"`
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	Description       *string         `json:"description,omitempty"`
	HSNCode           string          `json:"hsn_code,omitempty"`
	Price             decimal.Decimal `json:"price"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	StockQuantity     int64           `json:"stock_quantity"`
	LowStockThreshold int64           `json:"low_stock_threshold"`
	Active            bool            `json:"active"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCode         = errors.New("invalid_code")
	ErrDuplicateCode       = errors.New("duplicate_code")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrInvalidTaxRate      = errors.New("invalid_tax_rate")
	ErrInvalidStock        = errors.New("invalid_stock_quantity")
	ErrInvalidThreshold    = errors.New("invalid_low_stock_threshold")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrNotFound            = errors.New("product_not_found")
	ErrInvalidID           = errors.New("invalid_id")
)
