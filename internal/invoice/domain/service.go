package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	inventorydomain "github.com/smallbiznis/billbook/internal/inventory/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

type CreateInvoiceRequest struct {
	CustomerID string          `json:"customer_id" validate:"required"`
	Number     string          `json:"number" validate:"omitempty,max=64"`
	Items      []LineItemInput `json:"items" validate:"required,min=1,dive"`
	DueDate    *time.Time      `json:"due_date"`
	Notes      string          `json:"notes" validate:"max=2000"`
	CreatedBy  string          `json:"created_by" validate:"max=64"`
}

// UpdateInvoiceRequest changes only the fields that are set. A nil Items
// keeps the current lines and leaves stock untouched.
type UpdateInvoiceRequest struct {
	ID         string          `json:"-"`
	CustomerID *string         `json:"customer_id" validate:"omitempty,min=1"`
	Items      []LineItemInput `json:"items" validate:"omitempty,dive"`
	DueDate    *time.Time      `json:"due_date"`
	Notes      *string         `json:"notes" validate:"omitempty,max=2000"`
	Status     *InvoiceStatus  `json:"status" validate:"omitempty,oneof=draft pending paid overdue"`
}

type UpdateStatusRequest struct {
	ID     string        `json:"-"`
	Status InvoiceStatus `json:"status" validate:"required,oneof=draft pending paid overdue"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status      string     `form:"status" validate:"omitempty,oneof=draft pending paid overdue"`
	CustomerID  string     `form:"customer_id"`
	CreatedFrom *time.Time `form:"created_from" time_format:"2006-01-02T15:04:05Z07:00"`
	CreatedTo   *time.Time `form:"created_to" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListInvoiceFilter struct {
	Status      InvoiceStatus
	CustomerID  int64
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type StockCheckLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
}

type CheckStockRequest struct {
	Items []StockCheckLine `json:"items" validate:"required,min=1,dive"`
}

type CheckStockResponse struct {
	Blocked bool                        `json:"blocked"`
	Lines   []inventorydomain.LineCheck `json:"lines"`
}

type PreviewRequest struct {
	Items []LineItemInput `json:"items" validate:"required,min=1,dive"`
}

// Totals is the rounded, presentable money summary of a set of lines.
type Totals struct {
	TaxRegime     taxdomain.Regime      `json:"tax_regime"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	TaxBreakdown  []taxdomain.Component `json:"tax_breakdown"`
	TotalTax      decimal.Decimal       `json:"total_tax"`
	Total         decimal.Decimal       `json:"total"`
	EffectiveRate decimal.Decimal       `json:"effective_tax_rate"`
}

type LineItemView struct {
	ProductID   string          `json:"product_id"`
	Description string          `json:"description"`
	HSNCode     string          `json:"hsn_code,omitempty"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	LineTotal   decimal.Decimal `json:"line_total"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
}

type InvoiceView struct {
	ID           string         `json:"id"`
	Number       string         `json:"number"`
	CustomerID   string         `json:"customer_id"`
	CustomerName string         `json:"customer_name,omitempty"`
	Status       InvoiceStatus  `json:"status"`
	Items        []LineItemView `json:"items"`
	Totals
	DueDate   time.Time `json:"due_date"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []InvoiceView `json:"invoices"`
}

type PreviewResponse struct {
	Items []LineItemView `json:"items"`
	Totals
	Stock CheckStockResponse `json:"stock"`
}

// Service is the invoice lifecycle. Create, Update and Delete each commit the
// invoice and its stock movement together or not at all.
type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (InvoiceView, error)
	Update(ctx context.Context, req UpdateInvoiceRequest) (InvoiceView, error)
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (InvoiceView, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (InvoiceView, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	CheckStock(ctx context.Context, req CheckStockRequest) (CheckStockResponse, error)
	Preview(ctx context.Context, req PreviewRequest) (PreviewResponse, error)
}
