package domain

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	inventorydomain "github.com/smallbiznis/billbook/internal/inventory/domain"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
)

// LineItemInput is a line as the caller sends it. Unset optional fields are
// copied from the product.
type LineItemInput struct {
	ProductID   string           `json:"product_id" validate:"required"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
	HSNCode     *string          `json:"hsn_code" validate:"omitempty,max=32"`
	Quantity    int64            `json:"quantity" validate:"gt=0"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
}

// LineItem is a validated line. It can only be built by NewLineItem and has
// no setters.
type LineItem struct {
	productID   snowflake.ID
	description string
	hsnCode     string
	quantity    int64
	unitPrice   decimal.Decimal
	taxRate     decimal.Decimal
}

// NewLineItem validates input against the product it references. Every
// problem is returned, prefixed with the line's field path.
func NewLineItem(index int, input LineItemInput, product productdomain.StockLevel) (LineItem, []FieldViolation) {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", index, name) }
	var violations []FieldViolation

	if !product.Active {
		violations = append(violations, FieldViolation{Field: field("product_id"), Code: "inactive", Message: "product is not active"})
	}
	if input.Quantity <= 0 {
		violations = append(violations, FieldViolation{Field: field("quantity"), Code: "gt", Message: "quantity must be positive"})
	}

	item := LineItem{
		productID:   product.ProductID,
		description: product.Name,
		hsnCode:     product.HSNCode,
		quantity:    input.Quantity,
		unitPrice:   product.Price,
		taxRate:     product.TaxRate,
	}
	if input.Description != nil {
		item.description = strings.TrimSpace(*input.Description)
	}
	if input.HSNCode != nil {
		item.hsnCode = strings.TrimSpace(*input.HSNCode)
	}
	if input.UnitPrice != nil {
		item.unitPrice = *input.UnitPrice
	}
	if input.TaxRate != nil {
		item.taxRate = *input.TaxRate
	}

	switch {
	case item.unitPrice.IsNegative():
		violations = append(violations, FieldViolation{Field: field("unit_price"), Code: "gte", Message: "unit price must not be negative"})
	case !productdomain.PriceFits(item.unitPrice):
		violations = append(violations, FieldViolation{
			Field:   field("unit_price"),
			Code:    "precision",
			Message: fmt.Sprintf("unit price must be below %s with at most %d decimal places", productdomain.MaxAmount, productdomain.PriceScale),
		})
	}
	switch {
	case item.taxRate.IsNegative():
		violations = append(violations, FieldViolation{Field: field("tax_rate"), Code: "gte", Message: "tax rate must not be negative"})
	case !productdomain.TaxRateFits(item.taxRate):
		violations = append(violations, FieldViolation{
			Field:   field("tax_rate"),
			Code:    "precision",
			Message: fmt.Sprintf("tax rate must be below %s with at most %d decimal places", productdomain.MaxTaxRate, productdomain.TaxRateScale),
		})
	}
	if len(violations) == 0 {
		line := item.TaxLine()
		if line.Amount().Add(line.Tax()).GreaterThanOrEqual(productdomain.MaxAmount) {
			violations = append(violations, FieldViolation{Field: field("quantity"), Code: "max", Message: "line total is too large"})
		}
	}

	if len(violations) > 0 {
		return LineItem{}, violations
	}
	return item, nil
}

// LineItemFromRecord rebuilds a line from storage, where it was validated on the way in.
func LineItemFromRecord(record InvoiceItem) LineItem {
	return LineItem{
		productID:   record.ProductID,
		description: record.Description,
		hsnCode:     record.HSNCode,
		quantity:    record.Quantity,
		unitPrice:   record.UnitPrice,
		taxRate:     record.TaxRate,
	}
}

func (l LineItem) ProductID() snowflake.ID { return l.productID }
func (l LineItem) Description() string { return l.description }
func (l LineItem) HSNCode() string { return l.hsnCode }
func (l LineItem) Quantity() int64 { return l.quantity }
func (l LineItem) UnitPrice() decimal.Decimal { return l.unitPrice }
func (l LineItem) TaxRate() decimal.Decimal { return l.taxRate }
func (l LineItem) Amount() decimal.Decimal { return l.TaxLine().Amount() }

func (l LineItem) StockRequest() inventorydomain.Request {
	return inventorydomain.Request{ProductID: l.productID, Quantity: l.quantity}
}

func (l LineItem) TaxLine() taxdomain.Line {
	return taxdomain.Line{Quantity: l.quantity, UnitPrice: l.unitPrice, TaxRate: l.taxRate}
}

func TaxLines(items []LineItem) []taxdomain.Line {
	out := make([]taxdomain.Line, len(items))
	for i, item := range items {
		out[i] = item.TaxLine()
	}
	return out
}

func StockRequests(items []LineItem) []inventorydomain.Request {
	out := make([]inventorydomain.Request, len(items))
	for i, item := range items {
		out[i] = item.StockRequest()
	}
	return out
}
