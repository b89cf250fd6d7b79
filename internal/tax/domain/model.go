package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Regime selects how an already computed tax amount is presented.
type Regime string

const (
	RegimeSingle Regime = "single"
	RegimeDual   Regime = "dual"
)

func (r Regime) Valid() bool {
	return r == RegimeSingle || r == RegimeDual
}

var hundred = decimal.NewFromInt(100)

// Line is one taxable line. Rates are percentages (18 means 18%).
type Line struct {
	Quantity  int64
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
}

// Amount is quantity times unit price at full precision.
func (l Line) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

func (l Line) Tax() decimal.Decimal {
	return l.Amount().Mul(l.TaxRate).Div(hundred)
}

// Component is one presented share of the total tax.
type Component struct {
	Label  string          `json:"label"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

type Breakdown struct {
	Regime     Regime      `json:"regime"`
	Components []Component `json:"components"`
}

// Result carries full-precision totals. Only Round produces display values.
type Result struct {
	Subtotal      decimal.Decimal   `json:"subtotal"`
	TotalTax      decimal.Decimal   `json:"total_tax"`
	Total         decimal.Decimal   `json:"total"`
	EffectiveRate decimal.Decimal   `json:"effective_rate"`
	LineTaxes     []decimal.Decimal `json:"line_taxes"`
	Breakdown     Breakdown         `json:"breakdown"`
}

var (
	ErrInvalidRegime = errors.New("invalid_tax_regime")
	ErrInvalidLine   = errors.New("invalid_tax_line")
)
