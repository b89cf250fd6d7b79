package service

import (
	"fmt"

	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
)

type calculator struct{}

func New() taxdomain.Calculator {
	return calculator{}
}

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// Calculate sums line amounts and line taxes at full precision. Line rates are
// authoritative; the regime only shapes the breakdown.
func (c calculator) Calculate(regime taxdomain.Regime, labels taxdomain.Labels, lines []taxdomain.Line) (taxdomain.Result, error) {
	subtotal := decimal.Zero
	totalTax := decimal.Zero
	lineTaxes := make([]decimal.Decimal, 0, len(lines))

	for i, line := range lines {
		if line.Quantity <= 0 || line.UnitPrice.IsNegative() || line.TaxRate.IsNegative() {
			return taxdomain.Result{}, fmt.Errorf("%w: line %d", taxdomain.ErrInvalidLine, i)
		}
		lineTax := line.Tax()
		subtotal = subtotal.Add(line.Amount())
		totalTax = totalTax.Add(lineTax)
		lineTaxes = append(lineTaxes, lineTax)
	}

	breakdown, err := c.Breakdown(regime, labels, subtotal, totalTax)
	if err != nil {
		return taxdomain.Result{}, err
	}

	return taxdomain.Result{
		Subtotal:      subtotal,
		TotalTax:      totalTax,
		Total:         subtotal.Add(totalTax),
		EffectiveRate: effectiveRate(subtotal, totalTax),
		LineTaxes:     lineTaxes,
		Breakdown:     breakdown,
	}, nil
}

// Breakdown presents totalTax as one component or two equal halves. The
// second half is totalTax minus the first so the parts always sum back.
func (calculator) Breakdown(regime taxdomain.Regime, labels taxdomain.Labels, subtotal, totalTax decimal.Decimal) (taxdomain.Breakdown, error) {
	rate := effectiveRate(subtotal, totalTax)

	switch regime {
	case taxdomain.RegimeSingle:
		return taxdomain.Breakdown{
			Regime: regime,
			Components: []taxdomain.Component{
				{Label: labels.Single, Rate: rate, Amount: totalTax},
			},
		}, nil
	case taxdomain.RegimeDual:
		first := totalTax.Div(two)
		return taxdomain.Breakdown{
			Regime: regime,
			Components: []taxdomain.Component{
				{Label: labels.Dual[0], Rate: rate.Div(two), Amount: first},
				{Label: labels.Dual[1], Rate: rate.Sub(rate.Div(two)), Amount: totalTax.Sub(first)},
			},
		}, nil
	default:
		return taxdomain.Breakdown{}, fmt.Errorf("%w: %q", taxdomain.ErrInvalidRegime, regime)
	}
}

// Round produces the display form of result. Total is the sum of the rounded
// subtotal and tax, and the last component absorbs the rounding remainder so
// every printed column adds up.
func (calculator) Round(result taxdomain.Result, places int32) taxdomain.Result {
	subtotal := result.Subtotal.Round(places)
	totalTax := result.TotalTax.Round(places)

	out := taxdomain.Result{
		Subtotal:      subtotal,
		TotalTax:      totalTax,
		Total:         subtotal.Add(totalTax),
		EffectiveRate: result.EffectiveRate.Round(places),
		LineTaxes:     make([]decimal.Decimal, len(result.LineTaxes)),
		Breakdown: taxdomain.Breakdown{
			Regime:     result.Breakdown.Regime,
			Components: make([]taxdomain.Component, len(result.Breakdown.Components)),
		},
	}
	for i, lineTax := range result.LineTaxes {
		out.LineTaxes[i] = lineTax.Round(places)
	}

	allocated := decimal.Zero
	last := len(result.Breakdown.Components) - 1
	for i, component := range result.Breakdown.Components {
		amount := component.Amount.Round(places)
		if i == last {
			amount = totalTax.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		out.Breakdown.Components[i] = taxdomain.Component{
			Label:  component.Label,
			Rate:   component.Rate.Round(places),
			Amount: amount,
		}
	}
	return out
}

func effectiveRate(subtotal, totalTax decimal.Decimal) decimal.Decimal {
	if subtotal.IsZero() {
		return decimal.Zero
	}
	return totalTax.Div(subtotal).Mul(hundred)
}
