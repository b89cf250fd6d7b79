package domain

import "github.com/shopspring/decimal"

// Labels names the presented components for each regime.
type Labels struct {
	Single string
	Dual   [2]string
}

// Calculator computes invoice totals. Implementations hold no state: the
// regime and labels travel with every call.
type Calculator interface {
	Calculate(regime Regime, labels Labels, lines []Line) (Result, error)
	// Breakdown splits totalTax for presentation without recomputing it.
	Breakdown(regime Regime, labels Labels, subtotal, totalTax decimal.Decimal) (Breakdown, error)
	Round(result Result, places int32) Result
}
