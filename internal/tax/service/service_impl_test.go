package service

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var labels = taxdomain.Labels{Single: "IGST", Dual: [2]string{"CGST", "SGST"}}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateSingleLine(t *testing.T) {
	calc := New()

	result, err := calc.Calculate(taxdomain.RegimeDual, labels, []taxdomain.Line{
		{Quantity: 2, UnitPrice: d("100"), TaxRate: d("18")},
	})
	require.NoError(t, err)

	assert.True(t, result.Subtotal.Equal(d("200")), result.Subtotal.String())
	assert.True(t, result.TotalTax.Equal(d("36")), result.TotalTax.String())
	assert.True(t, result.Total.Equal(d("236")), result.Total.String())
	assert.True(t, result.EffectiveRate.Equal(d("18")), result.EffectiveRate.String())

	components := result.Breakdown.Components
	require.Len(t, components, 2)
	assert.Equal(t, "CGST", components[0].Label)
	assert.True(t, components[0].Amount.Equal(d("18")))
	assert.True(t, components[0].Rate.Equal(d("9")))
	assert.Equal(t, "SGST", components[1].Label)
	assert.True(t, components[1].Amount.Equal(d("18")))
}

func TestCalculateSingleRegime(t *testing.T) {
	result, err := New().Calculate(taxdomain.RegimeSingle, labels, []taxdomain.Line{
		{Quantity: 1, UnitPrice: d("50"), TaxRate: d("5")},
		{Quantity: 3, UnitPrice: d("10"), TaxRate: d("12")},
	})
	require.NoError(t, err)

	assert.True(t, result.TotalTax.Equal(d("6.1")), result.TotalTax.String())
	require.Len(t, result.Breakdown.Components, 1)
	assert.Equal(t, "IGST", result.Breakdown.Components[0].Label)
	assert.True(t, result.Breakdown.Components[0].Amount.Equal(result.TotalTax))
}

func TestCalculateZeroSubtotal(t *testing.T) {
	result, err := New().Calculate(taxdomain.RegimeDual, labels, []taxdomain.Line{
		{Quantity: 4, UnitPrice: decimal.Zero, TaxRate: d("18")},
	})
	require.NoError(t, err)
	assert.True(t, result.EffectiveRate.IsZero())
	assert.True(t, result.Total.IsZero())
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	calc := New()

	_, err := calc.Calculate(taxdomain.Regime("vat"), labels, nil)
	assert.ErrorIs(t, err, taxdomain.ErrInvalidRegime)

	_, err = calc.Calculate(taxdomain.RegimeSingle, labels, []taxdomain.Line{{Quantity: 0, UnitPrice: d("1")}})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidLine)

	_, err = calc.Calculate(taxdomain.RegimeSingle, labels, []taxdomain.Line{{Quantity: 1, UnitPrice: d("-1")}})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidLine)
}

func TestCalculateKeepsFullPrecision(t *testing.T) {
	lines := make([]taxdomain.Line, 0, 1000)
	for i := 0; i < 1000; i++ {
		lines = append(lines, taxdomain.Line{Quantity: 1, UnitPrice: d("0.333"), TaxRate: d("18")})
	}

	result, err := New().Calculate(taxdomain.RegimeSingle, labels, lines)
	require.NoError(t, err)

	// Rounding each line to cents first would give 1000 * 0.06 = 60.
	assert.True(t, result.TotalTax.Equal(d("59.94")), result.TotalTax.String())
}

func TestRoundReconcilesComponents(t *testing.T) {
	calc := New()
	result, err := calc.Calculate(taxdomain.RegimeDual, labels, []taxdomain.Line{
		{Quantity: 1, UnitPrice: d("0.27"), TaxRate: d("18")},
	})
	require.NoError(t, err)

	rounded := calc.Round(result, 2)
	assert.True(t, rounded.TotalTax.Equal(d("0.05")), rounded.TotalTax.String())

	sum := decimal.Zero
	for _, c := range rounded.Breakdown.Components {
		sum = sum.Add(c.Amount)
	}
	assert.True(t, sum.Equal(rounded.TotalTax), "components %s != total tax %s", sum, rounded.TotalTax)
	assert.True(t, rounded.Total.Equal(rounded.Subtotal.Add(rounded.TotalTax)))
}

func TestTotalsInvariantHoldsForRandomLines(t *testing.T) {
	calc := New()
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(20) + 1
		lines := make([]taxdomain.Line, n)
		expectedTax := decimal.Zero
		for i := range lines {
			lines[i] = taxdomain.Line{
				Quantity:  int64(rng.Intn(50) + 1),
				UnitPrice: decimal.New(int64(rng.Intn(100000)), -2),
				TaxRate:   decimal.New(int64(rng.Intn(2800)), -2),
			}
			expectedTax = expectedTax.Add(
				decimal.NewFromInt(lines[i].Quantity).Mul(lines[i].UnitPrice).Mul(lines[i].TaxRate).Div(decimal.NewFromInt(100)),
			)
		}

		for _, regime := range []taxdomain.Regime{taxdomain.RegimeSingle, taxdomain.RegimeDual} {
			result, err := calc.Calculate(regime, labels, lines)
			require.NoError(t, err)
			require.True(t, result.Total.Equal(result.Subtotal.Add(result.TotalTax)))
			require.True(t, result.TotalTax.Equal(expectedTax))

			sum := decimal.Zero
			for _, c := range result.Breakdown.Components {
				sum = sum.Add(c.Amount)
			}
			require.True(t, sum.Equal(result.TotalTax), "breakdown must reconcile to total tax")

			rounded := calc.Round(result, 2)
			roundedSum := decimal.Zero
			for _, c := range rounded.Breakdown.Components {
				roundedSum = roundedSum.Add(c.Amount)
			}
			require.True(t, roundedSum.Equal(rounded.TotalTax))
			require.True(t, rounded.Total.Sub(result.Total).Abs().LessThanOrEqual(d("0.01")))
		}
	}
}
