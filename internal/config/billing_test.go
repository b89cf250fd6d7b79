package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBillingConfigIsValid(t *testing.T) {
	cfg := normalizeBillingConfig(DefaultBillingConfig())
	assert.NoError(t, validateBillingConfig(cfg))
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestValidateBillingConfig(t *testing.T) {
	cfg := DefaultBillingConfig()
	cfg.TaxRegime = "triple"
	assert.Error(t, validateBillingConfig(normalizeBillingConfig(cfg)))

	cfg = DefaultBillingConfig()
	cfg.DualTaxLabels = []string{"CGST"}
	assert.Error(t, validateBillingConfig(cfg))

	cfg = DefaultBillingConfig()
	cfg.LowStockThreshold = -1
	assert.Error(t, validateBillingConfig(cfg))

	cfg = DefaultBillingConfig()
	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, validateBillingConfig(cfg))
}

func TestNormalizeBillingConfig(t *testing.T) {
	cfg := normalizeBillingConfig(BillingConfig{
		TaxRegime:      "  SINGLE ",
		SingleTaxLabel: " VAT ",
		DualTaxLabels:  []string{" A ", "B "},
	})
	assert.Equal(t, TaxRegimeSingle, cfg.TaxRegime)
	assert.Equal(t, "VAT", cfg.SingleTaxLabel)
	assert.Equal(t, []string{"A", "B"}, cfg.DualTaxLabels)
	assert.Equal(t, "UTC", cfg.Timezone)
}

func TestStaticHolder(t *testing.T) {
	holder := NewStaticBillingConfigHolder(DefaultBillingConfig())
	assert.Equal(t, TaxRegimeDual, holder.Get().TaxRegime)
}
