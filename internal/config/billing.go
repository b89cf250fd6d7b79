package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	TaxRegimeSingle = "single"
	TaxRegimeDual   = "dual"
)

// BillingConfig carries the tax and numbering defaults an operator can change at runtime.
type BillingConfig struct {
	TaxRegime         string   `mapstructure:"taxRegime"`
	SingleTaxLabel    string   `mapstructure:"singleTaxLabel"`
	DualTaxLabels     []string `mapstructure:"dualTaxLabels"`
	LowStockThreshold int64    `mapstructure:"lowStockThreshold"`
	DisplayPrecision  int32    `mapstructure:"displayPrecision"`
	Timezone          string   `mapstructure:"timezone"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		TaxRegime:         TaxRegimeDual,
		SingleTaxLabel:    "IGST",
		DualTaxLabels:     []string{"CGST", "SGST"},
		LowStockThreshold: 5,
		DisplayPrecision:  2,
		Timezone:          "UTC",
	}
}

// Location resolves Timezone, falling back to UTC.
func (c BillingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder wraps a fixed config; used by tests and embedded callers.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/billbook")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BILLBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.taxRegime", defaults.TaxRegime)
	v.SetDefault("billing.singleTaxLabel", defaults.SingleTaxLabel)
	v.SetDefault("billing.dualTaxLabels", defaults.DualTaxLabels)
	v.SetDefault("billing.lowStockThreshold", defaults.LowStockThreshold)
	v.SetDefault("billing.displayPrecision", defaults.DisplayPrecision)
	v.SetDefault("billing.timezone", defaults.Timezone)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	cfg = normalizeBillingConfig(cfg)
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)

	if fileFound {
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated BillingConfig
			if err := v.UnmarshalKey("billing", &updated); err != nil {
				log.Warn("billing config reload failed", zap.Error(err))
				return
			}
			updated = normalizeBillingConfig(updated)
			if err := validateBillingConfig(updated); err != nil {
				log.Warn("billing config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("billing config reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func normalizeBillingConfig(cfg BillingConfig) BillingConfig {
	cfg.TaxRegime = strings.ToLower(strings.TrimSpace(cfg.TaxRegime))
	cfg.SingleTaxLabel = strings.TrimSpace(cfg.SingleTaxLabel)
	for i := range cfg.DualTaxLabels {
		cfg.DualTaxLabels[i] = strings.TrimSpace(cfg.DualTaxLabels[i])
	}
	if strings.TrimSpace(cfg.Timezone) == "" {
		cfg.Timezone = "UTC"
	}
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	switch cfg.TaxRegime {
	case TaxRegimeSingle, TaxRegimeDual:
	default:
		return fmt.Errorf("billing.taxRegime must be %q or %q, got %q", TaxRegimeSingle, TaxRegimeDual, cfg.TaxRegime)
	}
	if len(cfg.DualTaxLabels) != 2 {
		return errors.New("billing.dualTaxLabels must have exactly two labels")
	}
	if cfg.SingleTaxLabel == "" {
		return errors.New("billing.singleTaxLabel cannot be empty")
	}
	if cfg.LowStockThreshold < 0 {
		return errors.New("billing.lowStockThreshold cannot be negative")
	}
	if cfg.DisplayPrecision < 0 || cfg.DisplayPrecision > 6 {
		return errors.New("billing.displayPrecision must be between 0 and 6")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("billing.timezone: %w", err)
	}
	return nil
}
