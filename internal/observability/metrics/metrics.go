package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
}

// Metrics exposes invoice lifecycle instruments.
type Metrics struct {
	invoiceMutations       metric.Int64Counter
	stockViolations        metric.Int64Counter
	reconciliationFailures metric.Int64Counter
	numberingReloads       metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New creates the invoice lifecycle instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "billbook"
	}
	meter := provider.Meter(name)

	invoiceMutations, err := meter.Int64Counter("billbook_invoice_mutations_total",
		metric.WithDescription("Committed invoice create, update and delete operations."))
	if err != nil {
		return nil, err
	}
	stockViolations, err := meter.Int64Counter("billbook_stock_violations_total",
		metric.WithDescription("Mutations rejected because requested quantity exceeded stock."))
	if err != nil {
		return nil, err
	}
	reconciliationFailures, err := meter.Int64Counter("billbook_reconciliation_failures_total")
	if err != nil {
		return nil, err
	}
	numberingReloads, err := meter.Int64Counter("billbook_numbering_index_reloads_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoiceMutations:       invoiceMutations,
		stockViolations:        stockViolations,
		reconciliationFailures: reconciliationFailures,
		numberingReloads:       numberingReloads,
	}, nil
}

// NewNoop returns instruments backed by a no-op provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordInvoiceMutation counts a committed lifecycle operation.
func (m *Metrics) RecordInvoiceMutation(ctx context.Context, orgID, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("operation", operation),
	)
	m.invoiceMutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordStockViolation(ctx context.Context, orgID, operation string, violations int) {
	if m == nil || violations <= 0 {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("operation", operation),
	)
	m.stockViolations.Add(ctx, int64(violations), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordReconciliationFailure(ctx context.Context, orgID, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("reason", reason),
	)
	m.reconciliationFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordNumberingReload(ctx context.Context, backend string) {
	if m == nil {
		return
	}
	m.numberingReloads.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("backend", backend))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"org_id":      {},
	"operation":   {},
	"reason":      {},
	"backend":     {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
