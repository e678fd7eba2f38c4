// Package observability exports OpenTelemetry metrics for guarded
// operations. Metrics ride the journal side channel: a Bridge forwards
// journal events into counters and histograms, so the registries never
// depend on telemetry and tests never require it.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Mindburn-Labs/mandate/pkg/journal"
)

// Config configures the metrics provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // e.g. "localhost:4317"
	Insecure       bool
	ExportInterval time.Duration
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "mandate",
		ServiceVersion: "0.1.0",
		OTLPEndpoint:   "localhost:4317",
		Insecure:       true,
		ExportInterval: 15 * time.Second,
	}
}

// Provider owns the meter provider and the operation instruments.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider

	opsCounter metric.Int64Counter
	amountHist metric.Int64Histogram
}

// New creates a provider exporting over OTLP gRPC.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.ExportInterval))),
	)

	return NewWithMeterProvider(mp)
}

// NewWithMeterProvider builds the operation instruments on an existing meter
// provider. Tests use it with a manual reader instead of the OTLP exporter.
func NewWithMeterProvider(mp *sdkmetric.MeterProvider) (*Provider, error) {
	meter := mp.Meter("github.com/Mindburn-Labs/mandate")

	opsCounter, err := meter.Int64Counter("mandate.operations",
		metric.WithDescription("Successful guarded operations by component and op"))
	if err != nil {
		return nil, err
	}
	amountHist, err := meter.Int64Histogram("mandate.transfer.amount",
		metric.WithDescription("Amounts moved by successful guarded operations"))
	if err != nil {
		return nil, err
	}

	return &Provider{
		meterProvider: mp,
		opsCounter:    opsCounter,
		amountHist:    amountHist,
	}, nil
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}

// Bridge adapts the provider to the journal.Journal interface so it can be
// fanned into a MultiJournal next to the durable journal.
type Bridge struct {
	provider *Provider
}

// NewBridge creates a journal bridge for the provider.
func NewBridge(p *Provider) *Bridge {
	return &Bridge{provider: p}
}

// Record counts the event and records its amount.
func (b *Bridge) Record(ev journal.Event) error {
	attrs := metric.WithAttributes(
		attribute.String("component", ev.Component),
		attribute.String("op", ev.Op),
	)
	ctx := context.Background()
	b.provider.opsCounter.Add(ctx, 1, attrs)
	if ev.Amount > 0 {
		b.provider.amountHist.Record(ctx, ev.Amount, attrs)
	}
	return nil
}
