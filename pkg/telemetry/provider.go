// ABOUTME: OpenTelemetry provider implementation with metric and trace provider setup for sequencer telemetry
// ABOUTME: Handles provider lifecycle, resource detection, and sampling configuration

package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TelemetryProvider implements the Telemetry interface using the
// OpenTelemetry SDK, exporting through whichever exporters cfg.Exporters
// names (see createMetricExporters/createTraceExporters in exporter.go).
type TelemetryProvider struct {
	config         Config
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          metric.Meter

	mu         sync.Mutex
	histograms map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
}

// New creates a Telemetry instance. A disabled config returns a no-op
// implementation; otherwise it builds a real OpenTelemetry provider wired
// to the metric and trace exporters cfg.Exporters names.
func New(cfg Config) (Telemetry, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	ctx := context.Background()
	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource detection: %w", err)
	}

	metricExporters, err := createMetricExporters(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	meterOpts := make([]sdkmetric.Option, 0, len(metricExporters)+1)
	meterOpts = append(meterOpts, sdkmetric.WithResource(res))
	for _, exp := range metricExporters {
		meterOpts = append(meterOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.BatchTimeout)),
		))
	}
	meterProvider := sdkmetric.NewMeterProvider(meterOpts...)

	traceExporters, err := createTraceExporters(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	traceOpts := make([]sdktrace.TracerProviderOption, 0, len(traceExporters)+2)
	traceOpts = append(traceOpts,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	)
	for _, exp := range traceExporters {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exp,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
		))
	}
	tracerProvider := sdktrace.NewTracerProvider(traceOpts...)

	return &TelemetryProvider{
		config:         cfg,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		meter:          meterProvider.Meter(cfg.ServiceName),
		histograms:     make(map[string]metric.Float64Histogram),
		counters:       make(map[string]metric.Int64Counter),
	}, nil
}

func (t *TelemetryProvider) tracer() oteltrace.Tracer {
	return t.tracerProvider.Tracer(t.config.ServiceName)
}

func (t *TelemetryProvider) histogram(name string) metric.Float64Histogram {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.histograms[name]; ok {
		return h
	}
	h, _ := t.meter.Float64Histogram(name)
	t.histograms[name] = h
	return h
}

func (t *TelemetryProvider) counter(name string) metric.Int64Counter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.counters[name]; ok {
		return c
	}
	c, _ := t.meter.Int64Counter(name)
	t.counters[name] = c
	return c
}

// RecordHistogram records a histogram value with optional attributes.
func (t *TelemetryProvider) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	if ctx == nil {
		ctx = context.Background()
	}
	t.histogram(name).Record(ctx, value, metric.WithAttributes(attrs...))
}

// RecordCounter records a counter increment with optional attributes.
func (t *TelemetryProvider) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	if ctx == nil {
		ctx = context.Background()
	}
	t.counter(name).Add(ctx, value, metric.WithAttributes(attrs...))
}

// StartSpan creates a new tracing span with the given name and attributes.
func (t *TelemetryProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return t.tracer().Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// Shutdown gracefully shuts down the meter and tracer providers, flushing
// any buffered data to their exporters.
func (t *TelemetryProvider) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown: %v", errs)
	}
	return nil
}
