package telemetry

import (
	"net/http"

	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewPrometheusMeterProvider builds a MeterProvider wired to a pull-based
// Prometheus exporter, and the http.Handler an operator mounts at /metrics
// to scrape it. Unlike the push exporters in createMetricExporters, a
// Prometheus reader is pulled on request rather than flushed on an
// interval, so it is constructed and exposed separately from the
// otlp/stdout metric pipeline.
func NewPrometheusMeterProvider() (*sdkmetric.MeterProvider, http.Handler, error) {
	exporter, err := otelprometheus.New()
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return provider, promhttp.Handler(), nil
}
