package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Telemetry owns the global meter and tracer providers installed by [Setup].
type Telemetry struct {
	meters *sdkmetric.MeterProvider
	traces *sdktrace.TracerProvider
}

// SetupOption tunes [Setup].
type SetupOption func(*setup)

type setup struct {
	version  string
	exporter sdktrace.SpanExporter
	sampler  sdktrace.Sampler
}

// WithVersion reports the build version as service.version.
func WithVersion(v string) SetupOption {
	return func(s *setup) { s.version = v }
}

// WithSpanExporter batches finished spans to e. Without one, spans only feed
// trace IDs into logs and response headers.
func WithSpanExporter(e sdktrace.SpanExporter) SetupOption {
	return func(s *setup) { s.exporter = e }
}

// WithSampler overrides the default parent-based always-on sampler.
func WithSampler(sm sdktrace.Sampler) SetupOption {
	return func(s *setup) { s.sampler = sm }
}

// Setup installs global providers for service. Metrics are bridged into the
// default Prometheus registry served by [MetricsHandler]. Call Shutdown on
// exit to flush.
func Setup(ctx context.Context, service string, opts ...SetupOption) (*Telemetry, error) {
	s := setup{sampler: sdktrace.ParentBased(sdktrace.AlwaysSample())}
	for _, o := range opts {
		o(&s)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
		semconv.ServiceVersion(s.version),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	exp, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	t := &Telemetry{
		meters: sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp)),
	}

	topts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res), sdktrace.WithSampler(s.sampler)}
	if s.exporter != nil {
		topts = append(topts, sdktrace.WithBatcher(s.exporter))
	}
	t.traces = sdktrace.NewTracerProvider(topts...)

	otel.SetMeterProvider(t.meters)
	otel.SetTracerProvider(t.traces)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return t, nil
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.meters.Shutdown(ctx), t.traces.Shutdown(ctx))
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
