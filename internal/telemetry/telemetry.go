package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Telemetry owns the tracer and meter providers of the process
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	registry       *prometheus.Registry
	shutdowns      []shutdownFunc
}

type shutdownFunc struct {
	what string
	fn   func(context.Context) error
}

// Option is a function that configures the telemetry setup
type Option func(*options)

type options struct {
	config *Config
}

// WithTelemetryConfig sets the telemetry section of the checker configuration
func WithTelemetryConfig(cfg *Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// New creates the tracer and meter providers described by the configuration.
// Disabled or nil configuration yields no-op providers. The caller must call
// Shutdown on exit to flush pending exports.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	tel := &Telemetry{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	tc := o.config
	if tc == nil || !tc.Enabled {
		slog.Debug("Telemetry disabled")
		return tel, nil
	}
	if err := tc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	slog.Info("Initializing telemetry",
		"service_name", tc.GetServiceName(),
		"service_version", tc.GetServiceVersion(),
		"endpoint", tc.GetEndpoint())

	res, err := newResource(ctx, tc.GetServiceName(), tc.GetServiceVersion())
	if err != nil {
		return nil, err
	}
	target := targetOf(tc)

	if tel.tracerProvider, err = newTracerProvider(ctx, tc.Tracing, target, res); err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}
	if tp, ok := tel.tracerProvider.(*sdktrace.TracerProvider); ok {
		tel.shutdowns = append(tel.shutdowns, shutdownFunc{"tracer provider", tp.Shutdown})
	}

	if tc.Metrics.IsEnabled() && tc.Metrics.UsesPrometheus() {
		tel.registry = prometheus.NewRegistry()
	}
	if tel.meterProvider, err = newMeterProvider(ctx, tc.Metrics, target, res, tel.registry); err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create meter provider: %w", err)
	}
	if mp, ok := tel.meterProvider.(*sdkmetric.MeterProvider); ok {
		tel.shutdowns = append(tel.shutdowns, shutdownFunc{"meter provider", mp.Shutdown})
	}

	return tel, nil
}

// newResource describes this service to exporters
func newResource(ctx context.Context, serviceName, serviceVersion string) (*resource.Resource, error) {
	// resource.New avoids schema URL conflicts with resource.Default()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// TracerProvider returns the configured tracer provider
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the configured meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// Tracer returns a named tracer from the tracer provider
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return t.tracerProvider.Tracer(name, opts...)
}

// MetricsHandler serves Prometheus metrics, or nil when the Prometheus
// exporter is not enabled
func (t *Telemetry) MetricsHandler() http.Handler {
	if t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes pending exports and stops the SDK providers. Calling it
// again is a no-op.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	slog.Debug("Shutting down telemetry")

	var errs []error
	for _, s := range t.shutdowns {
		if err := s.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown %s: %w", s.what, err))
		}
	}
	t.shutdowns = nil
	return errors.Join(errs...)
}
