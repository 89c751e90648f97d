package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// MetricsExportInterval is how often metrics are pushed to the OTLP endpoint
const MetricsExportInterval = 60 * time.Second

// otlpTarget is where and how OTLP data is sent
type otlpTarget struct {
	endpoint string
	insecure bool
	headers  map[string]string
}

func targetOf(cfg *Config) otlpTarget {
	return otlpTarget{
		endpoint: cfg.GetEndpoint(),
		insecure: cfg.GetInsecure(),
		headers:  cfg.Headers,
	}
}

// newTracerProvider returns an SDK tracer provider exporting over OTLP, or a
// no-op provider when tracing is off. The SDK provider becomes the global one.
func newTracerProvider(
	ctx context.Context, tc *TracingConfig, target otlpTarget, res *resource.Resource,
) (trace.TracerProvider, error) {
	if tc == nil || !tc.Enabled {
		slog.Debug("Tracing disabled")
		return tracenoop.NewTracerProvider(), nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(target.endpoint)}
	if target.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(target.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(target.headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.GetSampling()))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if target.insecure {
		slog.Warn("Tracing over plain HTTP, use only for development")
	}
	slog.Info("Tracing initialized", "endpoint", target.endpoint, "sampling_ratio", tc.GetSampling())
	return tp, nil
}

// newMeterProvider returns an SDK meter provider with an OTLP push reader, a
// Prometheus pull reader registered on registry, or both. It returns a no-op
// provider when metrics are off.
func newMeterProvider(
	ctx context.Context,
	mc *MetricsConfig,
	target otlpTarget,
	res *resource.Resource,
	registry *prometheus.Registry,
) (metric.MeterProvider, error) {
	if mc == nil || !mc.Enabled {
		slog.Debug("Metrics disabled")
		return metricnoop.NewMeterProvider(), nil
	}

	providerOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if mc.UsesOTLP() {
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(target.endpoint)}
		if target.insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		if len(target.headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(target.headers))
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(MetricsExportInterval)),
		))
	}

	if mc.UsesPrometheus() {
		if registry == nil {
			return nil, fmt.Errorf("prometheus exporter requires a registry")
		}
		reader, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized", "exporter", mc.GetExporter(), "endpoint", target.endpoint)
	return mp, nil
}
