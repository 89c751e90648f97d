package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// CheckMetricsMeterName is the name used for the replication check meter
	CheckMetricsMeterName = "github.com/stacklok/ldap-sync-checker/check"
)

// Check outcomes recorded on the duration histogram
const (
	OutcomeInSync          = "in_sync"
	OutcomeOutOfSync       = "out_of_sync"
	OutcomeProviderFailure = "provider_failure"
	OutcomeError           = "error"
)

// CheckMetrics holds the OpenTelemetry instruments for replication checks
type CheckMetrics struct {
	consumerLag   metric.Float64Gauge
	consumerSync  metric.Int64Gauge
	checkDuration metric.Float64Histogram
	findingsTotal metric.Int64Counter
	alertsTotal   metric.Int64Counter
}

// NewCheckMetrics creates a new CheckMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCheckMetrics(provider metric.MeterProvider) (*CheckMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CheckMetricsMeterName)

	consumerLag, err := meter.Float64Gauge(
		"ldapsync_consumer_lag_seconds",
		metric.WithDescription("Provider contextCSN time minus consumer contextCSN time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	consumerSync, err := meter.Int64Gauge(
		"ldapsync_consumer_in_sync",
		metric.WithDescription("1 when the consumer was in sync at the last check, 0 otherwise"),
	)
	if err != nil {
		return nil, err
	}

	checkDuration, err := meter.Float64Histogram(
		"ldapsync_check_duration_seconds",
		metric.WithDescription("Duration of a full provider and consumers check in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	findingsTotal, err := meter.Int64Counter(
		"ldapsync_findings_total",
		metric.WithDescription("Consumer findings by reason"),
		metric.WithUnit("{finding}"),
	)
	if err != nil {
		return nil, err
	}

	alertsTotal, err := meter.Int64Counter(
		"ldapsync_alerts_sent_total",
		metric.WithDescription("Alerts handed to the alert sink"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, err
	}

	return &CheckMetrics{
		consumerLag:   consumerLag,
		consumerSync:  consumerSync,
		checkDuration: checkDuration,
		findingsTotal: findingsTotal,
		alertsTotal:   alertsTotal,
	}, nil
}

// RecordFinding records the verdict for one consumer. lag is nil when it
// could not be computed, in which case the lag gauge is left untouched.
func (m *CheckMetrics) RecordFinding(ctx context.Context, consumer, reason string, inSync bool, lag *time.Duration) {
	if m == nil {
		return
	}

	consumerAttr := metric.WithAttributes(attribute.String("consumer", consumer))

	m.findingsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("consumer", consumer),
		attribute.String("reason", reason),
	))

	var value int64
	if inSync {
		value = 1
	}
	m.consumerSync.Record(ctx, value, consumerAttr)

	if lag != nil {
		m.consumerLag.Record(ctx, lag.Seconds(), consumerAttr)
	}
}

// RecordCheck records the duration of one check run
func (m *CheckMetrics) RecordCheck(ctx context.Context, duration time.Duration, outcome string) {
	if m == nil {
		return
	}

	m.checkDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAlerts counts alerts handed to a sink
func (m *CheckMetrics) RecordAlerts(ctx context.Context, count int, delivered bool) {
	if m == nil || count == 0 {
		return
	}

	m.alertsTotal.Add(ctx, int64(count),
		metric.WithAttributes(attribute.Bool("delivered", delivered)))
}
