package alert

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stacklok/ldap-sync-checker/internal/config"
)

// LogSink writes alerts to the structured log
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Send logs every alert at warn level
func (s *LogSink) Send(ctx context.Context, alerts []Alert) error {
	for _, a := range alerts {
		s.logger.WarnContext(ctx, "Sync alert",
			"alertname", a.Name,
			"target", a.Target,
			"severity", a.Severity,
			"summary", a.Summary)
	}
	return nil
}

// NopSink drops alerts
type NopSink struct{}

// Send does nothing
func (NopSink) Send(context.Context, []Alert) error {
	return nil
}

// MultiSink fans alerts out to several sinks
type MultiSink []Sink

// Send delivers to every sink and joins their errors
func (m MultiSink) Send(ctx context.Context, alerts []Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, alerts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewSink builds the sink described by cfg: a LogSink, plus Alertmanager
// delivery when alerting is enabled
func NewSink(cfg *config.AlertingConfig, logger *slog.Logger, opts ...AlertmanagerOption) (Sink, error) {
	sinks := MultiSink{NewLogSink(logger)}
	if cfg.IsEnabled() && cfg.Alertmanager != nil {
		am, err := NewAlertmanagerSink(cfg.Alertmanager, opts...)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, am)
	}
	return sinks, nil
}
