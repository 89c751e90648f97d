// Package alert turns out-of-sync findings into alerts and delivers them.
package alert

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/sync"
)

const (
	// DefaultService is the service label when none is configured
	DefaultService = "OpenLDAP"

	// ProviderFailureName is the alertname of a provider connectivity failure
	ProviderFailureName = "LDAPProviderUnavailable"
)

// Alert is a single notification about one server
type Alert struct {
	Name        string            `json:"name"`
	Target      string            `json:"target"`
	Severity    string            `json:"severity"`
	Summary     string            `json:"summary"`
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	StartsAt    time.Time         `json:"startsAt"`
}

// Sink delivers alerts
//
//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks github.com/stacklok/ldap-sync-checker/internal/alert Sink
type Sink interface {
	// Send delivers alerts. An empty slice is a no-op.
	Send(ctx context.Context, alerts []Alert) error
}

// Builder creates alerts with the configured name, severity, labels and annotations
type Builder struct {
	name        string
	severity    string
	labels      map[string]string
	annotations map[string]string
}

// NewBuilder creates a Builder from alerting configuration. A nil config uses defaults.
func NewBuilder(cfg *config.AlertingConfig) *Builder {
	b := &Builder{
		name:     cfg.GetName(),
		severity: cfg.GetSeverity(),
		labels:   map[string]string{"service": DefaultService},
	}
	if cfg != nil {
		maps.Copy(b.labels, cfg.Labels)
		b.annotations = maps.Clone(cfg.Annotations)
	}
	return b
}

// ForResult returns one alert per out-of-sync finding, in consumer order
func (b *Builder) ForResult(result *sync.Result) []Alert {
	if result == nil {
		return nil
	}

	var alerts []Alert
	for _, f := range result.OutOfSync() {
		alerts = append(alerts, b.build(
			b.name,
			f.Consumer.DisplayName(),
			f.Summary(),
			f.Reason.String(),
			result.StartedAt,
		))
	}
	return alerts
}

// ForProviderFailure returns the alert raised when a run aborts at the provider
func (b *Builder) ForProviderFailure(provider config.ServerDescriptor, err error, at time.Time) Alert {
	summary := fmt.Sprintf("provider %s unavailable", provider.DisplayName())
	if err != nil {
		summary = fmt.Sprintf("%s: %v", summary, err)
	}
	return b.build(ProviderFailureName, provider.DisplayName(), summary, "provider-unavailable", at)
}

func (b *Builder) build(name, target, summary, reason string, at time.Time) Alert {
	labels := maps.Clone(b.labels)
	labels["alertname"] = name
	labels["instance"] = target
	labels["severity"] = b.severity
	labels["reason"] = reason

	// configured annotations never replace the per-alert info and summary
	annotations := make(map[string]string, len(b.annotations)+2)
	maps.Copy(annotations, b.annotations)
	annotations["info"] = fmt.Sprintf("LDAP replication check failed for %s", target)
	annotations["summary"] = summary

	return Alert{
		Name:        name,
		Target:      target,
		Severity:    b.severity,
		Summary:     summary,
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    at.UTC(),
	}
}
