package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/httpclient"
	"github.com/stacklok/ldap-sync-checker/internal/versions"
)

const (
	alertsPath = "/api/v2/alerts"
	readyPath  = "/-/ready"
	statusPath = "/api/v2/status"

	// MinAlertmanagerVersion is the first release serving the v2 API
	MinAlertmanagerVersion = "0.16.0"
)

// amStatus is the subset of GET /api/v2/status that is read
type amStatus struct {
	VersionInfo struct {
		Version string `json:"version"`
	} `json:"versionInfo"`
}

// postableAlert is the Alertmanager v2 API alert shape
type postableAlert struct {
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	StartsAt     time.Time         `json:"startsAt,omitempty"`
	GeneratorURL string            `json:"generatorURL,omitempty"`
}

// AlertmanagerSink posts alerts to Alertmanager's v2 API
type AlertmanagerSink struct {
	client     httpclient.Client
	baseURL    string
	maxTries   uint
	newBackOff func() backoff.BackOff
}

// AlertmanagerOption configures an AlertmanagerSink
type AlertmanagerOption func(*AlertmanagerSink)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client httpclient.Client) AlertmanagerOption {
	return func(s *AlertmanagerSink) {
		s.client = client
	}
}

// WithBackOff replaces the retry schedule between delivery attempts
func WithBackOff(newBackOff func() backoff.BackOff) AlertmanagerOption {
	return func(s *AlertmanagerSink) {
		s.newBackOff = newBackOff
	}
}

// NewAlertmanagerSink creates a sink for the configured Alertmanager
func NewAlertmanagerSink(cfg *config.AlertmanagerConfig, opts ...AlertmanagerOption) (*AlertmanagerSink, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("alertmanager url is required")
	}

	s := &AlertmanagerSink{
		client:   httpclient.NewDefaultClient(cfg.GetTimeout()),
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		maxTries: uint(cfg.GetMaxRetries()), //nolint:gosec // validated to 1..10
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send posts alerts in a single request. 429, 5xx and transport errors are
// retried; other HTTP errors fail immediately.
func (s *AlertmanagerSink) Send(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	payload := make([]postableAlert, 0, len(alerts))
	for _, a := range alerts {
		payload = append(payload, postableAlert{
			Labels:      a.Labels,
			Annotations: a.Annotations,
			StartsAt:    a.StartsAt,
		})
	}

	url := s.baseURL + alertsPath
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		_, err := s.client.PostJSON(ctx, url, payload)
		if err == nil {
			return struct{}{}, nil
		}
		if !httpclient.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		slog.WarnContext(ctx, "Alert delivery failed, retrying",
			"url", url,
			"attempt", attempt,
			"error", err)
		return struct{}{}, err
	}, backoff.WithBackOff(s.newBackOff()), backoff.WithMaxTries(s.maxTries))
	if err != nil {
		return fmt.Errorf("failed to deliver %d alerts to %s: %w", len(alerts), url, err)
	}

	slog.InfoContext(ctx, "Delivered alerts", "url", url, "count", len(alerts))
	return nil
}

// Ready reports whether Alertmanager answers its readiness endpoint
func (s *AlertmanagerSink) Ready(ctx context.Context) error {
	if _, err := s.client.Get(ctx, s.baseURL+readyPath); err != nil {
		return fmt.Errorf("alertmanager not ready: %w", err)
	}
	return nil
}

// CheckVersion returns the Alertmanager version and fails when it predates
// the v2 alerts API
func (s *AlertmanagerSink) CheckVersion(ctx context.Context) (string, error) {
	body, err := s.client.Get(ctx, s.baseURL+statusPath)
	if err != nil {
		return "", fmt.Errorf("failed to read alertmanager status: %w", err)
	}

	var st amStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return "", fmt.Errorf("failed to decode alertmanager status: %w", err)
	}

	version := st.VersionInfo.Version
	if !versions.AtLeast(version, MinAlertmanagerVersion) {
		return version, fmt.Errorf("alertmanager %q does not serve the v2 API (need >= %s)",
			version, MinAlertmanagerVersion)
	}
	return version, nil
}
