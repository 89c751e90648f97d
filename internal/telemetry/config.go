// Package telemetry provides OpenTelemetry instrumentation for the sync checker.
// Traces are exported over OTLP; metrics over OTLP, a Prometheus scrape
// endpoint, or both.
package telemetry

import (
	"errors"
	"fmt"
)

// Defaults applied to the telemetry section of the checker configuration
const (
	DefaultServiceName = "ldap-sync-checker"
	DefaultEndpoint    = "localhost:4318"
	// Checks run every few minutes, so every run is sampled
	DefaultSampling = 1.0
)

// Metric exporters
const (
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
	ExporterBoth       = "both"
)

// Config is the telemetry section of the checker configuration
type Config struct {
	// Enabled turns every provider on or off. Disabled means no-op providers.
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the OTLP/HTTP collector as host:port; the exporters append
	// /v1/traces and /v1/metrics
	Endpoint string `yaml:"endpoint,omitempty"`
	// Insecure sends OTLP over plain HTTP
	Insecure bool `yaml:"insecure,omitempty"`
	// Headers are sent with every OTLP export, e.g. collector credentials
	Headers map[string]string `yaml:"headers,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls check run spans
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Sampling is the ratio of check runs traced, in [0, 1]. Zero means default.
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig controls check and HTTP metrics
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter selects "otlp" (default), "prometheus" or "both".
	// Prometheus metrics are served on the monitor server's /metrics.
	Exporter string `yaml:"exporter,omitempty"`
}

// IsEnabled reports whether metrics are configured and enabled
func (c *MetricsConfig) IsEnabled() bool {
	return c != nil && c.Enabled
}

// GetExporter returns the exporter, defaulting to OTLP
func (c *MetricsConfig) GetExporter() string {
	if c == nil || c.Exporter == "" {
		return ExporterOTLP
	}
	return c.Exporter
}

// UsesOTLP reports whether metrics are pushed to the OTLP endpoint
func (c *MetricsConfig) UsesOTLP() bool {
	e := c.GetExporter()
	return e == ExporterOTLP || e == ExporterBoth
}

// UsesPrometheus reports whether metrics are exposed for scraping
func (c *MetricsConfig) UsesPrometheus() bool {
	e := c.GetExporter()
	return e == ExporterPrometheus || e == ExporterBoth
}

func (c *Config) GetServiceName() string {
	if c.ServiceName != "" {
		return c.ServiceName
	}
	return DefaultServiceName
}

// GetServiceVersion returns the configured version or "unknown"
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion != "" {
		return c.ServiceVersion
	}
	return "unknown"
}

func (c *Config) GetEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return DefaultEndpoint
}

func (c *Config) GetInsecure() bool {
	return c.Insecure
}

// GetSampling returns the sampling ratio. An unset value and an explicit 0
// look the same in YAML, so 0 means DefaultSampling.
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling != 0 {
		return c.Sampling
	}
	return DefaultSampling
}

// Validate checks the enabled sections; nil or disabled telemetry is valid
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	return errors.Join(errs...)
}

func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.Sampling < 0 || c.Sampling > 1 {
		return fmt.Errorf("sampling must be between 0.0 and 1.0, got %f", c.Sampling)
	}
	return nil
}

func (c *MetricsConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	switch c.GetExporter() {
	case ExporterOTLP, ExporterPrometheus, ExporterBoth:
		return nil
	default:
		return fmt.Errorf("exporter must be one of otlp, prometheus, both, got %q", c.Exporter)
	}
}
