package config

import (
	"time"
)

const (
	// DefaultAlertName is the alertname label of sync failure alerts
	DefaultAlertName = "LDAPSyncFailure"

	// DefaultAlertSeverity is used when no severity is configured
	DefaultAlertSeverity = "critical"

	// DefaultAlertmanagerTimeout bounds a single delivery attempt
	DefaultAlertmanagerTimeout = 5 * time.Second

	// DefaultAlertmanagerRetries is the number of delivery attempts
	DefaultAlertmanagerRetries = 3

	// DefaultMonitorInterval is the period between checks in monitor mode
	DefaultMonitorInterval = 5 * time.Minute

	// DefaultStatusDir holds per-consumer status files
	DefaultStatusDir = "./data/status"

	// DefaultMonitorAddress is the listen address of the monitor HTTP server
	DefaultMonitorAddress = ":9090"
)

// AlertingConfig defines alert delivery for out-of-sync consumers
type AlertingConfig struct {
	// Enabled turns alert delivery on
	Enabled bool `yaml:"enabled"`

	// Alertmanager configures delivery to Alertmanager's v2 API
	Alertmanager *AlertmanagerConfig `yaml:"alertmanager,omitempty"`

	// Name is the alertname label (default LDAPSyncFailure)
	Name string `yaml:"name,omitempty"`

	// Severity is the severity label (default critical)
	Severity string `yaml:"severity,omitempty" validate:"omitempty,oneof=critical warning info"`

	// Labels are added to every alert
	Labels map[string]string `yaml:"labels,omitempty"`

	// Annotations are added to every alert
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

// AlertmanagerConfig defines the Alertmanager endpoint
type AlertmanagerConfig struct {
	// URL is the Alertmanager base URL, e.g. http://alertmanager:9093
	URL string `yaml:"url" validate:"required,url"`

	// Timeout bounds a single delivery attempt
	Timeout Duration `yaml:"timeout,omitempty"`

	// MaxRetries is the total number of delivery attempts
	MaxRetries int `yaml:"maxRetries,omitempty" validate:"omitempty,min=1,max=10"`
}

// IsEnabled reports whether alerts should be delivered
func (a *AlertingConfig) IsEnabled() bool {
	return a != nil && a.Enabled
}

// GetName returns the alert name, using default if not specified
func (a *AlertingConfig) GetName() string {
	if a == nil || a.Name == "" {
		return DefaultAlertName
	}
	return a.Name
}

// GetSeverity returns the alert severity, using default if not specified
func (a *AlertingConfig) GetSeverity() string {
	if a == nil || a.Severity == "" {
		return DefaultAlertSeverity
	}
	return a.Severity
}

// GetTimeout returns the delivery timeout, using default if not specified
func (a *AlertmanagerConfig) GetTimeout() time.Duration {
	if a == nil || a.Timeout <= 0 {
		return DefaultAlertmanagerTimeout
	}
	return time.Duration(a.Timeout)
}

// GetMaxRetries returns the number of attempts, using default if not specified
func (a *AlertmanagerConfig) GetMaxRetries() int {
	if a == nil || a.MaxRetries <= 0 {
		return DefaultAlertmanagerRetries
	}
	return a.MaxRetries
}

// MonitorConfig defines the long-running monitor mode
type MonitorConfig struct {
	// Interval is the period between checks (default 5m)
	Interval Duration `yaml:"interval,omitempty"`

	// StatusDir is where per-consumer status files are written
	StatusDir string `yaml:"statusDir,omitempty"`

	// Address is the listen address of the HTTP server (default :9090)
	Address string `yaml:"address,omitempty"`
}

// GetInterval returns the check interval, using default if not specified
func (m *MonitorConfig) GetInterval() time.Duration {
	if m == nil || m.Interval <= 0 {
		return DefaultMonitorInterval
	}
	return time.Duration(m.Interval)
}

// GetStatusDir returns the status directory, using default if not specified
func (m *MonitorConfig) GetStatusDir() string {
	if m == nil || m.StatusDir == "" {
		return DefaultStatusDir
	}
	return m.StatusDir
}

// GetAddress returns the listen address, using default if not specified
func (m *MonitorConfig) GetAddress() string {
	if m == nil || m.Address == "" {
		return DefaultMonitorAddress
	}
	return m.Address
}
