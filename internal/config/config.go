// Package config provides configuration loading and management for the LDAP sync checker.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/ldap-sync-checker/internal/telemetry"
)

const (
	// EnvPrefix is the prefix for environment variables read through viper
	EnvPrefix = "LDAPSYNC"

	// PasswordEnvVar holds the bind password when no password or passwordFile is configured
	PasswordEnvVar = "LDAPSYNC_BIND_PASSWORD"

	// DefaultTimeout bounds dial, bind and search against one server
	DefaultTimeout = 10 * time.Second

	// DefaultConcurrency checks consumers one at a time
	DefaultConcurrency = 1

	// MaxServerID is the largest server id representable in a CSN
	MaxServerID = 4095
)

// NoThresholdPolicy decides how a CSN mismatch is classified when no
// threshold is configured
type NoThresholdPolicy string

const (
	// NoThresholdStrict treats any mismatch as out of sync
	NoThresholdStrict NoThresholdPolicy = "strict"

	// NoThresholdLenient treats any mismatch as in sync
	NoThresholdLenient NoThresholdPolicy = "lenient"
)

var (
	validate    = validator.New()
	namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	keyReplacer = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Provider is the authoritative server every consumer is compared against
	Provider ServerDescriptor `yaml:"provider"`

	// Consumers are the replicas to check, in evaluation order
	Consumers []ServerDescriptor `yaml:"consumers" validate:"required,min=1,dive"`

	// BaseDN is the naming context whose contextCSN is compared
	BaseDN string `yaml:"baseDN" validate:"required"`

	// Bind holds the default credentials for servers without their own bind block
	Bind *BindConfig `yaml:"bind,omitempty"`

	// Threshold is the largest tolerated lag. Accepts a Go duration ("10m")
	// or an integer number of seconds. Unset means no threshold.
	Threshold *Duration `yaml:"threshold,omitempty"`

	// NoThresholdPolicy applies when Threshold is unset (default strict)
	NoThresholdPolicy NoThresholdPolicy `yaml:"noThresholdPolicy,omitempty" validate:"omitempty,oneof=strict lenient"`

	// ServerID selects the contextCSN value of one master in multi-master setups
	ServerID *int `yaml:"serverID,omitempty" validate:"omitempty,min=0,max=4095"`

	// Timeout bounds each directory operation (default 10s)
	Timeout Duration `yaml:"timeout,omitempty"`

	// Concurrency is the number of consumers checked in parallel (default 1)
	Concurrency int `yaml:"concurrency,omitempty" validate:"omitempty,min=1,max=64"`

	TLS       *TLSConfig        `yaml:"tls,omitempty"`
	Alerting  *AlertingConfig   `yaml:"alerting,omitempty"`
	Monitor   *MonitorConfig    `yaml:"monitor,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// ServerDescriptor identifies a directory endpoint
type ServerDescriptor struct {
	// Name is a short label used in logs, alerts and status files.
	// Defaults to the URI without its scheme.
	Name string `yaml:"name,omitempty" json:"name,omitempty" validate:"omitempty,max=63"`

	// URI is the server address (ldap://, ldaps:// or ldapi://)
	URI string `yaml:"uri" json:"uri" validate:"required"`

	// ServerID selects which contextCSN value is read from this server,
	// overriding the top-level serverID
	ServerID *int `yaml:"serverID,omitempty" json:"serverID,omitempty" validate:"omitempty,min=0,max=4095"`

	// Bind overrides the global bind credentials for this server
	Bind *BindConfig `yaml:"bind,omitempty" json:"-"`
}

// DisplayName returns Name, or the URI with its scheme stripped
func (s ServerDescriptor) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if i := strings.Index(s.URI, "//"); i >= 0 {
		return s.URI[i+2:]
	}
	return s.URI
}

// Key returns a filesystem and label safe identifier for the server
func (s ServerDescriptor) Key() string {
	return strings.Trim(keyReplacer.ReplaceAllString(s.DisplayName(), "_"), "_")
}

// Credentials returns the bind DN and resolved password. Both are empty for
// an anonymous bind.
func (s ServerDescriptor) Credentials() (string, string) {
	if s.Bind == nil {
		return "", ""
	}
	return s.Bind.DN, s.Bind.Password
}

// LogValue keeps credentials out of structured logs
func (s ServerDescriptor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", s.DisplayName()),
		slog.String("uri", s.URI),
	)
}

// BindConfig defines simple-bind credentials
type BindConfig struct {
	// DN is the bind DN. Empty means anonymous bind.
	DN string `yaml:"dn,omitempty"`

	// Password is the bind password. Prefer PasswordFile outside of development.
	Password string `yaml:"password,omitempty" json:"-"`

	// PasswordFile is the path to a file containing only the password
	PasswordFile string `yaml:"passwordFile,omitempty"`
}

// GetPassword returns the bind password using the following priority:
// 1. Password if set inline
// 2. Read from PasswordFile if specified
// 3. Read from the LDAPSYNC_BIND_PASSWORD environment variable
//
// Anonymous binds (empty DN) need no password.
func (b *BindConfig) GetPassword() (string, error) {
	if b.Password != "" {
		return b.Password, nil
	}

	if b.PasswordFile != "" {
		cleanPath := filepath.Clean(b.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", b.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(PasswordEnvVar); envPassword != "" {
		return envPassword, nil
	}

	if b.DN == "" {
		return "", nil
	}

	return "", fmt.Errorf(
		"no bind password configured for %s: set password, passwordFile or %s environment variable",
		b.DN, PasswordEnvVar,
	)
}

// TLSConfig defines transport security for directory connections
type TLSConfig struct {
	// StartTLS upgrades ldap:// connections
	StartTLS bool `yaml:"startTLS,omitempty"`

	// CAFile is a PEM bundle used to verify server certificates
	CAFile string `yaml:"caFile,omitempty"`

	// InsecureSkipVerify disables certificate verification (testing only)
	InsecureSkipVerify bool `yaml:"insecureSkipVerify,omitempty"`
}

// Build returns the crypto/tls configuration, or nil when nothing is customised
func (t *TLSConfig) Build() (*tls.Config, error) {
	if t == nil || (t.CAFile == "" && !t.InsecureSkipVerify) {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		//nolint:gosec // G402: explicitly requested by configuration
		InsecureSkipVerify: t.InsecureSkipVerify,
	}

	if t.CAFile != "" {
		pem, err := os.ReadFile(filepath.Clean(t.CAFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", t.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in CA file %s", t.CAFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// LoadConfig loads, validates and resolves configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes, validates and resolves configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := config.resolveCredentials(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if err := validate.Struct(c); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return err
		}
		for _, fe := range validationErrs {
			errs = append(errs, fmt.Errorf("%s: failed '%s' validation", fe.Namespace(), fe.Tag()))
		}
	}

	seen := make(map[string]bool)
	servers := append([]ServerDescriptor{c.Provider}, c.Consumers...)
	for i, server := range servers {
		prefix := "provider"
		if i > 0 {
			prefix = fmt.Sprintf("consumers[%d]", i-1)
		}
		if err := validateServer(server, prefix); err != nil {
			errs = append(errs, err)
			continue
		}
		key := server.Key()
		if seen[key] {
			errs = append(errs, fmt.Errorf("%s: duplicate server name '%s'", prefix, server.DisplayName()))
		}
		seen[key] = true
	}

	if c.Threshold != nil && *c.Threshold < 0 {
		errs = append(errs, fmt.Errorf("threshold must not be negative"))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative"))
	}
	if c.Monitor != nil && c.Monitor.Interval < 0 {
		errs = append(errs, fmt.Errorf("monitor.interval must not be negative"))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// validateServer checks the URI scheme and name of a single server
func validateServer(server ServerDescriptor, prefix string) error {
	if server.URI == "" {
		return fmt.Errorf("%s: uri is required", prefix)
	}
	u, err := url.Parse(server.URI)
	if err != nil {
		return fmt.Errorf("%s: invalid uri: %w", prefix, err)
	}
	switch u.Scheme {
	case "ldap", "ldaps", "ldapi":
	default:
		return fmt.Errorf("%s: uri scheme must be ldap, ldaps or ldapi, got '%s'", prefix, u.Scheme)
	}
	if server.Name != "" && !namePattern.MatchString(server.Name) {
		return fmt.Errorf("%s: name '%s' may only contain letters, digits, '.', '_' and '-'", prefix, server.Name)
	}
	// the key names the server's status directory
	if strings.Trim(server.Key(), ".") == "" {
		return fmt.Errorf("%s: '%s' is not usable as a server name, set name", prefix, server.DisplayName())
	}
	return nil
}

// resolveCredentials inherits the global bind block and reads passwords so
// every descriptor carries ready-to-use credentials
func (c *Config) resolveCredentials() error {
	resolve := func(server *ServerDescriptor) error {
		if server.Bind == nil {
			server.Bind = c.Bind
		}
		if server.Bind == nil {
			return nil
		}
		password, err := server.Bind.GetPassword()
		if err != nil {
			return fmt.Errorf("%s: %w", server.DisplayName(), err)
		}
		server.Bind.Password = password
		return nil
	}

	if err := resolve(&c.Provider); err != nil {
		return err
	}
	for i := range c.Consumers {
		if err := resolve(&c.Consumers[i]); err != nil {
			return err
		}
	}
	return nil
}

// Overrides carries values supplied on the command line
type Overrides struct {
	Threshold         *time.Duration
	ServerID          *int
	Concurrency       int
	NoThresholdPolicy string
}

// ApplyOverrides merges command-line values into the configuration and
// re-validates it
func (c *Config) ApplyOverrides(o Overrides) error {
	if o.Threshold != nil {
		d := Duration(*o.Threshold)
		c.Threshold = &d
	}
	if o.ServerID != nil {
		id := *o.ServerID
		c.ServerID = &id
	}
	if o.Concurrency > 0 {
		c.Concurrency = o.Concurrency
	}
	if o.NoThresholdPolicy != "" {
		c.NoThresholdPolicy = NoThresholdPolicy(o.NoThresholdPolicy)
	}
	return c.Validate()
}

// ThresholdDuration returns the configured threshold, or nil if unset
func (c *Config) ThresholdDuration() *time.Duration {
	if c.Threshold == nil {
		return nil
	}
	d := time.Duration(*c.Threshold)
	return &d
}

// GetNoThresholdPolicy returns the policy, defaulting to strict
func (c *Config) GetNoThresholdPolicy() NoThresholdPolicy {
	if c.NoThresholdPolicy == "" {
		return NoThresholdStrict
	}
	return c.NoThresholdPolicy
}

// GetTimeout returns the per-operation timeout, defaulting to DefaultTimeout
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return time.Duration(c.Timeout)
}

// GetConcurrency returns the consumer worker count, defaulting to 1
func (c *Config) GetConcurrency() int {
	if c.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return c.Concurrency
}

// Duration is a time.Duration that unmarshals from either a Go duration
// string or an integer number of seconds
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	parsed, err := ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// largest whole number of seconds a time.Duration holds
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

// ParseDuration accepts "600" (seconds) or any time.ParseDuration string
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	switch {
	case err == nil && (secs > maxDurationSeconds || secs < -maxDurationSeconds),
		errors.Is(err, strconv.ErrRange):
		return 0, fmt.Errorf("duration '%s' is out of range", s)
	case err == nil:
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration '%s': use seconds or a duration like '10m'", s)
	}
	return d, nil
}
