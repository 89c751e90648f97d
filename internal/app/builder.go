package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/ldap-sync-checker/internal/alert"
	"github.com/stacklok/ldap-sync-checker/internal/api"
	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/directory"
	"github.com/stacklok/ldap-sync-checker/internal/service"
	"github.com/stacklok/ldap-sync-checker/internal/status"
	pkgsync "github.com/stacklok/ldap-sync-checker/internal/sync"
	"github.com/stacklok/ldap-sync-checker/internal/sync/coordinator"
	"github.com/stacklok/ldap-sync-checker/internal/telemetry"
)

const (
	// TracerName names the tracer used for sync check spans
	TracerName = "github.com/stacklok/ldap-sync-checker/sync"

	defaultRequestTimeout    = 10 * time.Second
	defaultReadTimeout       = 10 * time.Second
	defaultWriteTimeout      = 15 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	alertmanagerCheckTimeout = 5 * time.Second
)

// MonitorAppOptions is a function that configures the monitor app builder
type MonitorAppOptions func(*monitorAppConfig) error

// monitorAppConfig collects what NewMonitorApp needs. Unset components are
// built from config; tests inject their own.
type monitorAppConfig struct {
	config *config.Config

	// Optional component overrides
	dialer      directory.Dialer
	checker     pkgsync.Checker
	sink        alert.Sink
	persistence status.StatusPersistence
	telemetry   *telemetry.Telemetry

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	statusDir string
}

func baseConfig(opts ...MonitorAppOptions) (*monitorAppConfig, error) {
	cfg := &monitorAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.Monitor.GetAddress()
	}
	if cfg.statusDir == "" {
		cfg.statusDir = cfg.config.Monitor.GetStatusDir()
	}

	return cfg, nil
}

// NewMonitorApp builds a MonitorApp from configuration
func NewMonitorApp(
	ctx context.Context,
	opts ...MonitorAppOptions,
) (*MonitorApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if cfg.telemetry == nil {
		cfg.telemetry, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.config.Telemetry))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	syncCoordinator, err := buildSyncComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	statusService := service.NewStatusService(syncCoordinator, cfg.persistence, cfg.config.Consumers)

	httpServer, err := buildHTTPServer(ctx, cfg, statusService)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &MonitorApp{
		config: cfg.config,
		components: &AppComponents{
			Coordinator:   syncCoordinator,
			StatusService: statusService,
			Telemetry:     cfg.telemetry,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) MonitorAppOptions {
	return func(cfg *monitorAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) MonitorAppOptions {
	return func(cfg *monitorAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) MonitorAppOptions {
	return func(cfg *monitorAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStatusDirectory sets where per-consumer status files are written
func WithStatusDirectory(dir string) MonitorAppOptions {
	return func(cfg *monitorAppConfig) error {
		cfg.statusDir = dir
		return nil
	}
}

// WithDialer sets the directory dialer used by the default checker
func WithDialer(d directory.Dialer) MonitorAppOptions {
	return func(cfg *monitorAppConfig) error {
		cfg.dialer = d
		return nil
	}
}

// WithChecker allows injecting a custom checker (for testing)
func WithChecker(c pkgsync.Checker) MonitorAppOptions {
	return func(cfg *monitorAppConfig) error {
		cfg.checker = c
		return nil
	}
}

// WithSink allows injecting a custom alert sink (for testing)
func WithSink(s alert.Sink) MonitorAppOptions {
	return func(cfg *monitorAppConfig) error {
		cfg.sink = s
		return nil
	}
}

// WithTelemetry uses already initialized telemetry providers
func WithTelemetry(t *telemetry.Telemetry) MonitorAppOptions {
	return func(cfg *monitorAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// NewDialer builds the LDAP dialer described by the TLS and timeout settings
func NewDialer(cfg *config.Config) (directory.Dialer, error) {
	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		return nil, err
	}
	return directory.NewLDAPDialer(
		directory.WithTimeout(cfg.GetTimeout()),
		directory.WithTLSConfig(tlsCfg),
		directory.WithStartTLS(cfg.TLS != nil && cfg.TLS.StartTLS),
	), nil
}

// buildSyncComponents builds the checker, persistence, sink and coordinator
func buildSyncComponents(
	ctx context.Context,
	b *monitorAppConfig,
) (coordinator.Coordinator, error) {
	slog.Info("Initializing sync components")

	if b.checker == nil {
		if b.dialer == nil {
			dialer, err := NewDialer(b.config)
			if err != nil {
				return nil, fmt.Errorf("failed to create dialer: %w", err)
			}
			b.dialer = dialer
		}
		b.checker = pkgsync.NewOrchestrator(b.config, b.dialer,
			pkgsync.WithTracer(b.telemetry.Tracer(TracerName)))
	}

	if b.persistence == nil {
		if err := os.MkdirAll(b.statusDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create status directory: %w", err)
		}
		b.persistence = status.NewFileStatusPersistence(b.statusDir)
	}

	if b.sink == nil {
		sink, err := alert.NewSink(b.config.Alerting, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create alert sink: %w", err)
		}
		b.sink = sink
		logAlertmanagerStatus(ctx, b.config.Alerting)
	}

	coordOpts := []coordinator.Option{coordinator.WithSink(b.sink)}

	checkMetrics, err := telemetry.NewCheckMetrics(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create check metrics: %w", err)
	}
	if checkMetrics != nil {
		coordOpts = append(coordOpts, coordinator.WithCheckMetrics(checkMetrics))
	}

	syncCoordinator := coordinator.New(b.checker, b.persistence, b.config, coordOpts...)
	slog.Info("Sync components initialized successfully",
		"status_dir", b.statusDir,
		"interval", b.config.Monitor.GetInterval())

	return syncCoordinator, nil
}

// logAlertmanagerStatus logs whether the configured Alertmanager can take
// alerts. Failures are warnings; delivery is retried on every check.
func logAlertmanagerStatus(ctx context.Context, cfg *config.AlertingConfig) {
	if !cfg.IsEnabled() || cfg.Alertmanager == nil {
		return
	}
	version, err := checkAlertmanager(ctx, cfg.Alertmanager)
	if err != nil {
		slog.Warn("Alertmanager check failed", "url", cfg.Alertmanager.URL, "error", err)
		return
	}
	slog.Info("Alertmanager reachable", "url", cfg.Alertmanager.URL, "version", version)
}

// checkAlertmanager waits for the readiness endpoint and then returns the
// Alertmanager version
func checkAlertmanager(ctx context.Context, cfg *config.AlertmanagerConfig) (string, error) {
	am, err := alert.NewAlertmanagerSink(cfg)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, alertmanagerCheckTimeout)
	defer cancel()

	if err := am.Ready(ctx); err != nil {
		return "", err
	}
	return am.CheckVersion(ctx)
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *monitorAppConfig,
	svc service.StatusService,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	if b.telemetry != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{
			telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
			metricsMiddleware,
		}, b.middlewares...)
	}

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if b.telemetry != nil {
		if h := b.telemetry.MetricsHandler(); h != nil {
			serverOpts = append(serverOpts, api.WithMetricsHandler(h))
			slog.Info("Prometheus metrics endpoint enabled", "path", "/metrics")
		}
	}
	router := api.NewServer(svc, serverOpts...)

	server := &http.Server{
		Addr:              b.address,
		Handler:           router,
		ReadTimeout:       b.readTimeout,
		ReadHeaderTimeout: b.readTimeout,
		WriteTimeout:      b.writeTimeout,
		IdleTimeout:       b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
