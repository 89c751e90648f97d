package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/directory"
	servicemocks "github.com/stacklok/ldap-sync-checker/internal/service/mocks"
	"github.com/stacklok/ldap-sync-checker/internal/telemetry"
)

func TestWithAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{name: "port only", address: ":9090"},
		{name: "localhost", address: "localhost:9090"},
		{name: "ip and port", address: "127.0.0.1:8080"},
		{name: "empty", address: "", wantErr: true},
		{name: "missing port", address: ":", wantErr: true},
		{name: "no colon", address: "9090", wantErr: true},
		{name: "bad host", address: "not-an-ip:9090", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &monitorAppConfig{}
			err := WithAddress(tt.address)(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.address, cfg.address)
		})
	}
}

func TestBaseConfig(t *testing.T) {
	t.Parallel()

	_, err := baseConfig()
	assert.Error(t, err)

	cfg, err := baseConfig(WithConfig(createTestAppConfig()))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultMonitorAddress, cfg.address)
	assert.Equal(t, config.DefaultStatusDir, cfg.statusDir)
	assert.Equal(t, defaultRequestTimeout, cfg.requestTimeout)

	appCfg := createTestAppConfig()
	appCfg.Monitor.Address = ":9999"
	appCfg.Monitor.StatusDir = "/var/lib/ldapsync"
	cfg, err = baseConfig(WithConfig(appCfg), WithStatusDirectory("/tmp/status"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.address)
	assert.Equal(t, "/tmp/status", cfg.statusDir)
}

func TestNewDialer(t *testing.T) {
	t.Parallel()

	cfg := createTestAppConfig()
	dialer, err := NewDialer(cfg)
	require.NoError(t, err)
	assert.IsType(t, &directory.LDAPDialer{}, dialer)

	cfg.TLS = &config.TLSConfig{CAFile: filepath.Join(t.TempDir(), "missing.pem")}
	_, err = NewDialer(cfg)
	assert.Error(t, err)
}

func TestBuildHTTPServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		telemetry   *telemetry.Config
		wantMetrics int
	}{
		{
			name:        "no telemetry",
			wantMetrics: http.StatusNotFound,
		},
		{
			name: "prometheus exporter",
			telemetry: &telemetry.Config{
				Enabled: true,
				Metrics: &telemetry.MetricsConfig{Enabled: true, Exporter: telemetry.ExporterPrometheus},
			},
			wantMetrics: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(tt.telemetry))
			require.NoError(t, err)
			t.Cleanup(func() { _ = tel.Shutdown(ctx) })

			ctrl := gomock.NewController(t)
			svc := servicemocks.NewMockStatusService(ctrl)

			b, err := baseConfig(WithConfig(createTestAppConfig()), WithTelemetry(tel), WithAddress(":8080"))
			require.NoError(t, err)

			server, err := buildHTTPServer(ctx, b, svc)
			require.NoError(t, err)
			assert.Equal(t, ":8080", server.Addr)
			assert.Equal(t, defaultWriteTimeout, server.WriteTimeout)

			rec := httptest.NewRecorder()
			server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, rec.Code)

			rec = httptest.NewRecorder()
			server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			assert.Equal(t, tt.wantMetrics, rec.Code)
		})
	}
}

func TestCheckAlertmanager(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		ready       int
		wantVersion string
		wantErr     string
	}{
		{name: "ready", ready: http.StatusOK, wantVersion: "0.27.0"},
		{name: "not ready", ready: http.StatusServiceUnavailable, wantErr: "alertmanager not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/-/ready":
					w.WriteHeader(tt.ready)
				case "/api/v2/status":
					_, _ = w.Write([]byte(`{"versionInfo":{"version":"0.27.0"}}`))
				default:
					w.WriteHeader(http.StatusNotFound)
				}
			}))
			t.Cleanup(server.Close)

			version, err := checkAlertmanager(context.Background(),
				&config.AlertmanagerConfig{URL: server.URL, MaxRetries: 1})
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}
