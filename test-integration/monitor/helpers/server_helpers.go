package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	monitorapp "github.com/stacklok/ldap-sync-checker/internal/app"
	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/directory"
	"github.com/stacklok/ldap-sync-checker/internal/status"
)

// Server URIs used by WriteConfigYAML
const (
	ProviderURI  = "ldap://ldap-master:389"
	Replica1URI  = "ldap://ldap-replica-1:389"
	Replica2URI  = "ldap://ldap-replica-2:389"
	Replica1Name = "ldap-replica-1"
	Replica2Name = "ldap-replica-2"
)

// MonitorTestHelper manages the monitor lifecycle for testing
type MonitorTestHelper struct {
	ctx        context.Context
	configPath string
	statusDir  string
	dialer     directory.Dialer
	baseURL    string
	address    string
	httpClient *http.Client
	app        *monitorapp.MonitorApp
}

// NewMonitorTestHelper creates a helper that runs the monitor on a free
// loopback port against dialer
func NewMonitorTestHelper(
	ctx context.Context, configPath, statusDir string, dialer directory.Dialer,
) (*MonitorTestHelper, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to find a free port: %w", err)
	}
	address := listener.Addr().String()
	if err := listener.Close(); err != nil {
		return nil, err
	}

	return &MonitorTestHelper{
		ctx:        ctx,
		configPath: configPath,
		statusDir:  statusDir,
		dialer:     dialer,
		address:    address,
		baseURL:    "http://" + address,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// StartServer builds the monitor and starts it in the background
func (s *MonitorTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := monitorapp.NewMonitorApp(s.ctx,
		monitorapp.WithConfig(cfg),
		monitorapp.WithAddress(s.address),
		monitorapp.WithStatusDirectory(s.statusDir),
		monitorapp.WithDialer(s.dialer),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = app

	go func() {
		if err := app.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Monitor start failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the monitor
func (s *MonitorTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForReady waits until the first check has finished
func (s *MonitorTestHelper) WaitForReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("monitor returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 50*time.Millisecond).Should(gomega.Succeed(), "Monitor should be ready")
}

// Get makes a GET request to path
func (s *MonitorTestHelper) Get(path string) (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + path)
}

// GetConsumerStatus fetches /v1/status/{name}
func (s *MonitorTestHelper) GetConsumerStatus(name string) (*status.ConsumerStatus, error) {
	resp, err := s.Get("/v1/status/" + name)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status of %s returned %d", name, resp.StatusCode)
	}

	var st status.ConsumerStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

// WaitForPhase waits until the persisted phase of consumer is phase
func (s *MonitorTestHelper) WaitForPhase(consumer string, phase status.CheckPhase, timeout time.Duration) *status.ConsumerStatus {
	var st *status.ConsumerStatus
	gomega.Eventually(func() (status.CheckPhase, error) {
		var err error
		st, err = s.GetConsumerStatus(consumer)
		if err != nil {
			return "", err
		}
		return st.Phase, nil
	}, timeout, 50*time.Millisecond).Should(gomega.Equal(phase))
	return st
}

// WriteConfigYAML writes a two-consumer configuration that checks every
// interval and alerts to alertmanagerURL
func WriteConfigYAML(dir, alertmanagerURL string, interval time.Duration) string {
	content := fmt.Sprintf(`provider:
  name: ldap-master
  uri: %s
consumers:
  - name: %s
    uri: %s
  - name: %s
    uri: %s
baseDN: dc=example,dc=org
threshold: 5m
timeout: 2s
concurrency: 2
alerting:
  enabled: true
  alertmanager:
    url: %s
    maxRetries: 1
  labels:
    team: directory
  annotations:
    env: integration
monitor:
  interval: %s
`, ProviderURI, Replica1Name, Replica1URI, Replica2Name, Replica2URI, alertmanagerURL, interval)

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, []byte(content), 0600)).To(gomega.Succeed())
	return path
}
