package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	alertmocks "github.com/stacklok/ldap-sync-checker/internal/alert/mocks"
	v1 "github.com/stacklok/ldap-sync-checker/internal/api/v1"
	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/status"
	pkgsync "github.com/stacklok/ldap-sync-checker/internal/sync"
	syncmocks "github.com/stacklok/ldap-sync-checker/internal/sync/mocks"
)

// createTestAppConfig creates a minimal valid config for testing
func createTestAppConfig() *config.Config {
	return &config.Config{
		Provider: config.ServerDescriptor{Name: "master", URI: "ldap://master:389"},
		Consumers: []config.ServerDescriptor{
			{Name: "replica-1", URI: "ldap://replica-1:389"},
			{Name: "replica-2", URI: "ldap://replica-2:389"},
		},
		BaseDN: "dc=example,dc=com",
		Monitor: &config.MonitorConfig{
			Interval: config.Duration(time.Hour),
		},
	}
}

func inSyncResult(cfg *config.Config) *pkgsync.Result {
	lag := time.Duration(0)
	result := &pkgsync.Result{
		RunID:     "run-1",
		Provider:  cfg.Provider,
		InSync:    true,
		StartedAt: time.Now(),
	}
	for _, c := range cfg.Consumers {
		result.Findings = append(result.Findings, pkgsync.Finding{
			Consumer: c,
			InSync:   true,
			Reason:   pkgsync.ReasonExactMatch,
			Lag:      &lag,
		})
	}
	return result
}

// freeAddress returns a loopback address with a port that was free a moment ago
func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func createTestApp(t *testing.T, ctrl *gomock.Controller, addr string) *MonitorApp {
	t.Helper()

	cfg := createTestAppConfig()
	checker := syncmocks.NewMockChecker(ctrl)
	checker.EXPECT().Check(gomock.Any()).Return(inSyncResult(cfg), nil).AnyTimes()
	sink := alertmocks.NewMockSink(ctrl)
	sink.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	app, err := NewMonitorApp(context.Background(),
		WithConfig(cfg),
		WithAddress(addr),
		WithChecker(checker),
		WithSink(sink),
		WithStatusDirectory(t.TempDir()),
	)
	require.NoError(t, err)
	return app
}

func TestMonitorApp_ServesStatus(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	addr := freeAddress(t)
	app := createTestApp(t, ctrl, addr)

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/readiness")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list v1.StatusListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 2, list.Total)
	for _, st := range list.Consumers {
		assert.Equal(t, status.CheckPhaseInSync, st.Phase)
	}

	require.NoError(t, app.Stop(5*time.Second))

	select {
	case startErr := <-errChan:
		require.NoError(t, startErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestMonitorApp_StopWithoutStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	app := createTestApp(t, ctrl, ":0")

	require.NoError(t, app.Stop(time.Second))
	assert.Equal(t, "replica-1", app.GetConfig().Consumers[0].Name)
	assert.Equal(t, ":0", app.GetHTTPServer().Addr)
}
