package httpclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/ldap-sync-checker/internal/httpclient"
)

// newTestServer creates a new test server with keep-alives disabled.
// This prevents flaky tests when running in parallel, as closing a server
// with keep-alives enabled can affect other tests sharing the HTTP transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestDefaultClient_Get(t *testing.T) {
	t.Parallel()

	var receivedUserAgent, receivedAccept string
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUserAgent = r.Header.Get("User-Agent")
		receivedAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))
	defer server.Close()

	data, err := httpclient.NewDefaultClient(5*time.Second).Get(context.Background(), server.URL+"/-/ready")
	require.NoError(t, err)
	assert.Equal(t, []byte("OK"), data)
	assert.Equal(t, httpclient.UserAgent, receivedUserAgent)
	assert.Equal(t, "application/json", receivedAccept)
}

func TestDefaultClient_PostJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Labels map[string]string `json:"labels"`
	}

	var (
		receivedMethod      string
		receivedContentType string
		received            []payload
	)
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := httpclient.NewDefaultClient(0).PostJSON(context.Background(), server.URL+"/api/v2/alerts",
		[]payload{{Labels: map[string]string{"alertname": "LDAPSyncFailure"}}})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, receivedMethod)
	assert.Equal(t, "application/json", receivedContentType)
	require.Len(t, received, 1)
	assert.Equal(t, "LDAPSyncFailure", received[0].Labels["alertname"])
}

func TestDefaultClient_HTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		responseBody  string
		wantRetryable bool
		errorContains string
	}{
		{
			name:          "400 Bad Request carries the body",
			statusCode:    http.StatusBadRequest,
			responseBody:  `{"code":400,"message":"start time must be before end time"}`,
			errorContains: "start time must be before end time",
		},
		{
			name:          "404 Not Found",
			statusCode:    http.StatusNotFound,
			errorContains: "HTTP 404",
		},
		{
			name:          "429 Too Many Requests",
			statusCode:    http.StatusTooManyRequests,
			wantRetryable: true,
			errorContains: "HTTP 429",
		},
		{
			name:          "503 Service Unavailable",
			statusCode:    http.StatusServiceUnavailable,
			wantRetryable: true,
			errorContains: "HTTP 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			_, err := httpclient.NewDefaultClient(5*time.Second).PostJSON(context.Background(), server.URL, []string{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)

			var httpErr *httpclient.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.statusCode, httpErr.StatusCode)
			assert.Equal(t, tt.wantRetryable, httpclient.IsRetryable(err))
		})
	}
}

func TestDefaultClient_NetworkError(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := httpclient.NewDefaultClient(time.Second).Get(context.Background(), url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute request")
	assert.True(t, httpclient.IsRetryable(err))
}

func TestDefaultClient_ContextCancellation(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := httpclient.NewDefaultClient(5*time.Second).Get(ctx, server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultClient_SizeLimitExceeded(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Repeat("x", httpclient.MaxResponseSize+10)))
	}))
	defer server.Close()

	_, err := httpclient.NewDefaultClient(5*time.Second).Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum allowed size")
}

func TestHTTPError(t *testing.T) {
	t.Parallel()

	err := httpclient.NewHTTPError(502, "http://alertmanager:9093/api/v2/alerts", "502 Bad Gateway")
	assert.Equal(t, "HTTP 502 for URL http://alertmanager:9093/api/v2/alerts: 502 Bad Gateway", err.Error())
	assert.True(t, httpclient.IsRetryable(err))
	assert.False(t, httpclient.IsRetryable(nil))
	assert.False(t, httpclient.IsRetryable(httpclient.NewHTTPError(401, "u", "Unauthorized")))
}
