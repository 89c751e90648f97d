// Package httpclient is the small JSON-over-HTTP client used for Alertmanager
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stacklok/ldap-sync-checker/internal/versions"
)

const (
	// DefaultTimeout bounds a whole request when no timeout is configured
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize caps how much of a response body is read
	MaxResponseSize = 1 << 20

	// error bodies longer than this are left out of HTTPError messages
	maxErrorBody = 512
)

// UserAgent is sent with every request
var UserAgent = versions.UserAgent()

// Client talks JSON to an HTTP API
type Client interface {
	Get(ctx context.Context, url string) ([]byte, error)
	// PostJSON encodes body as JSON and POSTs it
	PostJSON(ctx context.Context, url string, body any) ([]byte, error)
}

// DefaultClient implements Client over net/http
type DefaultClient struct {
	client *http.Client
}

// NewDefaultClient returns a Client whose requests time out after timeout,
// or DefaultTimeout when timeout is zero
func NewDefaultClient(timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DefaultClient{client: &http.Client{Timeout: timeout}}
}

func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	return c.send(ctx, http.MethodGet, url, nil)
}

func (c *DefaultClient) PostJSON(ctx context.Context, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.send(ctx, http.MethodPost, url, payload)
}

func (c *DefaultClient) send(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// one extra byte tells a body at the limit from one beyond it
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, NewHTTPError(resp.StatusCode, url, describe(resp.Status, body))
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// describe appends a short error body to the status line
func describe(status string, body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || len(body) > maxErrorBody {
		return status
	}
	return status + ": " + string(body)
}
