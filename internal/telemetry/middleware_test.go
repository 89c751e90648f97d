package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func statusHandler(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}

// requestCounts collects ldapsync_http_requests_total data points
func requestCounts(t *testing.T, reader *sdkmetric.ManualReader) []metricdata.DataPoint[int64] {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != HTTPMetricsMeterName {
			continue
		}
		for _, m := range scope.Metrics {
			if m.Name == "ldapsync_http_requests_total" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				return sum.DataPoints
			}
		}
	}
	return nil
}

func TestMetricsMiddleware_RecordsRoutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pattern    string
		path       string
		status     int
		wantRoute  string
		wantStatus string
	}{
		{
			name:       "status list",
			pattern:    "/v1/status",
			path:       "/v1/status",
			status:     http.StatusOK,
			wantRoute:  "/v1/status",
			wantStatus: "200",
		},
		{
			name:       "route pattern instead of consumer name",
			pattern:    "/v1/status/{consumer}",
			path:       "/v1/status/replica-1",
			status:     http.StatusNotFound,
			wantRoute:  "/v1/status/{consumer}",
			wantStatus: "404",
		},
		{
			name:       "not ready",
			pattern:    "/readiness",
			path:       "/readiness",
			status:     http.StatusServiceUnavailable,
			wantRoute:  "/readiness",
			wantStatus: "503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			defer func() { _ = mp.Shutdown(context.Background()) }()

			mw, err := MetricsMiddleware(mp)
			require.NoError(t, err)

			r := chi.NewRouter()
			r.Use(mw)
			r.Get(tt.pattern, statusHandler(tt.status))

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rr.Code)

			points := requestCounts(t, reader)
			require.Len(t, points, 1)

			attrs := points[0].Attributes
			route, _ := attrs.Value(attribute.Key("route"))
			assert.Equal(t, tt.wantRoute, route.AsString())
			status, _ := attrs.Value(attribute.Key("status_code"))
			assert.Equal(t, tt.wantStatus, status.AsString())
			method, _ := attrs.Value(attribute.Key("method"))
			assert.Equal(t, http.MethodGet, method.AsString())
		})
	}
}

func TestMetricsMiddleware_SkipsScrapes(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	mw, err := MetricsMiddleware(mp)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(mw)
	r.Get("/metrics", statusHandler(http.StatusOK))
	r.Get("/health", statusHandler(http.StatusOK))

	for _, path := range []string{"/metrics", "/health"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Empty(t, requestCounts(t, reader))
}

func TestMetricsMiddleware_PassThrough(t *testing.T) {
	t.Parallel()

	mw, err := MetricsMiddleware(nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	mw(statusHandler(http.StatusCreated)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusCreated, rr.Code)

	mw, err = MetricsMiddleware(noop.NewMeterProvider())
	require.NoError(t, err)
	rr = httptest.NewRecorder()
	mw(statusHandler(http.StatusOK)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRoutePattern(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/status/replica-1", nil)
	assert.Equal(t, unknownRoute, routePattern(req))

	var pattern string
	r := chi.NewRouter()
	r.Get("/v1/status/{consumer}", func(_ http.ResponseWriter, r *http.Request) {
		pattern = routePattern(r)
	})
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "/v1/status/{consumer}", pattern)
}
