package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// HTTPMetricsMeterName is the name used for the HTTP metrics meter
	HTTPMetricsMeterName = "github.com/stacklok/ldap-sync-checker/http"

	unknownRoute = "unknown_route"
)

// Scrapes of these routes are not recorded
var unmeasuredRoutes = map[string]bool{
	"/metrics": true,
	"/health":  true,
}

// httpInstruments records the monitor API traffic
type httpInstruments struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
}

func newHTTPInstruments(provider metric.MeterProvider) (*httpInstruments, error) {
	meter := provider.Meter(HTTPMetricsMeterName)

	duration, err := meter.Float64Histogram(
		"ldapsync_http_request_duration_seconds",
		metric.WithDescription("Duration of monitor API requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, err
	}

	requests, err := meter.Int64Counter(
		"ldapsync_http_requests_total",
		metric.WithDescription("Monitor API requests by route and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &httpInstruments{duration: duration, requests: requests}, nil
}

// MetricsMiddleware records request count and latency per chi route pattern.
// A nil provider yields a pass-through middleware.
func MetricsMiddleware(provider metric.MeterProvider) (func(http.Handler) http.Handler, error) {
	if provider == nil {
		return func(next http.Handler) http.Handler { return next }, nil
	}

	inst, err := newHTTPInstruments(provider)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := routePattern(r)
			if unmeasuredRoutes[route] {
				return
			}

			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", route),
				attribute.String("status_code", strconv.Itoa(ww.Status())),
			)
			inst.duration.Record(r.Context(), time.Since(start).Seconds(), attrs)
			inst.requests.Add(r.Context(), 1, attrs)
		})
	}, nil
}

// routePattern returns the matched chi pattern ("/v1/status/{consumer}") so
// consumer names do not become label values
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unknownRoute
}
