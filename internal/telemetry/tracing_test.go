package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func tracedRouter(t *testing.T) (http.Handler, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	v1 := chi.NewRouter()
	v1.Get("/status/{consumer}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "consumer") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r := chi.NewRouter()
	r.Use(TracingMiddleware(tp))
	r.Mount("/v1", v1)
	return r, exporter
}

func TestTracingMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		wantCode codes.Code
	}{
		{name: "known consumer", path: "/v1/status/replica-1", wantCode: codes.Unset},
		{name: "unknown consumer", path: "/v1/status/missing", wantCode: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler, exporter := tracedRouter(t)
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, "GET /v1/status/{consumer}", spans[0].Name)
			assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind)
			assert.Equal(t, tt.wantCode, spans[0].Status.Code)
		})
	}
}

func TestTracingMiddleware_ContinuesCallerTrace(t *testing.T) {
	t.Parallel()

	handler, exporter := tracedRouter(t)

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/status/replica-2", nil)
	propagation.TraceContext{}.Inject(
		trace.ContextWithSpanContext(context.Background(), parent),
		propagation.HeaderCarrier(req.Header),
	)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, parent.TraceID(), spans[0].SpanContext.TraceID())
	assert.Equal(t, parent.SpanID(), spans[0].Parent.SpanID())
}

func TestTracingMiddleware_NilProvider(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	TracingMiddleware(nil)(statusHandler(http.StatusAccepted)).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
}
