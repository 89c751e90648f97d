package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordingTracer(t *testing.T) (trace.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp.Tracer("ldapsync-test"), exporter
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestStartSpan(t *testing.T) {
	t.Parallel()

	t.Run("nil tracer keeps the parent span", func(t *testing.T) {
		t.Parallel()

		tracer, _ := recordingTracer(t)
		parentCtx, parent := tracer.Start(context.Background(), "sync.Run")
		defer parent.End()

		ctx, span := StartSpan(parentCtx, nil, "sync.checkConsumer")
		assert.Equal(t, parentCtx, ctx)
		assert.Equal(t, parent.SpanContext(), span.SpanContext())
	})

	t.Run("nil tracer without parent is a no-op", func(t *testing.T) {
		t.Parallel()

		_, span := StartSpan(context.Background(), nil, "sync.Run")
		assert.False(t, span.SpanContext().IsValid())
		assert.NotPanics(t, func() { span.End() })
	})

	t.Run("child of the run span", func(t *testing.T) {
		t.Parallel()

		tracer, exporter := recordingTracer(t)
		runCtx, run := StartSpan(context.Background(), tracer, "sync.Run",
			trace.WithAttributes(AttrRunID.String("run-1"), AttrConsumerCount.Int(2)))
		_, check := StartSpan(runCtx, tracer, "sync.checkConsumer",
			trace.WithAttributes(ServerAttributes("consumer", "replica-1", "ldap://replica-1:389")...))
		check.End()
		run.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)
		assert.Equal(t, "sync.checkConsumer", spans[0].Name)
		assert.Equal(t, "sync.Run", spans[1].Name)
		assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())

		attrs := attrMap(spans[0].Attributes)
		assert.Equal(t, "consumer", attrs[AttrServerRole].AsString())
		assert.Equal(t, "replica-1", attrs[AttrServerName].AsString())
		assert.Equal(t, "ldap://replica-1:389", attrs[AttrServerURI].AsString())

		runAttrs := attrMap(spans[1].Attributes)
		assert.Equal(t, "run-1", runAttrs[AttrRunID].AsString())
		assert.Equal(t, int64(2), runAttrs[AttrConsumerCount].AsInt64())
	})
}

func TestVerdictAttributes(t *testing.T) {
	t.Parallel()

	attrs := attrMap(VerdictAttributes(false, "beyond-threshold"))
	assert.False(t, attrs[AttrInSync].AsBool())
	assert.Equal(t, "beyond-threshold", attrs[AttrReason].AsString())
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantCode   codes.Code
		wantEvents int
	}{
		{
			name:     "nil error leaves status unset",
			wantCode: codes.Unset,
		},
		{
			name:       "bind failure",
			err:        errors.New("bind cn=monitor,dc=example,dc=org: invalid credentials"),
			wantCode:   codes.Error,
			wantEvents: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tracer, exporter := recordingTracer(t)
			_, span := tracer.Start(context.Background(), "sync.readProvider")
			RecordError(span, tt.err)
			span.End()

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantCode, spans[0].Status.Code)
			require.Len(t, spans[0].Events, tt.wantEvents)
			if tt.wantEvents > 0 {
				assert.Equal(t, "exception", spans[0].Events[0].Name)
				assert.Equal(t, "operation failed", spans[0].Status.Description)
				assert.NotContains(t, spans[0].Status.Description, "cn=monitor")
			}
		})
	}

	assert.NotPanics(t, func() { RecordError(nil, errors.New("unreachable")) })
}
