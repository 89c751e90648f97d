// Package otel provides OpenTelemetry instrumentation utilities for the sync checker.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by every span the checker emits.
const (
	AttrRunID         = attribute.Key("ldapsync.run_id")
	AttrBaseDN        = attribute.Key("ldap.base_dn")
	AttrServerName    = attribute.Key("ldap.server.name")
	AttrServerURI     = attribute.Key("ldap.server.uri")
	AttrServerRole    = attribute.Key("ldap.server.role")
	AttrServerID      = attribute.Key("ldap.csn.server_id")
	AttrConsumerCount = attribute.Key("ldapsync.consumer_count")
	AttrInSync        = attribute.Key("ldapsync.in_sync")
	AttrReason        = attribute.Key("ldapsync.reason")
)

// StartSpan starts a span on tracer. A nil tracer yields the span already in
// ctx, which is a no-op span when tracing is off.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// ServerAttributes describes one directory server taking part in a check
func ServerAttributes(role, name, uri string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrServerRole.String(role),
		AttrServerName.String(name),
		AttrServerURI.String(uri),
	}
}

// VerdictAttributes describes the outcome of a consumer check
func VerdictAttributes(inSync bool, reason string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrInSync.Bool(inSync),
		AttrReason.String(reason),
	}
}

// RecordError marks span as failed. Nil span or nil err is a no-op.
// The status description stays generic so bind DNs and URIs only appear in
// the exception event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
