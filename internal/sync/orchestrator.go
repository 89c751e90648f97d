package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/csn"
	"github.com/stacklok/ldap-sync-checker/internal/directory"
	"github.com/stacklok/ldap-sync-checker/internal/otel"
)

const (
	roleProvider = "provider"
	roleConsumer = "consumer"
)

// Orchestrator reads the provider and every consumer and evaluates them
type Orchestrator struct {
	cfg         *config.Config
	dialer      directory.Dialer
	timeout     time.Duration
	concurrency int
	tracer      trace.Tracer
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTracer sets the tracer used for run and per-server spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// NewOrchestrator creates an Orchestrator for the given configuration
func NewOrchestrator(cfg *config.Config, dialer directory.Dialer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		dialer:      dialer,
		timeout:     cfg.GetTimeout(),
		concurrency: cfg.GetConcurrency(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Check runs one check over the configured topology
func (o *Orchestrator) Check(ctx context.Context) (*Result, error) {
	return o.Run(ctx, RequestFromConfig(o.cfg))
}

// Run checks every consumer of req against its provider.
//
// A provider that cannot be reached or bound returns a *ConnectivityFailure
// and a nil Result; no consumer is contacted. Otherwise Run returns one
// Finding per consumer, in request order.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || len(req.Consumers) == 0 {
		return nil, fmt.Errorf("at least one consumer is required")
	}

	runID := uuid.NewString()
	startedAt := time.Now()
	logger := slog.With("run_id", runID, "base_dn", req.BaseDN)

	ctx, span := otel.StartSpan(ctx, o.tracer, "sync.Run",
		trace.WithAttributes(
			otel.AttrRunID.String(runID),
			otel.AttrBaseDN.String(req.BaseDN),
			otel.AttrConsumerCount.Int(len(req.Consumers)),
		),
	)
	defer span.End()

	logger.InfoContext(ctx, "Starting sync check",
		"provider", req.Provider,
		"consumer_count", len(req.Consumers),
		"concurrency", o.concurrency)

	providerCSN, providerErr, err := o.readProvider(ctx, req)
	if err != nil {
		otel.RecordError(span, err)
		logger.ErrorContext(ctx, "Provider unavailable, aborting check",
			"provider", req.Provider,
			"error", err)
		return nil, &ConnectivityFailure{Provider: req.Provider, Err: err}
	}
	if providerErr != nil {
		logger.WarnContext(ctx, "Provider contextCSN unavailable, every consumer will fail",
			"provider", req.Provider,
			"error", providerErr)
	}

	findings := make([]Finding, len(req.Consumers))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, consumer := range req.Consumers {
		g.Go(func() error {
			findings[i] = o.checkConsumer(ctx, req, consumer, providerCSN, providerErr)
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		RunID:       runID,
		Provider:    req.Provider,
		ProviderCSN: providerCSN,
		ProviderErr: providerErr,
		Findings:    findings,
		InSync:      true,
		StartedAt:   startedAt,
		Duration:    time.Since(startedAt),
	}
	for _, f := range findings {
		if !f.InSync {
			result.InSync = false
		}
		logger.DebugContext(ctx, "Consumer evaluated",
			"consumer", f.Consumer,
			"in_sync", f.InSync,
			"reason", f.Reason.String())
	}

	span.SetAttributes(otel.AttrInSync.Bool(result.InSync))
	logger.InfoContext(ctx, "Sync check completed",
		"in_sync", result.InSync,
		"out_of_sync", len(result.OutOfSync()),
		"duration", result.Duration)

	return result, nil
}

// readProvider returns the provider CSN. A non-nil error means the provider
// could not be reached or bound and the run must stop. A read or parse
// failure is returned as providerErr and does not stop the run.
func (o *Orchestrator) readProvider(
	ctx context.Context, req *Request,
) (value *csn.Value, providerErr error, err error) {
	ctx, span := otel.StartSpan(ctx, o.tracer, "sync.readProvider",
		trace.WithAttributes(otel.ServerAttributes(roleProvider, req.Provider.DisplayName(), req.Provider.URI)...),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	dn, password := req.Provider.Credentials()
	session, err := directory.Connect(ctx, o.dialer, req.Provider.URI, dn, password)
	if err != nil {
		otel.RecordError(span, err)
		return nil, nil, err
	}
	defer closeSession(ctx, session, req.Provider)

	raw, err := directory.ReadCSN(ctx, session, req.BaseDN, req.ServerIDFor(req.Provider))
	if err != nil {
		if isConnectivity(err) {
			otel.RecordError(span, err)
			return nil, nil, err
		}
		otel.RecordError(span, err)
		return nil, fmt.Errorf("provider %s: %w", req.Provider.DisplayName(), err), nil
	}

	parsed, err := csn.Parse(raw)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("provider %s: %w", req.Provider.DisplayName(), err), nil
	}

	return &parsed, nil, nil
}

// checkConsumer produces the finding for a single consumer. It never fails;
// every error becomes part of the finding.
func (o *Orchestrator) checkConsumer(
	ctx context.Context,
	req *Request,
	consumer config.ServerDescriptor,
	providerCSN *csn.Value,
	providerErr error,
) Finding {
	ctx, span := otel.StartSpan(ctx, o.tracer, "sync.checkConsumer",
		trace.WithAttributes(otel.ServerAttributes(roleConsumer, consumer.DisplayName(), consumer.URI)...),
	)
	defer span.End()

	finding := o.evaluateConsumer(ctx, req, consumer, providerCSN, providerErr)
	finding.Consumer = consumer

	span.SetAttributes(otel.VerdictAttributes(finding.InSync, finding.Reason.String())...)
	otel.RecordError(span, finding.Err)
	return finding
}

func (o *Orchestrator) evaluateConsumer(
	ctx context.Context,
	req *Request,
	consumer config.ServerDescriptor,
	providerCSN *csn.Value,
	providerErr error,
) Finding {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	dn, password := consumer.Credentials()
	session, err := directory.Connect(ctx, o.dialer, consumer.URI, dn, password)
	if err != nil {
		return Finding{ProviderCSN: providerCSN, Reason: ReasonConsumerUnreachable, Err: err}
	}
	defer closeSession(ctx, session, consumer)

	raw, err := directory.ReadCSN(ctx, session, req.BaseDN, req.ServerIDFor(consumer))
	if err != nil {
		reason := ReasonMissingCSN
		if isConnectivity(err) {
			reason = ReasonConsumerUnreachable
		}
		return Finding{ProviderCSN: providerCSN, Reason: reason, Err: err}
	}

	parsed, err := csn.Parse(raw)
	if err != nil {
		return Finding{ProviderCSN: providerCSN, Reason: ReasonParseError, Err: err}
	}
	consumerCSN := &parsed

	if providerErr != nil {
		reason := ReasonMissingCSN
		var parseErr *csn.ParseError
		if errors.As(providerErr, &parseErr) {
			reason = ReasonParseError
		}
		return Finding{ConsumerCSN: consumerCSN, Reason: reason, Err: providerErr}
	}

	return Evaluate(providerCSN, consumerCSN, req.Threshold, req.Policy)
}

func closeSession(ctx context.Context, session directory.Session, server config.ServerDescriptor) {
	if err := session.Close(); err != nil {
		slog.DebugContext(ctx, "Failed to unbind session", "server", server, "error", err)
	}
}

func isConnectivity(err error) bool {
	var connErr *directory.ConnectivityError
	return errors.As(err, &connErr)
}
