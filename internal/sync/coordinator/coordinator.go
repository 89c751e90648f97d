package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/ldap-sync-checker/internal/alert"
	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/status"
	pkgsync "github.com/stacklok/ldap-sync-checker/internal/sync"
	"github.com/stacklok/ldap-sync-checker/internal/telemetry"
)

// Coordinator runs replication checks on an interval and publishes their outcome
type Coordinator interface {
	// Start runs a check immediately and then on every interval.
	// Blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop stops the loop and waits for the running check to finish
	Stop() error

	// CheckOnce runs a single check, persists per-consumer status, records
	// metrics and sends alerts
	CheckOnce(ctx context.Context) (*pkgsync.Result, error)

	// LastResult returns the latest completed result and the error of the
	// latest check. Both are nil before the first check.
	LastResult() (*pkgsync.Result, error)

	// Ready reports whether at least one check has finished
	Ready() bool
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	checker     pkgsync.Checker
	persistence status.StatusPersistence
	config      *config.Config

	sink     alert.Sink
	builder  *alert.Builder
	metrics  *telemetry.CheckMetrics
	interval time.Duration
	now      func() time.Time

	// Lifecycle management
	cancelFunc context.CancelFunc
	done       chan struct{}

	mu         sync.RWMutex
	lastResult *pkgsync.Result
	lastErr    error
	checked    bool
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithCheckMetrics sets the metrics recorded after every check
func WithCheckMetrics(metrics *telemetry.CheckMetrics) Option {
	return func(c *defaultCoordinator) {
		c.metrics = metrics
	}
}

// WithSink sets the alert sink. Alerts are dropped when no sink is set.
func WithSink(sink alert.Sink) Option {
	return func(c *defaultCoordinator) {
		c.sink = sink
	}
}

// WithInterval overrides the configured check interval
func WithInterval(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// New creates a new coordinator with injected dependencies
func New(
	checker pkgsync.Checker,
	persistence status.StatusPersistence,
	cfg *config.Config,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		checker:     checker,
		persistence: persistence,
		config:      cfg,
		sink:        alert.NopSink{},
		builder:     alert.NewBuilder(cfg.Alerting),
		interval:    cfg.Monitor.GetInterval(),
		now:         time.Now,
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start begins the check loop
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("Starting sync monitor",
		"provider", c.config.Provider.DisplayName(),
		"consumer_count", len(c.config.Consumers),
		"interval", c.interval)

	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() {
		close(c.done)
		slog.Info("Sync monitor shutting down")
	}()

	ticker := time.NewTicker(nextInterval(c.interval))
	defer ticker.Stop()

	c.runCheck(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.runCheck(coordCtx)

			// New jitter for the next iteration
			ticker.Reset(nextInterval(c.interval))
		case <-coordCtx.Done():
			slog.Info("Sync monitor stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	if c.cancelFunc != nil {
		slog.Info("Stopping sync monitor")
		c.cancelFunc()
		<-c.done
	}
	return nil
}

// LastResult returns the latest result and error
func (c *defaultCoordinator) LastResult() (*pkgsync.Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastResult, c.lastErr
}

// Ready reports whether a check has finished
func (c *defaultCoordinator) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checked
}

// runCheck is CheckOnce for the loop, where the error is only logged
func (c *defaultCoordinator) runCheck(ctx context.Context) {
	if _, err := c.CheckOnce(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Sync check failed", "error", err)
	}
}

// CheckOnce executes one check and publishes its outcome
func (c *defaultCoordinator) CheckOnce(ctx context.Context) (*pkgsync.Result, error) {
	startTime := c.now()

	result, err := c.checker.Check(ctx)
	duration := time.Since(startTime)

	if err != nil {
		var connErr *pkgsync.ConnectivityFailure
		if errors.As(err, &connErr) {
			c.handleProviderFailure(ctx, connErr, startTime)
			c.metrics.RecordCheck(ctx, duration, telemetry.OutcomeProviderFailure)
		} else {
			c.metrics.RecordCheck(ctx, duration, telemetry.OutcomeError)
		}
		c.setLast(nil, err)
		return nil, err
	}

	c.persistFindings(ctx, result)

	for _, f := range result.Findings {
		c.metrics.RecordFinding(ctx, f.Consumer.Key(), f.Reason.String(), f.InSync, f.Lag)
	}

	outcome := telemetry.OutcomeInSync
	if !result.InSync {
		outcome = telemetry.OutcomeOutOfSync
	}
	c.metrics.RecordCheck(ctx, duration, outcome)

	c.sendAlerts(ctx, c.builder.ForResult(result))

	slog.InfoContext(ctx, "Sync check completed",
		"run_id", result.RunID,
		"in_sync", result.InSync,
		"out_of_sync", len(result.OutOfSync()),
		"duration", duration)

	c.setLast(result, nil)
	return result, nil
}

func (c *defaultCoordinator) setLast(result *pkgsync.Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if result != nil {
		c.lastResult = result
	}
	c.lastErr = err
	c.checked = true
}

// persistFindings updates the status of every checked consumer. Persistence
// errors are logged and do not fail the check.
func (c *defaultCoordinator) persistFindings(ctx context.Context, result *pkgsync.Result) {
	at := result.StartedAt
	if at.IsZero() {
		at = c.now()
	}

	for _, f := range result.Findings {
		key := f.Consumer.Key()
		prev, err := c.persistence.LoadStatus(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "Failed to load consumer status, starting fresh",
				"consumer", key,
				"error", err)
			prev = nil
		}

		if err := c.persistence.SaveStatus(ctx, key, status.Next(prev, f, result.RunID, at)); err != nil {
			slog.ErrorContext(ctx, "Failed to save consumer status",
				"consumer", key,
				"error", err)
		}
	}
}

// handleProviderFailure marks every consumer failed and raises the provider alert
func (c *defaultCoordinator) handleProviderFailure(
	ctx context.Context, connErr *pkgsync.ConnectivityFailure, at time.Time,
) {
	slog.ErrorContext(ctx, "Provider unavailable, consumers not checked",
		"provider", connErr.Provider.DisplayName(),
		"error", connErr.Err)

	for _, consumer := range c.config.Consumers {
		key := consumer.Key()
		prev, err := c.persistence.LoadStatus(ctx, key)
		if err != nil {
			prev = nil
		}
		next := status.ProviderFailed(prev, consumer.DisplayName(), consumer.URI, connErr.Err, at)
		if err := c.persistence.SaveStatus(ctx, key, next); err != nil {
			slog.ErrorContext(ctx, "Failed to save consumer status",
				"consumer", key,
				"error", err)
		}
	}

	c.sendAlerts(ctx, []alert.Alert{c.builder.ForProviderFailure(connErr.Provider, connErr.Err, at)})
}

func (c *defaultCoordinator) sendAlerts(ctx context.Context, alerts []alert.Alert) {
	if len(alerts) == 0 {
		return
	}

	err := c.sink.Send(ctx, alerts)
	c.metrics.RecordAlerts(ctx, len(alerts), err == nil)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to send alerts",
			"count", len(alerts),
			"error", err)
	}
}
