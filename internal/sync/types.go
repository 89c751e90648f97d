package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/csn"
	"github.com/stacklok/ldap-sync-checker/internal/directory"
)

// Reason explains how a Finding was classified
type Reason int

// Reason values
const (
	ReasonUnknown Reason = iota
	ReasonExactMatch
	ReasonWithinThreshold
	ReasonExceedsThreshold
	ReasonNoThresholdConfigured
	ReasonMissingCSN
	ReasonParseError
	ReasonConsumerUnreachable
)

var reasonNames = map[Reason]string{
	ReasonUnknown:               "unknown",
	ReasonExactMatch:            "exact-match",
	ReasonWithinThreshold:       "within-threshold",
	ReasonExceedsThreshold:      "exceeds-threshold",
	ReasonNoThresholdConfigured: "no-threshold-configured",
	ReasonMissingCSN:            "missing-csn",
	ReasonParseError:            "parse-error",
	ReasonConsumerUnreachable:   "consumer-unreachable",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// MarshalText implements encoding.TextMarshaler
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// IsFailure reports whether the reason describes a read or connection problem
// rather than a comparison of two CSNs
func (r Reason) IsFailure() bool {
	switch r {
	case ReasonMissingCSN, ReasonParseError, ReasonConsumerUnreachable, ReasonUnknown:
		return true
	default:
		return false
	}
}

// Finding is the verdict for one consumer
type Finding struct {
	Consumer    config.ServerDescriptor
	ProviderCSN *csn.Value
	ConsumerCSN *csn.Value
	// Lag is provider time minus consumer time; nil when it could not be computed
	Lag    *time.Duration
	InSync bool
	Reason Reason
	// Err is the read, bind or parse failure behind a failed finding
	Err error
}

type findingJSON struct {
	Consumer    string   `json:"consumer"`
	URI         string   `json:"uri"`
	InSync      bool     `json:"inSync"`
	Reason      Reason   `json:"reason"`
	ProviderCSN string   `json:"providerCSN,omitempty"`
	ConsumerCSN string   `json:"consumerCSN,omitempty"`
	LagSeconds  *float64 `json:"lagSeconds,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// MarshalJSON renders the finding with raw CSNs and lag in seconds
func (f Finding) MarshalJSON() ([]byte, error) {
	out := findingJSON{
		Consumer: f.Consumer.DisplayName(),
		URI:      f.Consumer.URI,
		InSync:   f.InSync,
		Reason:   f.Reason,
	}
	if f.ProviderCSN != nil {
		out.ProviderCSN = f.ProviderCSN.Raw
	}
	if f.ConsumerCSN != nil {
		out.ConsumerCSN = f.ConsumerCSN.Raw
	}
	if f.Lag != nil {
		secs := f.Lag.Seconds()
		out.LagSeconds = &secs
	}
	if f.Err != nil {
		out.Error = f.Err.Error()
	}
	return json.Marshal(out)
}

// Summary is a one-line human description of the finding
func (f Finding) Summary() string {
	name := f.Consumer.DisplayName()
	switch f.Reason {
	case ReasonExactMatch:
		return fmt.Sprintf("%s is in sync", name)
	case ReasonWithinThreshold:
		return fmt.Sprintf("%s lags %s, within threshold", name, f.lagString())
	case ReasonExceedsThreshold:
		return fmt.Sprintf("%s lags %s, exceeding threshold", name, f.lagString())
	case ReasonNoThresholdConfigured:
		return fmt.Sprintf("%s differs from provider by %s and no threshold is configured", name, f.lagString())
	case ReasonConsumerUnreachable:
		return fmt.Sprintf("%s is unreachable: %v", name, f.Err)
	case ReasonMissingCSN:
		if f.Err != nil && !directory.IsNotFound(f.Err) {
			return fmt.Sprintf("contextCSN of %s could not be read: %v", name, f.Err)
		}
		return fmt.Sprintf("contextCSN missing for %s: %v", name, f.Err)
	case ReasonParseError:
		return fmt.Sprintf("contextCSN of %s could not be parsed: %v", name, f.Err)
	default:
		return fmt.Sprintf("%s: %s", name, f.Reason)
	}
}

func (f Finding) lagString() string {
	if f.Lag == nil {
		return "an unknown amount"
	}
	return f.Lag.String()
}

// Result is the outcome of one run over the whole topology
type Result struct {
	RunID       string                  `json:"runID"`
	Provider    config.ServerDescriptor `json:"provider"`
	ProviderCSN *csn.Value              `json:"providerCSN,omitempty"`
	// ProviderErr is a non-fatal failure reading the provider CSN
	ProviderErr error         `json:"-"`
	Findings    []Finding     `json:"findings"`
	InSync      bool          `json:"inSync"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
}

// OutOfSync returns the findings that are not in sync, in consumer order
func (r *Result) OutOfSync() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if !f.InSync {
			out = append(out, f)
		}
	}
	return out
}

// ConnectivityFailure aborts a run when the provider cannot be reached or bound
type ConnectivityFailure struct {
	Provider config.ServerDescriptor
	Err      error
}

func (e *ConnectivityFailure) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider.DisplayName(), e.Err)
}

func (e *ConnectivityFailure) Unwrap() error {
	return e.Err
}

// IsConnectivityFailure reports whether err aborted a run at the provider
func IsConnectivityFailure(err error) bool {
	var cf *ConnectivityFailure
	return errors.As(err, &cf)
}

// Request describes one run
type Request struct {
	Provider  config.ServerDescriptor
	Consumers []config.ServerDescriptor
	BaseDN    string
	Threshold *time.Duration
	ServerID  *int
	Policy    config.NoThresholdPolicy
}

// RequestFromConfig builds a Request from loaded configuration
func RequestFromConfig(cfg *config.Config) *Request {
	return &Request{
		Provider:  cfg.Provider,
		Consumers: cfg.Consumers,
		BaseDN:    cfg.BaseDN,
		Threshold: cfg.ThresholdDuration(),
		ServerID:  cfg.ServerID,
		Policy:    cfg.GetNoThresholdPolicy(),
	}
}

// ServerIDFor returns the server id whose contextCSN value is read from
// server: the server's own serverID when set, else the run-wide one
func (r *Request) ServerIDFor(server config.ServerDescriptor) *int {
	if server.ServerID != nil {
		return server.ServerID
	}
	return r.ServerID
}

// Checker runs a check over the configured topology
//
//go:generate mockgen -destination=mocks/mock_checker.go -package=mocks github.com/stacklok/ldap-sync-checker/internal/sync Checker
type Checker interface {
	// Check runs one check with the configuration the checker was built with
	Check(ctx context.Context) (*Result, error)
}
