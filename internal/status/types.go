package status

import (
	"errors"
	"time"

	"github.com/stacklok/ldap-sync-checker/internal/csn"
	"github.com/stacklok/ldap-sync-checker/internal/directory"
	"github.com/stacklok/ldap-sync-checker/internal/sync"
)

// CheckPhase represents the outcome of the latest check of a consumer
type CheckPhase string

const (
	// CheckPhaseInSync means the consumer matched the provider
	CheckPhaseInSync CheckPhase = "InSync"

	// CheckPhaseOutOfSync means the consumer lags beyond the allowed threshold
	CheckPhaseOutOfSync CheckPhase = "OutOfSync"

	// CheckPhaseUnreachable means the consumer could not be contacted or bound
	CheckPhaseUnreachable CheckPhase = "Unreachable"

	// CheckPhaseFailed means a CSN was missing or malformed on either side
	CheckPhaseFailed CheckPhase = "Failed"
)

// ConsumerStatus is the persisted state of one consumer
type ConsumerStatus struct {
	// Consumer is the display name of the consumer
	Consumer string `json:"consumer"`

	// URI is the consumer address
	URI string `json:"uri"`

	// Phase is the outcome of the latest check
	Phase CheckPhase `json:"phase"`

	// Reason is the finding reason of the latest check
	Reason string `json:"reason,omitempty"`

	// Message provides a human readable description of the latest check
	Message string `json:"message,omitempty"`

	// RunID identifies the run that produced this status
	RunID string `json:"runID,omitempty"`

	// LastCheck is the timestamp of the latest check
	LastCheck *time.Time `json:"lastCheck,omitempty"`

	// LastInSync is the timestamp of the latest check that was in sync
	LastInSync *time.Time `json:"lastInSync,omitempty"`

	// ConsecutiveFailures counts checks since the consumer was last in sync
	ConsecutiveFailures int `json:"consecutiveFailures,omitempty"`

	// LagSeconds is the provider minus consumer CSN time of the latest check
	LagSeconds *float64 `json:"lagSeconds,omitempty"`

	// ProviderCSN is the raw provider contextCSN of the latest check
	ProviderCSN string `json:"providerCSN,omitempty"`

	// ConsumerCSN is the raw consumer contextCSN of the latest check
	ConsumerCSN string `json:"consumerCSN,omitempty"`
}

// PhaseOf maps a finding to a check phase
func PhaseOf(f sync.Finding) CheckPhase {
	switch {
	case f.InSync:
		return CheckPhaseInSync
	case f.Reason == sync.ReasonConsumerUnreachable:
		return CheckPhaseUnreachable
	case f.Reason.IsFailure():
		return CheckPhaseFailed
	default:
		return CheckPhaseOutOfSync
	}
}

// Next returns the status that follows prev after a check produced f.
// prev may be nil for the first check.
func Next(prev *ConsumerStatus, f sync.Finding, runID string, at time.Time) *ConsumerStatus {
	next := &ConsumerStatus{
		Consumer:    f.Consumer.DisplayName(),
		URI:         f.Consumer.URI,
		Phase:       PhaseOf(f),
		Reason:      f.Reason.String(),
		Message:     f.Summary(),
		RunID:       runID,
		LastCheck:   &at,
		ProviderCSN: rawOf(f.ProviderCSN),
		ConsumerCSN: rawOf(f.ConsumerCSN),
	}
	if f.Lag != nil {
		secs := f.Lag.Seconds()
		next.LagSeconds = &secs
	}

	if prev != nil {
		next.LastInSync = prev.LastInSync
		next.ConsecutiveFailures = prev.ConsecutiveFailures
	}
	if f.InSync {
		next.LastInSync = &at
		next.ConsecutiveFailures = 0
	} else {
		next.ConsecutiveFailures++
	}
	return next
}

// ProviderFailed returns the status of a consumer after a run that aborted at
// the provider. The consumer was not contacted, so CSNs and lag are kept from prev.
func ProviderFailed(prev *ConsumerStatus, consumer string, uri string, err error, at time.Time) *ConsumerStatus {
	next := &ConsumerStatus{}
	if prev != nil {
		*next = *prev
	}
	next.Consumer = consumer
	next.URI = uri
	next.Phase = CheckPhaseFailed
	next.Reason = "provider-unavailable"
	next.Message = providerMessage(err)
	next.LastCheck = &at
	next.ConsecutiveFailures++
	return next
}

func providerMessage(err error) string {
	var authErr *directory.AuthError
	switch {
	case err == nil:
		return "provider unavailable"
	case errors.As(err, &authErr):
		return "provider bind failed: " + err.Error()
	default:
		return err.Error()
	}
}

func rawOf(v *csn.Value) string {
	if v == nil {
		return ""
	}
	return v.Raw
}
