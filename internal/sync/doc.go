// Package sync decides whether the consumers of an LDAP replication topology
// have caught up with their provider.
//
// # Evaluation
//
// Evaluate compares one provider contextCSN with one consumer contextCSN and
// returns a Finding tagged with a Reason:
//
//   - ReasonMissingCSN: either side could not be read. Never in sync.
//   - ReasonExactMatch: the raw CSN strings are identical. Lag is zero.
//   - ReasonWithinThreshold / ReasonExceedsThreshold: |lag| compared with the
//     configured threshold, where equality counts as in sync.
//   - ReasonNoThresholdConfigured: the CSNs differ and no threshold is set;
//     the NoThresholdPolicy decides the verdict (strict by default).
//
// Lag is provider time minus consumer time and keeps its sign, so a consumer
// whose clock runs ahead shows a negative lag.
//
// # Orchestration
//
// Orchestrator.Run reads the provider once, then checks every consumer
// through a bounded worker pool. A provider that cannot be reached or bound
// aborts the run with a *ConnectivityFailure and no findings. Consumer
// failures never abort the run; they become findings with
// ReasonConsumerUnreachable, ReasonMissingCSN or ReasonParseError.
//
// # Coordinator Package
//
// The sync/coordinator subpackage runs checks periodically for monitor mode,
// persists per-consumer status, records metrics and forwards alerts.
package sync
