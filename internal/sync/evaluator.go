package sync

import (
	"time"

	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/csn"
)

// Evaluate classifies a consumer CSN against the provider CSN.
//
// A nil threshold means none is configured; policy then decides whether a
// mismatch is in sync. An empty policy is strict. The returned Finding has no
// Consumer set.
func Evaluate(provider, consumer *csn.Value, threshold *time.Duration, policy config.NoThresholdPolicy) Finding {
	finding := Finding{
		ProviderCSN: provider,
		ConsumerCSN: consumer,
	}

	if provider == nil || consumer == nil {
		finding.Reason = ReasonMissingCSN
		return finding
	}

	if provider.Raw == consumer.Raw {
		lag := time.Duration(0)
		finding.Lag = &lag
		finding.InSync = true
		finding.Reason = ReasonExactMatch
		return finding
	}

	lag := provider.Timestamp.Sub(consumer.Timestamp)
	finding.Lag = &lag

	if threshold == nil {
		finding.Reason = ReasonNoThresholdConfigured
		finding.InSync = policy == config.NoThresholdLenient
		return finding
	}

	if absDuration(lag) <= *threshold {
		finding.InSync = true
		finding.Reason = ReasonWithinThreshold
	} else {
		finding.Reason = ReasonExceedsThreshold
	}
	return finding
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
