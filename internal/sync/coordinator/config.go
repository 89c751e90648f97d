package coordinator

import (
	"math/rand/v2"
	"time"
)

// jitterFraction bounds the random offset applied to the check interval
const jitterFraction = 10

// nextInterval returns base with a random offset of up to ±base/10, so that
// several monitors checking the same topology do not bind at the same instant
func nextInterval(base time.Duration) time.Duration {
	jitter := base / jitterFraction
	if jitter <= 0 {
		return base
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for scheduling jitter
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return base + offset
}
