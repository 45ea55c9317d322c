package llm

import (
	"math/rand"
	"time"
)

// RetryConfig bounds how hard the client leans on a single endpoint before
// moving down the capability's fallback chain.
type RetryConfig struct {
	// MaxAttempts is the attempt budget per endpoint, first try included.
	MaxAttempts int

	// BackoffBase is the wait before the second attempt.
	BackoffBase time.Duration

	// BackoffMultiplier grows the wait on each further attempt.
	BackoffMultiplier float64

	// MaxBackoff caps the wait regardless of attempt count.
	MaxBackoff time.Duration
}

// DefaultRetryConfig suits chapter-length completion calls: a few patient
// attempts with short waits, rather than many fast ones that would trip
// rate limits again.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// backoff returns the wait after the given 1-based attempt, exponentially
// grown and jittered up to 25% either way so parallel workers do not retry
// in lockstep.
func (rc RetryConfig) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= rc.BackoffMultiplier
	}

	d := time.Duration(float64(rc.BackoffBase) * multiplier)
	if d > rc.MaxBackoff {
		d = rc.MaxBackoff
	}

	jitter := float64(d) * 0.25 * (rand.Float64()*2 - 1)
	return d + time.Duration(jitter)
}
