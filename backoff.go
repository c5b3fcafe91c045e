package rdapclient

import "time"

// BackoffStrategy selects how calculateBackoff grows the delay between
// retries (§4.7).
type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear       BackoffStrategy = "linear"
	BackoffFixed        BackoffStrategy = "fixed"
)

// RetryPolicy configures the orchestrator's fetch-retry transition (§4.7,
// §6.4 retry section). Defaults match the spec's stated defaults.
type RetryPolicy struct {
	MaxAttempts int
	Strategy    BackoffStrategy
	InitialMs   int64
	MaxMs       int64
}

// DefaultRetryPolicy is max_attempts=3, exponential, initial=1000ms, max=10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Strategy: BackoffExponential, InitialMs: 1000, MaxMs: 10_000}
}

// calculateBackoff computes the delay that follows failed attempt (1-based),
// i.e. the wait before attempt+1, per §4.7. For
// a RateLimitError, retryAfterS is the parsed Retry-After value and the
// result is max(calculated, retryAfterS*1000ms); pass 0 for non-rate-limit
// errors.
func calculateBackoff(attempt int, p RetryPolicy, retryAfterS int) time.Duration {
	initial := p.InitialMs
	max := p.MaxMs
	if max <= 0 {
		max = 10_000
	}
	if initial <= 0 {
		initial = 1000
	}

	var ms int64
	switch p.Strategy {
	case BackoffLinear:
		ms = initial * int64(attempt)
	case BackoffFixed:
		ms = initial
	default: // exponential
		ms = initial
		for i := 1; i < attempt; i++ {
			ms *= 2
			if ms > max {
				break
			}
		}
	}
	if ms > max {
		ms = max
	}

	if floor := int64(retryAfterS) * 1000; floor > ms {
		ms = floor
	}
	return time.Duration(ms) * time.Millisecond
}
