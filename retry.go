package samplepool

import (
	"math/rand/v2"
	"time"
)

// Outcome classifies a failed transfer attempt for retry purposes.
type Outcome int

const (
	// OutcomeOK is a successful transfer
	OutcomeOK Outcome = iota
	// OutcomeRateLimited is an origin telling us to slow down
	OutcomeRateLimited
	// OutcomeTransient is a failure worth retrying soon, such as a
	// timeout, a connection error, or a server-side 5xx
	OutcomeTransient
	// OutcomeTerminal is a failure more attempts will not fix
	OutcomeTerminal
)

// String implements the Stringer interface
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRateLimited:
		return "rate-limited"
	case OutcomeTransient:
		return "transient"
	case OutcomeTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Retryable reports whether this outcome permits another attempt.
func (o Outcome) Retryable() bool {
	return o == OutcomeRateLimited || o == OutcomeTransient
}

// RetryPolicy decides whether and when a failed attempt is retried.
// The policy is a pure value, it performs no waiting itself. Attempt
// indices start at zero.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget per URL
	MaxAttempts int
	// BaseDelay seeds the backoff curve
	BaseDelay time.Duration
	// MaxDelay caps the backoff curve
	MaxDelay time.Duration
	// JitterMax bounds the flat random pad added to every delay,
	// zero disables jitter entirely
	JitterMax time.Duration
}

// DefaultRetryPolicy returns the policy tuned for rate-limited audio
// origins: one second doubling to a thirty second ceiling, up to six
// attempts, with up to half a second of jitter so concurrent fetchers
// do not stampede in lockstep.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 6,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		JitterMax:   500 * time.Millisecond,
	}
}

// NextDelay returns the wait before retrying the given zero-based
// attempt index, and whether a retry is permitted at all. Rate-limited
// failures back off exponentially toward MaxDelay, transient failures
// wait a flat BaseDelay, and terminal failures are never retried.
func (p RetryPolicy) NextDelay(attempt int, outcome Outcome) (time.Duration, bool) {
	if attempt < 0 || attempt >= p.MaxAttempts {
		return 0, false
	}

	switch outcome {
	case OutcomeRateLimited:
		delay := p.MaxDelay
		// Guard the shift, large attempt indices would overflow.
		if attempt < 31 {
			if d := p.BaseDelay << uint(attempt); d > 0 && d < p.MaxDelay {
				delay = d
			}
		}
		return delay + p.jitter(), true
	case OutcomeTransient:
		return p.BaseDelay + p.jitter(), true
	default:
		return 0, false
	}
}

func (p RetryPolicy) jitter() time.Duration {
	if p.JitterMax <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(p.JitterMax)))
}
