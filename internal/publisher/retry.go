package publisher

import "time"

// Policy computes whether a failed attempt is retried and how long to
// wait before the next one. The schedule is deterministic on purpose:
// the delay is persisted into the post's scheduled_for, so the due-post
// scanner picks the retry up with no per-post timer.
type Policy struct {
	BaseDelay   time.Duration
	Multiplier  int
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultPolicy is the front-loaded schedule used in production:
// attempts at 0, 1m, 5m, 15m, then capped at 15m. Most transient
// network and rate-limit issues resolve within minutes.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   time.Minute,
		Multiplier:  5,
		MaxDelay:    15 * time.Minute,
		MaxAttempts: 4,
	}
}

// ShouldRetry reports whether another attempt is allowed after
// attemptNumber failures. maxRetries is the per-post budget; when it is
// zero the policy default applies. The caller must additionally check
// that the error itself is retryable.
func (p Policy) ShouldRetry(attemptNumber, maxRetries int) bool {
	budget := maxRetries
	if budget <= 0 {
		budget = p.MaxAttempts
	}
	return attemptNumber < budget
}

// DelayFor returns the backoff before attempt attemptNumber. Attempt 0
// is immediate; attempt N waits min(base * multiplier^(N-1), max).
func (p Policy) DelayFor(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return 0
	}

	delay := p.BaseDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= time.Duration(p.Multiplier)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
