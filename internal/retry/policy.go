// Package retry computes backoff delays for failed sync work. The same policy
// governs item-level retries and whole-batch retries so operator-visible
// behavior stays consistent.
package retry

import (
	"time"

	"github.com/storesync/storesync/internal/domain"
)

const (
	DefaultBaseDelay  = 30 * time.Second
	DefaultMaxDelay   = 3600 * time.Second
	DefaultMaxRetries = 5
)

// Policy holds the exponential backoff parameters.
type Policy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// Default returns the stock policy: 30s base, 1h cap, 5 attempts.
// Produces delays 30s, 60s, 120s, 240s, 480s before giving up.
func Default() Policy {
	return Policy{
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		MaxRetries: DefaultMaxRetries,
	}
}

// FromConfig builds a policy from the sync configuration, falling back to
// defaults for unset values.
func FromConfig(cfg domain.SyncConfig) Policy {
	p := Default()
	if cfg.RetryBaseDelaySeconds > 0 {
		p.BaseDelay = time.Duration(cfg.RetryBaseDelaySeconds) * time.Second
	}
	if cfg.RetryMaxDelaySeconds > 0 {
		p.MaxDelay = time.Duration(cfg.RetryMaxDelaySeconds) * time.Second
	}
	if cfg.RetryMaxAttempts > 0 {
		p.MaxRetries = cfg.RetryMaxAttempts
	}
	return p
}

// Delay returns the backoff before the given 1-based attempt:
// min(maxDelay, baseDelay * 2^(attempt-1)). Attempts <= 0 return the base
// delay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return p.BaseDelay
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// NextAttemptAt returns the earliest time the given attempt may run.
func (p Policy) NextAttemptAt(now time.Time, attempt int) time.Time {
	return now.Add(p.Delay(attempt))
}

// Exhausted reports whether retryCount has used up the retry budget.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxRetries
}
