// Package retry implements the jittered exponential backoff policy of
// spec.md §7 (default 3 attempts, initial 1s, factor 2, jitter ±20%),
// generalized from the bounded per-worker backoff loop in
// internal/orchestrator/kafka.go so every capability adapter can share it.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/vertigo15/docengine/internal/errs"
)

// Policy configures a retry loop.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Factor      float64
	Jitter      float64 // fraction, e.g. 0.2 for ±20%
}

// Default is the policy named in spec.md §7: up to 3 attempts, 1s initial
// delay, factor 2, jitter ±20%.
var Default = Policy{
	MaxAttempts: 3,
	Initial:     1 * time.Second,
	Factor:      2,
	Jitter:      0.2,
}

// Delay returns the backoff delay before attempt (1-based) under p, with
// jitter applied.
func (p Policy) Delay(attempt int) time.Duration {
	base := float64(p.Initial) * pow(p.Factor, float64(attempt-1))
	if p.Jitter > 0 {
		j := 1 + (rand.Float64()*2-1)*p.Jitter
		base *= j
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

func pow(base, exp float64) float64 {
	out := 1.0
	for i := 0; i < int(exp); i++ {
		out *= base
	}
	return out
}

// Do calls fn up to p.MaxAttempts times, retrying only while the error is
// TransientExternal or RateLimited (errs.IsRetryable), sleeping p.Delay
// between attempts. On exhaustion or a non-retryable error it returns the
// last error unwrapped, matching spec.md §7's "on exhaustion, surface as a
// stage failure."
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errs.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}
	return lastErr
}
