package retry

import (
	"context"
	"time"
)

// Attempt carries the per-attempt context a caller's operation needs:
// the zero-based attempt number and, on a prior HTTP failure, the
// status and any Retry-After header seen.
type Attempt struct {
	Number       int
	LastStatus   int
	LastRetryMS  *uint64
}

// Outcome is what an operation reports back to Do after one attempt.
type Outcome struct {
	// Retryable is true if the attempt failed in a way that warrants
	// another try (per ShouldRetryStatus / IsRetryableTransportError).
	Retryable bool
	// Status is the HTTP status observed, if any (0 if not applicable).
	Status int
	// RetryAfterMS is the Retry-After hint observed, if any.
	RetryAfterMS *uint64
	// Err is the error to surface if retries are exhausted or the
	// attempt is not retryable.
	Err error
}

// Config bounds one Do invocation (spec §4.2 "Contract").
type Config struct {
	MaxRetries   int
	JitterEnabled bool
	BudgetMS     uint64
}

// Do runs op up to Config.MaxRetries+1 times. After each failed,
// retryable attempt it computes the provider retry delay (backoff vs.
// Retry-After, whichever is larger), aborts if the retry budget would
// be exceeded, and otherwise sleeps before the next attempt. A
// successful attempt (Outcome.Err == nil) returns immediately.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context, a Attempt) Outcome) error {
	start := time.Now()
	var lastRetryMS *uint64
	var lastStatus int

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		out := op(ctx, Attempt{Number: attempt, LastStatus: lastStatus, LastRetryMS: lastRetryMS})
		if out.Err == nil {
			return nil
		}
		lastRetryMS = out.RetryAfterMS
		lastStatus = out.Status

		if !out.Retryable || attempt >= cfg.MaxRetries {
			return out.Err
		}

		delay := ProviderRetryDelayMS(attempt, cfg.JitterEnabled, out.RetryAfterMS)
		elapsed := uint64(time.Since(start).Milliseconds())
		if !RetryBudgetAllowsDelay(elapsed, delay, cfg.BudgetMS) {
			return out.Err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(delay) * time.Millisecond):
		}
	}
}
