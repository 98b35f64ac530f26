// Package retry implements the retry kernel shared by every provider
// client and transport bridge: status classification, jittered
// exponential backoff, Retry-After parsing, and retry-budget
// accounting (spec §4.2).
package retry

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// BaseBackoffMS is the base used by NextBackoffMS's exponential curve.
const BaseBackoffMS uint64 = 200

// maxBackoffShift caps the exponent so NextBackoffMS(attempt) plateaus
// instead of overflowing for large attempt counts.
const maxBackoffShift = 6

// ShouldRetryStatus reports whether an HTTP status code is retryable:
// 408, 409, 425, 429, or any 5xx (spec §4.2).
func ShouldRetryStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

// NextBackoffMS returns BASE * 2^min(attempt, 6) milliseconds for the
// given zero-based attempt number.
func NextBackoffMS(attempt int) uint64 {
	shift := attempt
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return BaseBackoffMS << uint(shift)
}

// jitterCounter is a monotonic, process-wide source for deterministic
// jitter. It does not affect correctness (spec §9 "Global state") — it
// only needs to make repeated calls from the same call site span the
// declared [base/2, base] band.
var jitterCounter uint64

func nextJitterCounter() uint64 {
	jitterCounter++
	return jitterCounter
}

// NextBackoffMSWithJitter returns a value in [base/2, base] when jitter
// is enabled and base > 1; otherwise it returns the base unchanged.
func NextBackoffMSWithJitter(attempt int, jitterEnabled bool) uint64 {
	base := NextBackoffMS(attempt)
	if !jitterEnabled || base <= 1 {
		return base
	}
	half := base / 2
	span := base - half // span in [half, base]
	offset := nextJitterCounter() % (span + 1)
	return half + offset
}

// ParseRetryAfterMS parses a Retry-After header value as either an
// integer count of seconds or an HTTP-date. A negative or past date
// yields 0; an unparsable value yields (0, false).
func ParseRetryAfterMS(headers http.Header) (uint64, bool) {
	raw := strings.TrimSpace(headers.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}

	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if secs < 0 {
			return 0, true
		}
		return uint64(secs) * 1000, true
	}

	when, err := http.ParseTime(raw)
	if err != nil {
		return 0, false
	}

	delta := time.Until(when)
	if delta <= 0 {
		return 0, true
	}
	return uint64(delta.Milliseconds()), true
}

// ProviderRetryDelayMS combines the computed backoff with any
// Retry-After hint, taking the larger of the two (spec §4.2).
func ProviderRetryDelayMS(attempt int, jitterEnabled bool, retryAfterMS *uint64) uint64 {
	backoff := NextBackoffMSWithJitter(attempt, jitterEnabled)
	if retryAfterMS == nil {
		return backoff
	}
	if *retryAfterMS > backoff {
		return *retryAfterMS
	}
	return backoff
}

// RetryBudgetAllowsDelay reports whether spending delayMS more,
// on top of elapsedMS already spent, stays within budgetMS.
// budgetMS == 0 means unbounded.
func RetryBudgetAllowsDelay(elapsedMS, delayMS, budgetMS uint64) bool {
	if budgetMS == 0 {
		return true
	}
	return elapsedMS+delayMS <= budgetMS
}
