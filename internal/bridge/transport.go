package bridge

import (
	"context"
	"time"

	"github.com/haasonsaas/tau/pkg/models"
)

// Transport is the capability set a concrete bridge (Slack, GitHub
// issues, a multi-channel messenger, a generic webhook receiver) must
// implement. Runtime drives the scheduling skeleton; Transport supplies
// the transport-specific wire behavior.
type Transport struct {
	// Name identifies the transport in reports and log lines (e.g.
	// "slack", "github", "discord", "telegram", "webhook").
	Name string

	// Discover polls for new activity and returns normalized events.
	Discover func(ctx context.Context) ([]models.BridgeEvent, error)

	// PostPlaceholder creates a "working" placeholder reply for an
	// editable-reply transport. Returns an opaque handle passed to
	// UpdatePlaceholder, or "" if the transport does not support
	// editable replies (the runtime falls back to PostNew for every
	// chunk in that case).
	PostPlaceholder func(ctx context.Context, event models.BridgeEvent) (handle string, err error)

	// UpdatePlaceholder edits a placeholder into its final content. If
	// it fails, the runtime falls back to PostNew (create-append).
	UpdatePlaceholder func(ctx context.Context, handle string, chunk string) error

	// PostNew creates a new message/comment (create-append fallback, or
	// the only path for transports without editable replies).
	PostNew func(ctx context.Context, event models.BridgeEvent, chunk string) error

	// MaxChunkChars bounds one outbound message body for this
	// transport; oversize bodies are split by responseChunker.
	MaxChunkChars int

	// Retry classifies one HTTP response for this transport's
	// retry-after/backoff rules (spec §4.5: Slack vs GitHub differ in
	// Retry-After capping).
	Retry RetryClassifier
}

// RetryClassifier decides whether an HTTP status is retryable for a
// transport and how to interpret/cap its Retry-After value.
type RetryClassifier struct {
	Retryable    func(status int) bool
	CapRetryMS   int64 // 0 = uncapped
	MaxAttempts  int
	BaseDelayMS  int64
}

// slackRetry implements spec §4.5: retryable = 429 or 5xx, Retry-After
// honored in seconds, uncapped.
func slackRetry(maxAttempts int, baseDelayMS int64) RetryClassifier {
	return RetryClassifier{
		Retryable:   func(status int) bool { return status == 429 || status >= 500 },
		CapRetryMS:  0,
		MaxAttempts: maxAttempts,
		BaseDelayMS: baseDelayMS,
	}
}

// githubRetry implements spec §4.5: retryable = 429 or >=500,
// Retry-After capped at 30s, exponential cap at 30s.
func githubRetry(maxAttempts int, baseDelayMS int64) RetryClassifier {
	return RetryClassifier{
		Retryable:   func(status int) bool { return status == 429 || status >= 500 },
		CapRetryMS:  30_000,
		MaxAttempts: maxAttempts,
		BaseDelayMS: baseDelayMS,
	}
}

// backoffMS computes base x 2^min(attempt-1, N), capped per CapRetryMS
// if set (spec §4.5 "Retries inside dispatch").
func (c RetryClassifier) backoffMS(attempt int) int64 {
	const expCapExponent = 6
	exp := attempt - 1
	if exp > expCapExponent {
		exp = expCapExponent
	}
	delay := c.BaseDelayMS << uint(exp)
	if c.CapRetryMS > 0 && delay > c.CapRetryMS {
		delay = c.CapRetryMS
	}
	return delay
}

func (c RetryClassifier) retryAfter(headerSeconds int64, attempt int) time.Duration {
	delayMS := c.backoffMS(attempt)
	if headerSeconds > 0 {
		delayMS = headerSeconds * 1000
		if c.CapRetryMS > 0 && delayMS > c.CapRetryMS {
			delayMS = c.CapRetryMS
		}
	}
	return time.Duration(delayMS) * time.Millisecond
}
