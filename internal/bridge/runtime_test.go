package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/tau/internal/channelstore"
	"github.com/haasonsaas/tau/pkg/models"
)

func testEvent(key, actor string) models.BridgeEvent {
	return models.BridgeEvent{Key: key, Kind: models.BridgeEventMessage, ActorID: actor, ConversationID: "chan-1", CreatedAt: time.Now(), Text: "hi"}
}

func testChannels(t *testing.T) func(models.BridgeEvent) (*channelstore.Store, error) {
	root := t.TempDir()
	return func(ev models.BridgeEvent) (*channelstore.Store, error) {
		return channelstore.Open(root, "test", ev.ConversationID)
	}
}

func fixedNow() int64 { return 1_700_000_000_000 }

func TestRunCycleDiscoverDedupeDispatchReport(t *testing.T) {
	events := []models.BridgeEvent{testEvent("k1", "alice")}
	transport := Transport{
		Name: "test",
		Discover: func(ctx context.Context) ([]models.BridgeEvent, error) {
			return events, nil
		},
		PostNew: func(ctx context.Context, ev models.BridgeEvent, chunk string) error { return nil },
	}
	runFunc := func(ctx context.Context, ev models.BridgeEvent) (string, bool, error) {
		return "response", false, nil
	}
	rt := New(transport, nil, runFunc, testChannels(t), Config{})

	report, err := rt.RunCycle(context.Background(), fixedNow)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Discovered != 1 || report.Completed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.ReasonCodes) == 0 || report.ReasonCodes[0] != models.ReasonHealthyCycle {
		t.Fatalf("expected healthy_cycle reason code, got %v", report.ReasonCodes)
	}
	if report.Health.Status != models.HealthHealthy {
		t.Fatalf("expected healthy status, got %v", report.Health.Status)
	}

	// Second cycle with the same event must be deduped.
	report2, err := rt.RunCycle(context.Background(), fixedNow)
	if err != nil {
		t.Fatalf("RunCycle 2: %v", err)
	}
	if report2.Duplicates != 1 {
		t.Fatalf("expected duplicate on second cycle, got %+v", report2)
	}
	var sawDup bool
	for _, c := range report2.ReasonCodes {
		if c == models.ReasonDuplicateEventsSkipped {
			sawDup = true
		}
	}
	if !sawDup {
		t.Fatalf("expected duplicate_events_skipped reason code, got %v", report2.ReasonCodes)
	}
}

func TestRunCycleQueueBackpressure(t *testing.T) {
	events := []models.BridgeEvent{testEvent("a", "x"), testEvent("b", "x"), testEvent("c", "x")}
	transport := Transport{
		Name:     "test",
		Discover: func(ctx context.Context) ([]models.BridgeEvent, error) { return events, nil },
		PostNew:  func(ctx context.Context, ev models.BridgeEvent, chunk string) error { return nil },
	}
	runFunc := func(ctx context.Context, ev models.BridgeEvent) (string, bool, error) { return "ok", false, nil }
	rt := New(transport, nil, runFunc, testChannels(t), Config{QueueLimit: 1})

	report, err := rt.RunCycle(context.Background(), fixedNow)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Queued != 1 {
		t.Fatalf("Queued = %d, want 1 (QueueLimit)", report.Queued)
	}
	var sawBackpressure bool
	for _, c := range report.ReasonCodes {
		if c == models.ReasonQueueBackpressure {
			sawBackpressure = true
		}
	}
	if !sawBackpressure {
		t.Fatalf("expected queue_backpressure_applied, got %v", report.ReasonCodes)
	}
}

func TestRunCyclePolicyDenial(t *testing.T) {
	events := []models.BridgeEvent{testEvent("k1", "blocked-actor")}
	transport := Transport{
		Name:     "test",
		Discover: func(ctx context.Context) ([]models.BridgeEvent, error) { return events, nil },
	}
	policy := &PairingTable{
		Enforce:       true,
		AllowedActors: map[string][]string{"chan-1": {"alice"}},
	}
	runFunc := func(ctx context.Context, ev models.BridgeEvent) (string, bool, error) {
		t.Fatal("run should not be invoked for a denied event")
		return "", false, nil
	}
	rt := New(transport, policy, runFunc, testChannels(t), Config{})

	report, err := rt.RunCycle(context.Background(), fixedNow)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.PolicyDenied != 1 || report.Completed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	var sawDenied bool
	for _, c := range report.ReasonCodes {
		if c == models.ReasonPolicyDeniedEvents {
			sawDenied = true
		}
	}
	if !sawDenied {
		t.Fatalf("expected pairing_policy_denied_events, got %v", report.ReasonCodes)
	}
}

func TestRunCycleDispatchFailureIncrementsFailedAndFailureStreak(t *testing.T) {
	events := []models.BridgeEvent{testEvent("k1", "alice")}
	transport := Transport{
		Name:     "test",
		Discover: func(ctx context.Context) ([]models.BridgeEvent, error) { return events, nil },
	}
	runFunc := func(ctx context.Context, ev models.BridgeEvent) (string, bool, error) {
		return "", false, errors.New("provider exploded")
	}
	rt := New(transport, nil, runFunc, testChannels(t), Config{})

	report, err := rt.RunCycle(context.Background(), fixedNow)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", report.Failed)
	}
	if report.Health.FailureStreak != 1 {
		t.Fatalf("FailureStreak = %d, want 1", report.Health.FailureStreak)
	}
	if report.Health.Status != models.HealthDegraded {
		t.Fatalf("expected degraded status, got %v", report.Health.Status)
	}
}

func TestRunCycleFailedDispatchIsRetriedNextCycle(t *testing.T) {
	events := []models.BridgeEvent{testEvent("k1", "alice")}
	transport := Transport{
		Name:     "test",
		Discover: func(ctx context.Context) ([]models.BridgeEvent, error) { return events, nil },
	}
	calls := 0
	runFunc := func(ctx context.Context, ev models.BridgeEvent) (string, bool, error) {
		calls++
		if calls == 1 {
			return "", false, errors.New("provider exploded")
		}
		return "ok", false, nil
	}
	rt := New(transport, nil, runFunc, testChannels(t), Config{})

	first, err := rt.RunCycle(context.Background(), fixedNow)
	if err != nil {
		t.Fatalf("RunCycle (1): %v", err)
	}
	if first.Failed != 1 || first.Duplicates != 0 {
		t.Fatalf("cycle 1 = %+v, want Failed=1 Duplicates=0", first)
	}

	second, err := rt.RunCycle(context.Background(), fixedNow)
	if err != nil {
		t.Fatalf("RunCycle (2): %v", err)
	}
	if second.Duplicates != 0 {
		t.Fatalf("cycle 2 Duplicates = %d, want 0 (failed event must not be suppressed as duplicate)", second.Duplicates)
	}
	if second.Completed != 1 {
		t.Fatalf("cycle 2 Completed = %d, want 1 (retry should succeed)", second.Completed)
	}
	if calls != 2 {
		t.Fatalf("runFunc called %d times, want 2", calls)
	}
}

func TestRunCyclePlaceholderEditFallsBackToPostNewOnFailure(t *testing.T) {
	events := []models.BridgeEvent{testEvent("k1", "alice")}
	var postNewCalls int
	transport := Transport{
		Name:     "test",
		Discover: func(ctx context.Context) ([]models.BridgeEvent, error) { return events, nil },
		PostPlaceholder: func(ctx context.Context, ev models.BridgeEvent) (string, error) {
			return "handle-1", nil
		},
		UpdatePlaceholder: func(ctx context.Context, handle, chunk string) error {
			return errors.New("edit failed")
		},
		PostNew: func(ctx context.Context, ev models.BridgeEvent, chunk string) error {
			postNewCalls++
			return nil
		},
	}
	runFunc := func(ctx context.Context, ev models.BridgeEvent) (string, bool, error) {
		return "final response", false, nil
	}
	rt := New(transport, nil, runFunc, testChannels(t), Config{})

	report, err := rt.RunCycle(context.Background(), fixedNow)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Completed != 1 {
		t.Fatalf("expected completed dispatch despite edit failure, got %+v", report)
	}
	if postNewCalls != 1 {
		t.Fatalf("postNewCalls = %d, want 1 (create-append fallback)", postNewCalls)
	}
}

func TestResponseChunkerSplitsOversizeBody(t *testing.T) {
	c := newResponseChunker(10)
	chunks := c.Split("one two three four five")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %v", chunks)
	}
	for _, chunk := range chunks {
		if len(chunk) > 10 {
			// Allow slight overflow only when a single word exceeds maxChars;
			// none of our test words do, so every chunk must fit.
			t.Errorf("chunk exceeds max size: %q (%d bytes)", chunk, len(chunk))
		}
	}
}

func TestProcessedRingEvictsOldestAtCapacity(t *testing.T) {
	ring := newProcessedRing(2)
	ring.add("a")
	ring.add("b")
	ring.add("c")
	if ring.contains("a") {
		t.Fatal("expected oldest key evicted")
	}
	if !ring.contains("b") || !ring.contains("c") {
		t.Fatal("expected most recent keys retained")
	}
}

func TestDeriveReasonCodesHealthyCycleOnly(t *testing.T) {
	report := &models.MultiChannelRuntimeCycleReport{Discovered: 1, Queued: 1, Completed: 1}
	codes := deriveReasonCodes(report)
	if len(codes) != 1 || codes[0] != models.ReasonHealthyCycle {
		t.Fatalf("codes = %v, want [healthy_cycle]", codes)
	}
}

func TestGithubRetryCapsAt30Seconds(t *testing.T) {
	classifier := githubRetry(5, 1000)
	d := classifier.retryAfter(120, 1)
	if d != 30*time.Second {
		t.Fatalf("retryAfter = %v, want 30s (capped)", d)
	}
}

func TestSlackRetryHonorsRetryAfterUncapped(t *testing.T) {
	classifier := slackRetry(5, 1000)
	d := classifier.retryAfter(45, 1)
	if d != 45*time.Second {
		t.Fatalf("retryAfter = %v, want 45s (uncapped)", d)
	}
}
