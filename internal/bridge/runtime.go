// Package bridge implements the Transport Bridge Runtime: a
// transport-agnostic polling scheduler that discovers external events,
// dedupes and filters them, enforces pairing/RBAC policy, dispatches
// agent runs with cooperative cancellation, and emits per-cycle health
// telemetry (spec §4.5).
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/tau/internal/channelstore"
	"github.com/haasonsaas/tau/internal/timeutil"
	"github.com/haasonsaas/tau/pkg/models"
)

// Config bounds one Runtime's scheduling behavior.
type Config struct {
	ProcessedEventCap int
	QueueLimit        int
	MaxEventAgeSec    int64 // 0 = no age filter
	RequiredLabels    []string
	AllowList         []string
	PollInterval      time.Duration
	TurnTimeout       time.Duration
	RBACAction        string
	ArtifactRoot      string
	EventsLogPath     string
	RotationPolicy    timeutil.RotationPolicy
}

// RunFunc executes one agent run for a discovered event and returns the
// response text to post plus a usage summary flag used for telemetry.
type RunFunc func(ctx context.Context, event models.BridgeEvent) (responseText string, usageSummaryEmitted bool, err error)

// Runtime drives the per-cycle pipeline for one Transport.
type Runtime struct {
	transport Transport
	policy    PolicyChecker
	runFunc   RunFunc
	channels  func(event models.BridgeEvent) (*channelstore.Store, error)
	cfg       Config

	ring       *processedRing
	queue      *eventQueue
	health     models.TransportHealthSnapshot
	chunker    *responseChunker
}

// New builds a Runtime for one transport.
func New(transport Transport, policy PolicyChecker, runFunc RunFunc, channels func(models.BridgeEvent) (*channelstore.Store, error), cfg Config) *Runtime {
	if cfg.ProcessedEventCap <= 0 {
		cfg.ProcessedEventCap = 2048
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = 256
	}
	if policy == nil {
		policy = AllowAllPolicy{}
	}
	maxChunk := transport.MaxChunkChars
	return &Runtime{
		transport: transport,
		policy:    policy,
		runFunc:   runFunc,
		channels:  channels,
		cfg:       cfg,
		ring:      newProcessedRing(cfg.ProcessedEventCap),
		queue:     newEventQueue(cfg.QueueLimit),
		chunker:   newResponseChunker(maxChunk),
	}
}

// Health returns the latest TransportHealthSnapshot.
func (r *Runtime) Health() models.TransportHealthSnapshot { return r.health }

// RunForever loops RunCycle until ctx is cancelled or a cycle returns
// an error (a failed Discover), sleeping PollInterval between cycles
// (spec §4.5 step 8).
func (r *Runtime) RunForever(ctx context.Context, nowUnixMS func() int64) error {
	interval := r.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	for {
		if _, err := r.RunCycle(ctx, nowUnixMS); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// RunCycle executes one full pipeline pass: discover, dedupe, filter,
// policy-check, enqueue, dispatch, persist, report (spec §4.5).
func (r *Runtime) RunCycle(ctx context.Context, nowUnixMS func() int64) (models.MultiChannelRuntimeCycleReport, error) {
	cycleStart := time.Now()
	report := models.MultiChannelRuntimeCycleReport{
		Transport:       r.transport.Name,
		CycleStartUnixMS: nowUnixMS(),
	}

	// 1. Discover
	events, err := r.transport.Discover(ctx)
	if err != nil {
		return report, fmt.Errorf("bridge: discover %s: %w", r.transport.Name, err)
	}
	report.Discovered = len(events)

	// 2. Dedupe
	var deduped []models.BridgeEvent
	for _, ev := range events {
		if r.ring.contains(ev.Key) {
			report.Duplicates++
			continue
		}
		deduped = append(deduped, ev)
	}

	// 3. Filter
	now := time.Now()
	filtered := deduped[:0:0]
	for _, ev := range deduped {
		if r.cfg.MaxEventAgeSec > 0 && now.Sub(ev.CreatedAt) > time.Duration(r.cfg.MaxEventAgeSec)*time.Second {
			continue
		}
		if !r.passesAllowList(ev) {
			continue
		}
		filtered = append(filtered, ev)
	}

	// 4. Policy check
	var admitted []models.BridgeEvent
	for _, ev := range filtered {
		report.PolicyChecked++
		decision := r.policy.Check(ev, r.cfg.RBACAction)
		if decision.Enforced {
			report.PolicyEnforced++
		}
		if !decision.Allowed {
			report.PolicyDenied++
			r.logDenial(ev, decision)
			continue
		}
		report.PolicyAllowed++
		admitted = append(admitted, ev)
	}

	// 5. Enqueue
	for _, ev := range admitted {
		r.queue.offer(ev)
		// Overflow: leave undiscovered, rediscovered next cycle. The
		// processed ring is only updated once an event actually
		// completes (step 6), so neither an overflowed nor a failed
		// dispatch is ever suppressed as a duplicate on a later cycle.
	}
	report.Queued = r.queue.depth()

	// 6. Dispatch
	dispatched := r.queue.drain()
	for _, ev := range dispatched {
		r.dispatchOne(ctx, ev, &report)
	}

	// 7. Report
	report.ReasonCodes = deriveReasonCodes(&report)
	if report.Failed > 0 {
		r.health.FailureStreak++
	} else {
		r.health.FailureStreak = 0
	}
	r.health.UpdatedUnixMS = nowUnixMS()
	r.health.CycleDurationMS = time.Since(cycleStart).Milliseconds()
	r.health.QueueDepth = report.Discovered - report.Queued
	r.health.LastCycleDiscovered = report.Discovered
	r.health.LastCycleProcessed = len(dispatched)
	r.health.LastCycleCompleted = report.Completed
	r.health.LastCycleFailed = report.Failed
	r.health.LastCycleDuplicates = report.Duplicates
	r.health.ReasonCodes = report.ReasonCodes
	r.health.Classify()
	report.Health = r.health

	if r.cfg.EventsLogPath != "" {
		line, merr := json.Marshal(report)
		if merr == nil {
			timeutil.AppendWithRotation(r.cfg.EventsLogPath, line, r.cfg.RotationPolicy)
		}
	}

	return report, nil
}

func (r *Runtime) passesAllowList(ev models.BridgeEvent) bool {
	if len(r.cfg.AllowList) == 0 {
		return true
	}
	for _, actor := range r.cfg.AllowList {
		if actor == ev.ActorID {
			return true
		}
	}
	return false
}

func (r *Runtime) logDenial(ev models.BridgeEvent, decision PolicyDecision) {
	store, err := r.channels(ev)
	if err != nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"reason_code": decision.ReasonCode, "event_key": ev.Key})
	store.AppendLogEntry(models.ChannelLogEntry{
		TimestampUnixMS: time.Now().UnixMilli(),
		Direction:       models.DirectionOutbound,
		EventKey:        ev.Key,
		Source:          r.transport.Name,
		Payload:         payload,
	})
}

// dispatchOne runs steps 6a-6f of the pipeline for one event, never
// returning an error to the caller: failures are recorded on report
// and the cycle proceeds to the next event (spec §7 "Bridge dispatch
// logs the error as an outbound envelope and proceeds").
func (r *Runtime) dispatchOne(ctx context.Context, ev models.BridgeEvent, report *models.MultiChannelRuntimeCycleReport) {
	store, err := r.channels(ev)
	if err != nil {
		report.Failed++
		return
	}
	defer func() { _, _ = store.SweepExpiredArtifacts(time.Now().UnixMilli()) }()

	payload, _ := json.Marshal(ev)
	store.AppendLogEntry(models.ChannelLogEntry{
		TimestampUnixMS: time.Now().UnixMilli(),
		Direction:       models.DirectionInbound,
		EventKey:        ev.Key,
		Source:          r.transport.Name,
		Payload:         payload,
	})

	runCtx, cancel := context.WithTimeout(ctx, r.turnTimeout())
	defer cancel()

	var placeholder string
	if r.transport.PostPlaceholder != nil {
		placeholder, _ = r.transport.PostPlaceholder(runCtx, ev)
	}

	responseText, usageSummary, err := r.runFunc(runCtx, ev)
	if err != nil {
		report.Failed++
		if isRetryableRunErr(err) {
			report.TransientFailures++
		}
		r.appendFailureEnvelope(store, ev, err)
		return
	}

	if r.postResponse(runCtx, ev, placeholder, responseText) != nil {
		report.Failed++
		return
	}

	store.AppendLogEntry(models.ChannelLogEntry{
		TimestampUnixMS: time.Now().UnixMilli(),
		Direction:       models.DirectionOutbound,
		EventKey:        ev.Key,
		Source:          r.transport.Name,
		Payload:         mustJSON(responseText),
	})
	if usageSummary {
		report.UsageSummaries++
	}
	report.Completed++
	r.ring.add(ev.Key)
}

func (r *Runtime) turnTimeout() time.Duration {
	if r.cfg.TurnTimeout > 0 {
		return r.cfg.TurnTimeout
	}
	return 2 * time.Minute
}

// postResponse edits the placeholder into the final content, falling
// back to create-append on edit failure, splitting oversize bodies
// into transport-sized chunks (spec §4.5 step 6e).
func (r *Runtime) postResponse(ctx context.Context, ev models.BridgeEvent, placeholder, body string) error {
	chunks := r.chunker.Split(body)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	if placeholder != "" && r.transport.UpdatePlaceholder != nil {
		if err := r.transport.UpdatePlaceholder(ctx, placeholder, chunks[0]); err == nil {
			return r.postRemaining(ctx, ev, chunks[1:])
		}
	}
	return r.postRemaining(ctx, ev, chunks)
}

func (r *Runtime) postRemaining(ctx context.Context, ev models.BridgeEvent, chunks []string) error {
	if r.transport.PostNew == nil {
		return nil
	}
	for _, chunk := range chunks {
		if err := r.transport.PostNew(ctx, ev, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) appendFailureEnvelope(store *channelstore.Store, ev models.BridgeEvent, err error) {
	envelope := map[string]any{
		"reason_code": "event_processing_failed",
		"error":       truncate(err.Error(), 2000),
	}
	payload, _ := json.Marshal(envelope)
	store.AppendLogEntry(models.ChannelLogEntry{
		TimestampUnixMS: time.Now().UnixMilli(),
		Direction:       models.DirectionOutbound,
		EventKey:        ev.Key,
		Source:          r.transport.Name,
		Payload:         payload,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func mustJSON(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// isRetryableRunErr reports whether err originated from a retry-kernel
// exhaustion (a transient failure worth counting separately from a
// hard failure). Concrete transports wrap their retry errors so this
// classification stays at the bridge layer rather than leaking
// transport internals.
func isRetryableRunErr(err error) bool {
	type transientErr interface{ Transient() bool }
	if t, ok := err.(transientErr); ok {
		return t.Transient()
	}
	return false
}
