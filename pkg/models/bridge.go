package models

import "time"

// BridgeEventKind classifies what kind of external activity a
// BridgeEvent represents.
type BridgeEventKind string

const (
	BridgeEventMessage BridgeEventKind = "message"
	BridgeEventComment BridgeEventKind = "comment"
	BridgeEventReaction BridgeEventKind = "reaction"
)

// BridgeAttachment is a downloadable artifact attached to a BridgeEvent.
type BridgeAttachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Bytes    int64  `json:"bytes,omitempty"`
}

// BridgeEvent is a transport-normalized unit of inbound activity. Key is
// a stable, transport-qualified identifier used for idempotent
// dispatch (see spec §3, "Event key").
type BridgeEvent struct {
	Key            string             `json:"key"`
	Kind           BridgeEventKind    `json:"kind"`
	ActorID        string             `json:"actor_id"`
	ConversationID string             `json:"conversation_id"`
	CreatedAt      time.Time          `json:"created_at"`
	Text           string             `json:"text"`
	Attachments    []BridgeAttachment `json:"attachments,omitempty"`
}

// HealthStatus classifies a TransportHealthSnapshot.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
)

// TransportHealthSnapshot is the per-cycle health telemetry a bridge
// emits (see spec §3, §4.5 step 7).
type TransportHealthSnapshot struct {
	UpdatedUnixMS     int64    `json:"updated_unix_ms"`
	CycleDurationMS   int64    `json:"cycle_duration_ms"`
	QueueDepth        int      `json:"queue_depth"`
	ActiveRuns        int      `json:"active_runs"`
	FailureStreak     int      `json:"failure_streak"`
	LastCycleDiscovered int    `json:"last_cycle_discovered"`
	LastCycleProcessed  int    `json:"last_cycle_processed"`
	LastCycleCompleted  int    `json:"last_cycle_completed"`
	LastCycleFailed     int    `json:"last_cycle_failed"`
	LastCycleDuplicates int    `json:"last_cycle_duplicates"`
	Status            HealthStatus `json:"status"`
	ReasonCodes       []string `json:"reason_codes,omitempty"`
}

// Classify sets Status from FailureStreak and the primary reason code,
// per spec §3: healthy iff failure_streak == 0 and no operational
// issue reason code is present.
func (s *TransportHealthSnapshot) Classify() {
	if s.FailureStreak == 0 && !hasOperationalIssue(s.ReasonCodes) {
		s.Status = HealthHealthy
		return
	}
	s.Status = HealthDegraded
}

var operationalIssueReasons = map[string]bool{
	ReasonQueueBackpressure:   true,
	ReasonEventProcessingFail: true,
	ReasonTransientFailures:   true,
}

func hasOperationalIssue(codes []string) bool {
	for _, c := range codes {
		if operationalIssueReasons[c] {
			return true
		}
	}
	return false
}

// Reason codes attached to MultiChannelRuntimeCycleReport, in the order
// spec §4.5 defines them.
const (
	ReasonQueueBackpressure     = "queue_backpressure_applied"
	ReasonDuplicateEventsSkipped = "duplicate_events_skipped"
	ReasonRetryAttempted        = "retry_attempted"
	ReasonTransientFailures     = "transient_failures_observed"
	ReasonEventProcessingFail   = "event_processing_failed"
	ReasonHealthyCycle          = "healthy_cycle"
	ReasonPolicyEnforced        = "pairing_policy_enforced"
	ReasonPolicyPermissive      = "pairing_policy_permissive"
	ReasonPolicyDeniedEvents    = "pairing_policy_denied_events"
	ReasonTelemetryLifecycle    = "telemetry_lifecycle_emitted"
	ReasonTelemetryUsageSummary = "telemetry_usage_summary_emitted"
)

// MultiChannelRuntimeCycleReport is the per-cycle summary a bridge
// appends to runtime-events.jsonl (spec §4.5 step 7, §6).
type MultiChannelRuntimeCycleReport struct {
	Transport           string                   `json:"transport"`
	CycleStartUnixMS     int64                    `json:"cycle_start_unix_ms"`
	Discovered           int                      `json:"discovered"`
	Queued               int                      `json:"queued"`
	Completed            int                      `json:"completed"`
	Duplicates           int                      `json:"duplicates"`
	TransientFailures    int                      `json:"transient_failures"`
	RetryAttempts        int                      `json:"retry_attempts"`
	Failed               int                      `json:"failed"`
	PolicyChecked        int                      `json:"policy_checked"`
	PolicyEnforced       int                      `json:"policy_enforced"`
	PolicyAllowed        int                      `json:"policy_allowed"`
	PolicyDenied         int                      `json:"policy_denied"`
	TypingEvents         int                      `json:"typing_events"`
	PresenceEvents       int                      `json:"presence_events"`
	UsageSummaries       int                      `json:"usage_summaries"`
	ReasonCodes          []string                 `json:"reason_codes"`
	Health               TransportHealthSnapshot  `json:"health"`
}
