package models

import "encoding/json"

// Direction indicates which way a ChannelLogEntry travelled.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ChannelLogEntry is one append-only record in a channel's log.jsonl
// (spec §3, §6).
type ChannelLogEntry struct {
	TimestampUnixMS int64           `json:"timestamp_unix_ms"`
	Direction       Direction       `json:"direction"`
	EventKey        string          `json:"event_key"`
	Source          string          `json:"source"`
	Payload         json.RawMessage `json:"payload"`
}

// ChannelContextEntry is one ordered record in a channel's
// context.jsonl, used to seed prompts with prior conversational
// context.
type ChannelContextEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ChannelArtifactRecord describes a file produced by a channel's run
// dispatch, with optional TTL expiry (spec §3, §4.5 "Artifact
// retention").
type ChannelArtifactRecord struct {
	ArtifactID       string `json:"artifact_id"`
	RelativePath     string `json:"relative_path"`
	Bytes            int64  `json:"bytes"`
	ChecksumSHA256   string `json:"checksum_sha256"`
	CreatedUnixMS    int64  `json:"created_unix_ms"`
	ExpiresUnixMS    *int64 `json:"expires_unix_ms,omitempty"`
	PolicyReasonCode string `json:"policy_reason_code,omitempty"`
}

// ChannelInspectionReport summarizes the health of a channel store
// (spec §4.6 "Inspection").
type ChannelInspectionReport struct {
	LogRecords            int `json:"log_records"`
	LogInvalidLines        int `json:"log_invalid_lines"`
	ContextRecords         int `json:"context_records"`
	ContextInvalidLines    int `json:"context_invalid_lines"`
	ArtifactRecords        int `json:"artifact_records"`
	ArtifactInvalidLines   int `json:"artifact_invalid_lines"`
	ArtifactsActive        int `json:"artifacts_active"`
	ArtifactsExpired       int `json:"artifacts_expired"`
}

// ChannelRepairReport describes what a channel store repair pass
// dropped and which files it backed up before rewriting.
type ChannelRepairReport struct {
	DroppedInvalidLines int      `json:"dropped_invalid_lines"`
	DroppedExpired       int      `json:"dropped_expired"`
	DroppedMissingFile   int      `json:"dropped_missing_file"`
	BackupPaths          []string `json:"backup_paths"`
}
