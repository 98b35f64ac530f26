package rpc

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/tau/internal/agentloop"
	"github.com/haasonsaas/tau/internal/channelstore"
	"github.com/haasonsaas/tau/internal/session"
	"github.com/haasonsaas/tau/pkg/models"
)

// RPC kind identifiers. Request kinds are dot-namespaced by
// component, mirroring the `run.start`/`run.unknown` examples in spec
// §8 scenario 2; response kinds end in ".result" (the session and
// channel kinds append it to the request kind, run.start answers with
// "run.result") so a caller reading
// an NDJSON stream of mixed responses can tell request and response
// frames apart without inspecting payload shape.
const (
	KindRunStart        = "run.start"
	KindSessionAppend   = "session.append"
	KindSessionLineage  = "session.lineage"
	KindSessionValidate = "session.validate"
	KindSessionRepair   = "session.repair"
	KindSessionCompact  = "session.compact"
	KindChannelInspect  = "channel.inspect"
	KindChannelRepair   = "channel.repair"
)

// RunStartPayload is the request payload for KindRunStart.
type RunStartPayload struct {
	Prompt string `json:"prompt"`
}

// RunStartResult is the response payload for KindRunStart.
type RunStartResult struct {
	Messages     []models.Message `json:"messages"`
	FinishReason string            `json:"finish_reason"`
	Usage        int               `json:"output_tokens"`
}

// RegisterRunHandlers wires KindRunStart to an Agent Loop (spec
// §4.7: "C10 is an alternative ingress for external control,
// dispatching the same C7 operations"). The loop is shared across
// calls; concurrent Dispatch calls against the same loop are the
// caller's responsibility to serialize, matching the single-writer
// agent history design (spec §9 "Shared-mutable agent history").
func RegisterRunHandlers(d *Dispatcher, loop *agentloop.Loop) {
	d.Register(KindRunStart, "run.result", func(requestID string, payload json.RawMessage) (any, *Error) {
		var req RunStartPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, newError(models.RpcErrInvalidFrame, "run.start: invalid payload: %v", err)
		}
		ev, err := loop.Prompt(context.Background(), req.Prompt)
		if err != nil {
			return nil, newError("run_failed", "run.start: %v", err)
		}
		return RunStartResult{
			Messages:     loop.Messages(),
			FinishReason: ev.FinishReason,
			Usage:        ev.Usage.OutputTokens,
		}, nil
	})
}

// SessionAppendPayload is the request payload for KindSessionAppend.
type SessionAppendPayload struct {
	ParentHead *uint64          `json:"parent_head"`
	Messages   []models.Message `json:"messages"`
}

// SessionAppendResult is the response payload for KindSessionAppend.
type SessionAppendResult struct {
	Head uint64 `json:"head"`
}

// SessionHeadPayload is the request payload for the handlers that
// operate on a known head id (lineage, compact).
type SessionHeadPayload struct {
	Head uint64 `json:"head"`
}

// SessionLineageResult is the response payload for KindSessionLineage.
type SessionLineageResult struct {
	Messages []models.Message `json:"messages"`
}

// RegisterSessionHandlers wires the session-mutation RPC kinds to a
// bound session.Store (spec §4.1, §4.7). Each handler maps directly
// onto one Store operation; validation/repair/compact report shapes
// are passed through unchanged so a caller sees the same report a
// local CLI invocation would.
func RegisterSessionHandlers(d *Dispatcher, store *session.Store) {
	d.Register(KindSessionAppend, "session.append.result", func(requestID string, payload json.RawMessage) (any, *Error) {
		var req SessionAppendPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, newError(models.RpcErrInvalidFrame, "session.append: invalid payload: %v", err)
		}
		head, err := store.AppendMessages(req.ParentHead, req.Messages)
		if err != nil {
			return nil, newError("session_append_failed", "session.append: %v", err)
		}
		return SessionAppendResult{Head: head}, nil
	})

	d.Register(KindSessionLineage, "session.lineage.result", func(requestID string, payload json.RawMessage) (any, *Error) {
		var req SessionHeadPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, newError(models.RpcErrInvalidFrame, "session.lineage: invalid payload: %v", err)
		}
		messages, err := store.LineageMessages(req.Head)
		if err != nil {
			return nil, newError("session_lineage_broken", "session.lineage: %v", err)
		}
		return SessionLineageResult{Messages: messages}, nil
	})

	d.Register(KindSessionValidate, "session.validate.result", func(requestID string, payload json.RawMessage) (any, *Error) {
		report, err := store.ValidationReport()
		if err != nil {
			return nil, newError("session_validate_failed", "session.validate: %v", err)
		}
		return report, nil
	})

	d.Register(KindSessionRepair, "session.repair.result", func(requestID string, payload json.RawMessage) (any, *Error) {
		report, err := store.Repair()
		if err != nil {
			return nil, newError("session_repair_failed", "session.repair: %v", err)
		}
		return report, nil
	})

	d.Register(KindSessionCompact, "session.compact.result", func(requestID string, payload json.RawMessage) (any, *Error) {
		var req SessionHeadPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, newError(models.RpcErrInvalidFrame, "session.compact: invalid payload: %v", err)
		}
		report, err := store.CompactToLineage(req.Head)
		if err != nil {
			return nil, newError("session_compact_failed", "session.compact: %v", err)
		}
		return report, nil
	})
}

// ChannelPayload names the channel a channel.* RPC kind operates on.
type ChannelPayload struct {
	Root      string `json:"root"`
	Transport string `json:"transport"`
	ChannelID string `json:"channel_id"`
}

// RegisterChannelHandlers wires the channel-store inspect/repair RPC
// kinds (spec §4.6, §4.7). Each call opens the channel directory
// fresh, matching the store's own stateless Open/operate/close shape.
func RegisterChannelHandlers(d *Dispatcher) {
	d.Register(KindChannelInspect, "channel.inspect.result", func(requestID string, payload json.RawMessage) (any, *Error) {
		var req ChannelPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, newError(models.RpcErrInvalidFrame, "channel.inspect: invalid payload: %v", err)
		}
		store, err := channelstore.Open(req.Root, req.Transport, req.ChannelID)
		if err != nil {
			return nil, newError("channel_open_failed", "channel.inspect: %v", err)
		}
		report, err := store.Inspect()
		if err != nil {
			return nil, newError("channel_inspect_failed", "channel.inspect: %v", err)
		}
		return report, nil
	})

	d.Register(KindChannelRepair, "channel.repair.result", func(requestID string, payload json.RawMessage) (any, *Error) {
		var req ChannelPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, newError(models.RpcErrInvalidFrame, "channel.repair: invalid payload: %v", err)
		}
		store, err := channelstore.Open(req.Root, req.Transport, req.ChannelID)
		if err != nil {
			return nil, newError("channel_open_failed", "channel.repair: %v", err)
		}
		report, err := store.Repair()
		if err != nil {
			return nil, newError("channel_repair_failed", "channel.repair: %v", err)
		}
		return report, nil
	})
}
