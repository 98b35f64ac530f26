// Package agentloop implements the agent's turn-by-turn execution:
// owned message history, cooperative cancellation with checkpoint
// rollback, tool registration/execution, and the event stream the
// turn algorithm emits at each step.
package agentloop

import (
	"time"

	"github.com/haasonsaas/tau/internal/llmclient"
	"github.com/haasonsaas/tau/pkg/models"
)

// EventType names one step of the turn algorithm.
type EventType string

const (
	EventTurnStart         EventType = "turn_start"
	EventMessageAdded      EventType = "message_added"
	EventToolExecutionStart EventType = "tool_execution_start"
	EventToolExecutionEnd   EventType = "tool_execution_end"
	EventTurnEnd           EventType = "turn_end"
)

// Event is emitted at each step of the turn algorithm. Not every field
// is populated for every EventType; see the turn algorithm in loop.go
// for which fields are set at which step.
type Event struct {
	Type         EventType
	TurnIndex    int
	Message      *models.Message
	ToolCallID   string
	ToolName     string
	Err          error
	DurationMS   int64
	Usage        llmclient.Usage
	FinishReason string
	ToolResults  []ToolResult
}

// ToolResult is one tool call's outcome, aggregated into the turn_end
// event.
type ToolResult struct {
	ToolCallID string
	ToolName   string
	IsError    bool
	DurationMS int64
}

// EventHandler receives every event the loop emits, in order.
type EventHandler func(Event)

func emit(handlers []EventHandler, ev Event) {
	for _, h := range handlers {
		h(ev)
	}
}

func durationMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
