package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/haasonsaas/tau/internal/llmclient"
	"github.com/haasonsaas/tau/pkg/models"
)

// ErrCancelled is returned when a run is cancelled before completion.
var ErrCancelled = errors.New("agentloop: run cancelled")

// ErrTimedOut is returned when a run exceeds its configured wall time.
var ErrTimedOut = errors.New("agentloop: run timed out")

// terminalFinishReasons are provider finish reasons after which the
// turn loop stops requesting another turn. Anything else (a tool-call
// finish reason) continues the loop.
var terminalFinishReasons = map[string]bool{
	"stop": true, "end_turn": true, "length": true,
	"content_filter": true, "max_tokens": true,
}

func isTerminalFinishReason(reason string) bool {
	if reason == "" {
		return true
	}
	return terminalFinishReasons[reason]
}

// Config bounds one Loop's turn budget and per-tool timeout.
type Config struct {
	MaxTurns       int
	ToolTimeout    time.Duration
	MaxWallTime    time.Duration // 0 = no limit
	DefaultModel   string
}

// Loop owns a conversation's message history and drives the turn
// algorithm against an LlmClient, executing tool calls through a
// Registry and emitting Events at each step.
type Loop struct {
	client   llmclient.LlmClient
	registry *Registry
	cfg      Config
	handlers []EventHandler
	messages []models.Message
}

// New builds a Loop bound to client and tool registry.
func New(client llmclient.LlmClient, registry *Registry, cfg Config) *Loop {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	return &Loop{client: client, registry: registry, cfg: cfg}
}

// Subscribe registers an event handler, called for every Event this
// loop emits, in order.
func (l *Loop) Subscribe(handler EventHandler) {
	l.handlers = append(l.handlers, handler)
}

// ReplaceMessages swaps the entire history, used to restore a lineage
// or roll back after cancellation/timeout.
func (l *Loop) ReplaceMessages(messages []models.Message) {
	l.messages = append([]models.Message(nil), messages...)
}

// Messages returns a copy of the current history.
func (l *Loop) Messages() []models.Message {
	return append([]models.Message(nil), l.messages...)
}

// Prompt appends a user message, then runs turns until the provider
// returns a terminal finish reason or the turn budget is exhausted.
func (l *Loop) Prompt(ctx context.Context, text string) (Event, error) {
	return l.run(ctx, models.NewTextMessage(models.RoleUser, text), nil)
}

// PromptWithStream behaves like Prompt but forwards onDelta to the
// provider for every turn; buffered assistant deltas are not rendered
// into history if the run is cancelled before completion (see the
// checkpoint rollback in run).
func (l *Loop) PromptWithStream(ctx context.Context, text string, onDelta llmclient.DeltaFunc) (Event, error) {
	return l.run(ctx, models.NewTextMessage(models.RoleUser, text), onDelta)
}

func (l *Loop) run(ctx context.Context, userMessage models.Message, onDelta llmclient.DeltaFunc) (Event, error) {
	checkpoint := l.Messages()
	l.messages = append(l.messages, userMessage)

	runCtx := ctx
	if l.cfg.MaxWallTime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.cfg.MaxWallTime)
		defer cancel()
	}

	var lastTurn Event
	for turn := 0; turn < l.cfg.MaxTurns; turn++ {
		if runCtx.Err() != nil {
			l.ReplaceMessages(checkpoint)
			return Event{}, classifyRunErr(ctx, runCtx)
		}

		ev, terminal, err := l.runTurn(runCtx, turn, onDelta)
		if err != nil {
			l.ReplaceMessages(checkpoint)
			if runCtx.Err() != nil {
				return Event{}, classifyRunErr(ctx, runCtx)
			}
			return Event{}, err
		}
		lastTurn = ev
		if terminal {
			break
		}
	}
	return lastTurn, nil
}

// classifyRunErr distinguishes an outer-context cancellation (caller
// cancelled) from the run's own wall-time deadline (configured
// timeout), reporting ErrCancelled/ErrTimedOut respectively.
func classifyRunErr(outer, runCtx context.Context) error {
	if outer.Err() != nil {
		return ErrCancelled
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return ErrTimedOut
	}
	return ErrCancelled
}

func (l *Loop) runTurn(ctx context.Context, turnIndex int, onDelta llmclient.DeltaFunc) (Event, bool, error) {
	start := time.Now()
	emit(l.handlers, Event{Type: EventTurnStart, TurnIndex: turnIndex})

	req := llmclient.Request{Model: l.cfg.DefaultModel, Messages: l.Messages()}
	if l.registry != nil {
		req.Tools = l.registry.Definitions()
	}

	var resp llmclient.Response
	var err error
	if onDelta != nil {
		resp, err = l.client.CompleteWithStream(ctx, req, onDelta)
	} else {
		resp, err = l.client.Complete(ctx, req)
	}
	if err != nil {
		return Event{}, false, err
	}

	l.messages = append(l.messages, resp.Message)
	emit(l.handlers, Event{Type: EventMessageAdded, TurnIndex: turnIndex, Message: &resp.Message})

	toolCalls := resp.Message.ToolCalls()
	var results []ToolResult
	for _, call := range toolCalls {
		result, duration, err := l.executeTool(ctx, turnIndex, call.ID, call.Name, call.Arguments)
		isError := err != nil
		text := result
		if isError {
			text = err.Error()
		}
		l.messages = append(l.messages, models.Message{
			Role:       models.RoleTool,
			Content:    []models.ContentBlock{models.TextBlock(text)},
			ToolCallID: call.ID,
			ToolName:   call.Name,
			IsError:    isError,
		})
		results = append(results, ToolResult{ToolCallID: call.ID, ToolName: call.Name, IsError: isError, DurationMS: duration})

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Event{}, false, ctxErr
		}
	}

	terminal := len(toolCalls) == 0 || isTerminalFinishReason(resp.FinishReason)
	turnEnd := Event{
		Type:         EventTurnEnd,
		TurnIndex:    turnIndex,
		DurationMS:   durationMS(start),
		Usage:        resp.Usage,
		FinishReason: resp.FinishReason,
		ToolResults:  results,
	}
	emit(l.handlers, turnEnd)
	return turnEnd, terminal, nil
}

func (l *Loop) executeTool(ctx context.Context, turnIndex int, callID, name string, rawArguments json.RawMessage) (string, int64, error) {
	start := time.Now()
	emit(l.handlers, Event{Type: EventToolExecutionStart, TurnIndex: turnIndex, ToolCallID: callID, ToolName: name})

	result, err := l.invokeTool(ctx, name, rawArguments)

	duration := durationMS(start)
	emit(l.handlers, Event{Type: EventToolExecutionEnd, TurnIndex: turnIndex, ToolCallID: callID, ToolName: name, DurationMS: duration, Err: err})
	return result, duration, err
}

func (l *Loop) invokeTool(ctx context.Context, name string, rawArguments json.RawMessage) (string, error) {
	if l.registry == nil {
		return "", errUnknownTool(name)
	}
	tool, ok := l.registry.get(name)
	if !ok {
		return "", errUnknownTool(name)
	}
	if tool.compiled != nil {
		if err := tool.compiled.Validate(rawArguments); err != nil {
			return "", err
		}
	}

	toolCtx, cancel := context.WithTimeout(ctx, l.cfg.ToolTimeout)
	defer cancel()
	return tool.Execute(toolCtx, rawArguments)
}

type errUnknownToolErr struct{ name string }

func (e errUnknownToolErr) Error() string { return "agentloop: unknown tool " + e.name }

func errUnknownTool(name string) error { return errUnknownToolErr{name: name} }
