package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/tau/internal/llmclient"
	"github.com/haasonsaas/tau/pkg/models"
)

// scriptedClient replays a fixed sequence of responses, one per call to
// Complete, so tests can script exact turn-by-turn provider behavior.
type scriptedClient struct {
	responses []llmclient.Response
	errs      []error
	calls     int32
}

func (c *scriptedClient) Complete(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	i := int(atomic.AddInt32(&c.calls, 1)) - 1
	if i >= len(c.responses) {
		return llmclient.Response{FinishReason: "stop"}, nil
	}
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	return c.responses[i], err
}

func (c *scriptedClient) CompleteWithStream(ctx context.Context, req llmclient.Request, onDelta llmclient.DeltaFunc) (llmclient.Response, error) {
	return c.Complete(ctx, req)
}

func assistantText(text, finish string) llmclient.Response {
	return llmclient.Response{
		Message:      models.NewTextMessage(models.RoleAssistant, text),
		FinishReason: finish,
	}
}

func assistantToolCall(id, name string, args string, finish string) llmclient.Response {
	return llmclient.Response{
		Message: models.Message{
			Role:    models.RoleAssistant,
			Content: []models.ContentBlock{models.ToolCallBlock(id, name, json.RawMessage(args))},
		},
		FinishReason: finish,
	}
}

func TestPromptSingleTurnNoToolCalls(t *testing.T) {
	client := &scriptedClient{responses: []llmclient.Response{assistantText("hi there", "stop")}}
	loop := New(client, NewRegistry(), Config{})

	var events []EventType
	loop.Subscribe(func(ev Event) { events = append(events, ev.Type) })

	final, err := loop.Prompt(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if final.Type != EventTurnEnd || final.FinishReason != "stop" {
		t.Fatalf("unexpected final event: %+v", final)
	}

	wantOrder := []EventType{EventTurnStart, EventMessageAdded, EventTurnEnd}
	if len(events) != len(wantOrder) {
		t.Fatalf("events = %v, want %v", events, wantOrder)
	}
	for i, want := range wantOrder {
		if events[i] != want {
			t.Errorf("events[%d] = %s, want %s", i, events[i], want)
		}
	}

	msgs := loop.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2 (user + assistant)", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected roles: %+v", msgs)
	}
}

func TestPromptRunsToolCallThenTerminates(t *testing.T) {
	registry := NewRegistry()
	err := registry.Register(Tool{
		Name:   "echo",
		Schema: map[string]any{"type": "object"},
		Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
			return "echoed", nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	client := &scriptedClient{responses: []llmclient.Response{
		assistantToolCall("call-1", "echo", `{}`, "tool_calls"),
		assistantText("done", "stop"),
	}}
	loop := New(client, registry, Config{})

	var events []EventType
	loop.Subscribe(func(ev Event) { events = append(events, ev.Type) })

	final, err := loop.Prompt(context.Background(), "use the tool")
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if final.FinishReason != "stop" {
		t.Fatalf("final.FinishReason = %q, want stop", final.FinishReason)
	}

	wantOrder := []EventType{
		EventTurnStart, EventMessageAdded,
		EventToolExecutionStart, EventToolExecutionEnd,
		EventTurnEnd,
		EventTurnStart, EventMessageAdded, EventTurnEnd,
	}
	if len(events) != len(wantOrder) {
		t.Fatalf("events = %v, want %v", events, wantOrder)
	}
	for i, want := range wantOrder {
		if events[i] != want {
			t.Errorf("events[%d] = %s, want %s", i, events[i], want)
		}
	}

	msgs := loop.Messages()
	var sawToolResult bool
	for _, m := range msgs {
		if m.Role == models.RoleTool {
			sawToolResult = true
			if m.ToolCallID != "call-1" || m.IsError {
				t.Fatalf("unexpected tool message: %+v", m)
			}
			if m.Text() != "echoed" {
				t.Fatalf("tool result text = %q, want echoed", m.Text())
			}
		}
	}
	if !sawToolResult {
		t.Fatal("expected a tool-result message in history")
	}
}

func TestPromptToolExecutorErrorBecomesErrorToolResult(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Tool{
		Name:   "fail",
		Schema: map[string]any{"type": "object"},
		Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
			return "", errors.New("boom")
		},
	})

	client := &scriptedClient{responses: []llmclient.Response{
		assistantToolCall("call-1", "fail", `{}`, "tool_calls"),
		assistantText("recovered", "stop"),
	}}
	loop := New(client, registry, Config{})

	_, err := loop.Prompt(context.Background(), "go")
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}

	var found bool
	for _, m := range loop.Messages() {
		if m.Role == models.RoleTool {
			found = true
			if !m.IsError {
				t.Fatal("expected tool message IsError=true")
			}
		}
	}
	if !found {
		t.Fatal("expected a tool-result message")
	}
}

func TestPromptUnknownToolNameIsErrorResultNotClientError(t *testing.T) {
	client := &scriptedClient{responses: []llmclient.Response{
		assistantToolCall("call-1", "nonexistent", `{}`, "tool_calls"),
		assistantText("ok", "stop"),
	}}
	loop := New(client, NewRegistry(), Config{})

	_, err := loop.Prompt(context.Background(), "go")
	if err != nil {
		t.Fatalf("Prompt returned client-layer error: %v", err)
	}
}

func TestPromptSchemaValidationFailureIsErrorResult(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Tool{
		Name: "needs_path",
		Schema: map[string]any{
			"type":     "object",
			"required": []string{"path"},
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
		},
		Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
			return "should not run", nil
		},
	})

	client := &scriptedClient{responses: []llmclient.Response{
		assistantToolCall("call-1", "needs_path", `{}`, "tool_calls"),
		assistantText("ok", "stop"),
	}}
	loop := New(client, registry, Config{})

	_, err := loop.Prompt(context.Background(), "go")
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}

	for _, m := range loop.Messages() {
		if m.Role == models.RoleTool {
			if !m.IsError {
				t.Fatal("expected validation failure to produce an error tool result")
			}
		}
	}
}

func TestPromptRespectsMaxTurnsBudget(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Tool{
		Name:   "loop_forever",
		Schema: map[string]any{"type": "object"},
		Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
			return "again", nil
		},
	})

	responses := make([]llmclient.Response, 0, 10)
	for i := 0; i < 10; i++ {
		responses = append(responses, assistantToolCall("call", "loop_forever", `{}`, "tool_calls"))
	}
	client := &scriptedClient{responses: responses}
	loop := New(client, registry, Config{MaxTurns: 3})

	final, err := loop.Prompt(context.Background(), "go")
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if atomic.LoadInt32(&client.calls) != 3 {
		t.Fatalf("client.calls = %d, want 3 (MaxTurns)", client.calls)
	}
	_ = final
}

func TestPromptCancellationRollsBackToCheckpoint(t *testing.T) {
	client := &scriptedClient{responses: []llmclient.Response{assistantText("hi", "stop")}}
	loop := New(client, NewRegistry(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := loop.Messages()
	_, err := loop.Prompt(ctx, "hello")
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	after := loop.Messages()
	if len(after) != len(before) {
		t.Fatalf("history not rolled back: before=%d after=%d", len(before), len(after))
	}
}

func TestPromptTimeoutRollsBackToCheckpoint(t *testing.T) {
	slow := &blockingClient{delay: 50 * time.Millisecond}
	loop := New(slow, NewRegistry(), Config{MaxWallTime: 1 * time.Millisecond})

	before := loop.Messages()
	_, err := loop.Prompt(context.Background(), "hello")
	if !errors.Is(err, ErrTimedOut) && !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrTimedOut or ErrCancelled", err)
	}
	after := loop.Messages()
	if len(after) != len(before) {
		t.Fatalf("history not rolled back: before=%d after=%d", len(before), len(after))
	}
}

// blockingClient sleeps past its context deadline before returning, to
// exercise checkpoint rollback under both wall-time and ctx cancellation.
type blockingClient struct {
	delay time.Duration
}

func (c *blockingClient) Complete(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	select {
	case <-time.After(c.delay):
		return assistantText("too late", "stop"), nil
	case <-ctx.Done():
		return llmclient.Response{}, ctx.Err()
	}
}

func (c *blockingClient) CompleteWithStream(ctx context.Context, req llmclient.Request, onDelta llmclient.DeltaFunc) (llmclient.Response, error) {
	return c.Complete(ctx, req)
}

func TestReplaceMessagesSwapsHistory(t *testing.T) {
	loop := New(&scriptedClient{}, NewRegistry(), Config{})
	loop.ReplaceMessages([]models.Message{models.NewTextMessage(models.RoleUser, "restored")})
	msgs := loop.Messages()
	if len(msgs) != 1 || msgs[0].Text() != "restored" {
		t.Fatalf("unexpected messages after ReplaceMessages: %+v", msgs)
	}
}
