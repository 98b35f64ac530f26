package llmclient

import (
	"context"

	"github.com/haasonsaas/tau/pkg/models"
)

// ToolDefinition describes a callable tool in the uniform request, as
// a JSON schema the provider's function/tool-calling feature expects.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Request is the uniform chat-completion request every provider
// variant translates to/from its own wire schema.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   *int
	Temperature *float64
}

// Message is an alias of the session store's wire message type, kept
// as a distinct name at the provider-client boundary so provider
// translation code reads as "the uniform message", not "a session
// entry's message".
type Message = models.Message

// Usage reports token accounting for a completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is the uniform chat-completion response.
type Response struct {
	Message      Message
	FinishReason string
	Usage        Usage
}

// DeltaFunc receives one textual delta during a streamed completion.
// Deltas never carry tool-call payloads.
type DeltaFunc func(text string)

// LlmClient is the capability set every provider variant implements.
// Complete is required; CompleteWithStream is optional — the
// DefaultCompleteWithStream helper gives concrete types a working
// fallback that ignores the delta callback and delegates to Complete.
type LlmClient interface {
	Complete(ctx context.Context, req Request) (Response, error)
	CompleteWithStream(ctx context.Context, req Request, onDelta DeltaFunc) (Response, error)
}

// DefaultCompleteWithStream implements the spec's default streaming
// behavior: ignore onDelta and delegate to Complete. Concrete clients
// that support SSE/chunked streaming implement their own
// CompleteWithStream instead of embedding this.
func DefaultCompleteWithStream(ctx context.Context, c LlmClient, req Request, onDelta DeltaFunc) (Response, error) {
	return c.Complete(ctx, req)
}
