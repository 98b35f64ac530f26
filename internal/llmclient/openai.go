package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/tau/internal/retry"
	"github.com/haasonsaas/tau/pkg/models"
)

// OpenAIConfig configures the OpenAI-compatible client variant. BaseURL
// lets the same client target OpenAI itself or any OpenAI-compatible
// gateway (OpenRouter, Groq, xAI, Mistral); Azure sets the API-key
// header auth scheme and appends APIVersion to every request.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Azure      bool
	APIVersion string
	MaxRetries int
	RetryBudgetMS uint64
}

// OpenAIClient implements LlmClient against any OpenAI-compatible chat
// completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIClient builds an OpenAIClient. Azure detection (cfg.Azure)
// switches the client to the API-key header auth scheme and the
// Azure client config, instead of a bearer token.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	var clientCfg openai.ClientConfig
	if cfg.Azure {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	wireReq, err := toOpenAIRequest(req)
	if err != nil {
		return Response{}, err
	}

	var resp openai.ChatCompletionResponse
	retryErr := retry.Do(ctx, retry.Config{MaxRetries: c.cfg.MaxRetries, JitterEnabled: true, BudgetMS: c.cfg.RetryBudgetMS},
		func(ctx context.Context, a retry.Attempt) retry.Outcome {
			r, err := c.client.CreateChatCompletion(ctx, wireReq)
			if err == nil {
				resp = r
				return retry.Outcome{}
			}
			status, retryAfter := classifyOpenAIError(err)
			return retry.Outcome{
				Retryable:    retry.ShouldRetryStatus(status) || retry.IsRetryableTransportError(err),
				Status:       status,
				RetryAfterMS: retryAfter,
				Err:          fmt.Errorf("llmclient: openai completion: %w", err),
			}
		})
	if retryErr != nil {
		return Response{}, retryErr
	}
	return fromOpenAIResponse(resp)
}

func (c *OpenAIClient) CompleteWithStream(ctx context.Context, req Request, onDelta DeltaFunc) (Response, error) {
	wireReq, err := toOpenAIRequest(req)
	if err != nil {
		return Response{}, err
	}
	wireReq.Stream = true

	var stream *openai.ChatCompletionStream
	retryErr := retry.Do(ctx, retry.Config{MaxRetries: c.cfg.MaxRetries, JitterEnabled: true, BudgetMS: c.cfg.RetryBudgetMS},
		func(ctx context.Context, a retry.Attempt) retry.Outcome {
			s, err := c.client.CreateChatCompletionStream(ctx, wireReq)
			if err == nil {
				stream = s
				return retry.Outcome{}
			}
			status, retryAfter := classifyOpenAIError(err)
			return retry.Outcome{
				Retryable:    retry.ShouldRetryStatus(status) || retry.IsRetryableTransportError(err),
				Status:       status,
				RetryAfterMS: retryAfter,
				Err:          fmt.Errorf("llmclient: openai stream: %w", err),
			}
		})
	if retryErr != nil {
		return Response{}, retryErr
	}
	defer stream.Close()

	var textBuilder strings.Builder
	var finishReason string
	var toolCalls []openai.ToolCall
	for {
		chunk, err := stream.Recv()
		if err != nil {
			break
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			textBuilder.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
		toolCalls = append(toolCalls, choice.Delta.ToolCalls...)
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
	}

	blocks := []models.ContentBlock{models.TextBlock(textBuilder.String())}
	for _, tc := range toolCalls {
		blocks = append(blocks, models.ToolCallBlock(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
	}
	return Response{
		Message:      models.Message{Role: models.RoleAssistant, Content: blocks},
		FinishReason: finishReason,
	}, nil
}

func toOpenAIRequest(req Request) (openai.ChatCompletionRequest, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		wire, err := toOpenAIMessage(m)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		messages = append(messages, wire)
	}

	wireReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens != nil {
		wireReq.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		wireReq.Temperature = float32(*req.Temperature)
	}
	for _, tool := range req.Tools {
		wireReq.Tools = append(wireReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Schema,
			},
		})
	}
	return wireReq, nil
}

func toOpenAIMessage(m models.Message) (openai.ChatCompletionMessage, error) {
	wire := openai.ChatCompletionMessage{
		Role:       string(m.Role),
		Content:    m.Text(),
		ToolCallID: m.ToolCallID,
		Name:       m.ToolName,
	}
	for _, call := range m.ToolCalls() {
		wire.ToolCalls = append(wire.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: string(call.Arguments),
			},
		})
	}
	return wire, nil
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) (Response, error) {
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("llmclient: openai response had no choices")
	}
	choice := resp.Choices[0]

	blocks := []models.ContentBlock{}
	if choice.Message.Content != "" {
		blocks = append(blocks, models.TextBlock(choice.Message.Content))
	}
	for _, call := range choice.Message.ToolCalls {
		blocks = append(blocks, models.ToolCallBlock(call.ID, call.Function.Name, json.RawMessage(call.Function.Arguments)))
	}

	return Response{
		Message: models.Message{
			Role:    models.RoleAssistant,
			Content: blocks,
		},
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

// classifyOpenAIError extracts the HTTP status from a go-openai request
// error, when available. It never returns a Retry-After hint (the
// second result is always nil).
func classifyOpenAIError(err error) (int, *uint64) {
	var apiErr *openai.APIError
	if ok := asOpenAIAPIError(err, &apiErr); ok {
		return apiErr.HTTPStatusCode, nil
	}
	return 0, nil
}

func asOpenAIAPIError(err error, target **openai.APIError) bool {
	apiErr, ok := err.(*openai.APIError)
	if ok {
		*target = apiErr
	}
	return ok
}
