package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/tau/internal/retry"
	"github.com/haasonsaas/tau/pkg/models"
)

// AnthropicConfig configures the Anthropic client variant. APIKey is
// sent through the SDK's API-key option (the x-api-key header), not as
// a bearer token; BaseURL is only ever overridden for testing against a
// local fixture server.
type AnthropicConfig struct {
	APIKey        string
	BaseURL       string
	MaxRetries    int
	RetryBudgetMS uint64
}

// AnthropicClient implements LlmClient against the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...), cfg: cfg}
}

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	params, err := toAnthropicParams(req)
	if err != nil {
		return Response{}, err
	}

	var msg *anthropic.Message
	retryErr := retry.Do(ctx, retry.Config{MaxRetries: c.cfg.MaxRetries, JitterEnabled: true, BudgetMS: c.cfg.RetryBudgetMS},
		func(ctx context.Context, a retry.Attempt) retry.Outcome {
			m, err := c.client.Messages.New(ctx, params)
			if err == nil {
				msg = m
				return retry.Outcome{}
			}
			status := anthropicErrorStatus(err)
			return retry.Outcome{
				Retryable: retry.ShouldRetryStatus(status) || retry.IsRetryableTransportError(err),
				Status:    status,
				Err:       fmt.Errorf("llmclient: anthropic completion: %w", err),
			}
		})
	if retryErr != nil {
		return Response{}, retryErr
	}
	return fromAnthropicMessage(msg)
}

func (c *AnthropicClient) CompleteWithStream(ctx context.Context, req Request, onDelta DeltaFunc) (Response, error) {
	return DefaultCompleteWithStream(ctx, c, req, onDelta)
}

func toAnthropicParams(req Request) (anthropic.MessageNewParams, error) {
	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == models.RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: m.Text()})
			continue
		}
		wire, err := toAnthropicMessage(m)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		messages = append(messages, wire)
	}

	maxTokens := int64(1024)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
		System:    system,
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: tool.Schema},
			},
		})
	}
	return params, nil
}

func toAnthropicMessage(m models.Message) (anthropic.MessageParam, error) {
	role := anthropic.MessageParamRoleUser
	if m.Role == models.RoleAssistant {
		role = anthropic.MessageParamRoleAssistant
	}

	var blocks []anthropic.ContentBlockParamUnion
	for _, b := range m.Content {
		switch b.Type {
		case models.BlockText:
			blocks = append(blocks, anthropic.NewTextBlock(b.Text))
		case models.BlockToolCall:
			var input any
			if len(b.Arguments) > 0 {
				if err := json.Unmarshal(b.Arguments, &input); err != nil {
					return anthropic.MessageParam{}, fmt.Errorf("llmclient: decode tool arguments: %w", err)
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
		}
	}
	if m.Role == models.RoleTool {
		blocks = append(blocks, anthropic.NewToolResultBlock(m.ToolCallID, m.Text(), m.IsError))
	}

	return anthropic.MessageParam{Role: role, Content: blocks}, nil
}

func fromAnthropicMessage(msg *anthropic.Message) (Response, error) {
	if msg == nil {
		return Response{}, fmt.Errorf("llmclient: anthropic returned no message")
	}

	var blocks []models.ContentBlock
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			blocks = append(blocks, models.TextBlock(variant.Text))
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(variant.Input)
			blocks = append(blocks, models.ToolCallBlock(variant.ID, variant.Name, args))
		}
	}

	return Response{
		Message:      models.Message{Role: models.RoleAssistant, Content: blocks},
		FinishReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

// anthropicErrorStatus extracts the HTTP status from an SDK error when
// it wraps one, returning 0 otherwise so the transport-error path
// still gets a chance to classify it as retryable.
func anthropicErrorStatus(err error) int {
	var apiErr *anthropic.Error
	if ok := asAnthropicAPIError(err, &apiErr); ok {
		return apiErr.StatusCode
	}
	return 0
}

func asAnthropicAPIError(err error, target **anthropic.Error) bool {
	apiErr, ok := err.(*anthropic.Error)
	if ok {
		*target = apiErr
	}
	return ok
}
