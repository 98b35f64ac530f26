package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/haasonsaas/tau/internal/retry"
	"github.com/haasonsaas/tau/pkg/models"
)

// GoogleConfig configures the Google (Gemini) client variant.
type GoogleConfig struct {
	APIKey        string
	MaxRetries    int
	RetryBudgetMS uint64
}

// GoogleClient implements LlmClient against the Gemini API.
type GoogleClient struct {
	client *genai.Client
	cfg    GoogleConfig
}

func NewGoogleClient(ctx context.Context, cfg GoogleConfig) (*GoogleClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("llmclient: new google client: %w", err)
	}
	return &GoogleClient{client: client, cfg: cfg}, nil
}

func (c *GoogleClient) Complete(ctx context.Context, req Request) (Response, error) {
	contents, genConfig, err := toGoogleRequest(req)
	if err != nil {
		return Response{}, err
	}

	var resp *genai.GenerateContentResponse
	retryErr := retry.Do(ctx, retry.Config{MaxRetries: c.cfg.MaxRetries, JitterEnabled: true, BudgetMS: c.cfg.RetryBudgetMS},
		func(ctx context.Context, a retry.Attempt) retry.Outcome {
			r, err := c.client.Models.GenerateContent(ctx, req.Model, contents, genConfig)
			if err == nil {
				resp = r
				return retry.Outcome{}
			}
			status := googleErrorStatus(err)
			return retry.Outcome{
				Retryable: retry.ShouldRetryStatus(status) || retry.IsRetryableTransportError(err),
				Status:    status,
				Err:       fmt.Errorf("llmclient: google completion: %w", err),
			}
		})
	if retryErr != nil {
		return Response{}, retryErr
	}
	return fromGoogleResponse(resp)
}

func (c *GoogleClient) CompleteWithStream(ctx context.Context, req Request, onDelta DeltaFunc) (Response, error) {
	return DefaultCompleteWithStream(ctx, c, req, onDelta)
}

func toGoogleRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	var contents []*genai.Content
	var systemParts []*genai.Part

	for _, m := range req.Messages {
		if m.Role == models.RoleSystem {
			systemParts = append(systemParts, genai.NewPartFromText(m.Text()))
			continue
		}
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		var parts []*genai.Part
		for _, b := range m.Content {
			switch b.Type {
			case models.BlockText:
				parts = append(parts, genai.NewPartFromText(b.Text))
			case models.BlockToolCall:
				var args map[string]any
				if len(b.Arguments) > 0 {
					if err := json.Unmarshal(b.Arguments, &args); err != nil {
						return nil, nil, fmt.Errorf("llmclient: decode tool arguments: %w", err)
					}
				}
				parts = append(parts, genai.NewPartFromFunctionCall(b.Name, args))
			}
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	config := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		config.SystemInstruction = &genai.Content{Parts: systemParts}
	}
	if req.MaxTokens != nil {
		config.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		config.Temperature = &temp
	}
	for _, tool := range req.Tools {
		config.Tools = append(config.Tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaToGoogle(tool.Schema),
			}},
		})
	}
	return contents, config, nil
}

func schemaToGoogle(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	// The uniform tool schema is a plain JSON-schema object; genai.Schema
	// accepts the same shape via its own struct fields, so round-trip
	// through JSON rather than hand-mapping every keyword.
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out genai.Schema
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return &out
}

func fromGoogleResponse(resp *genai.GenerateContentResponse) (Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return Response{}, fmt.Errorf("llmclient: google response had no candidates")
	}
	candidate := resp.Candidates[0]

	var blocks []models.ContentBlock
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				blocks = append(blocks, models.TextBlock(part.Text))
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				blocks = append(blocks, models.ToolCallBlock(part.FunctionCall.ID, part.FunctionCall.Name, args))
			}
		}
	}

	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return Response{
		Message:      models.Message{Role: models.RoleAssistant, Content: blocks},
		FinishReason: string(candidate.FinishReason),
		Usage:        usage,
	}, nil
}

func googleErrorStatus(err error) int {
	var apiErr genai.APIError
	if ok := asGoogleAPIError(err, &apiErr); ok {
		return apiErr.Code
	}
	return 0
}

func asGoogleAPIError(err error, target *genai.APIError) bool {
	apiErr, ok := err.(genai.APIError)
	if ok {
		*target = apiErr
	}
	return ok
}
