package llmclient

import (
	"context"
	"fmt"
)

// Credentials bundles the resolved secrets a client factory needs per
// provider. Only the field matching the requested ModelRef.Provider is
// read.
type Credentials struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GoogleAPIKey    string
	MaxRetries      int
	RetryBudgetMS   uint64
}

// azureAliases is the set of alias prefixes that select Azure auth
// semantics on the OpenAI-compatible variant.
var azureAliases = map[string]bool{"azure": true, "azure-openai": true}

// NewClient builds the concrete LlmClient for ref's provider, applying
// the alias-driven Azure detection the OpenAI-compatible variant needs;
// that variant's base URL comes from creds.OpenAIBaseURL, not the alias.
func NewClient(ctx context.Context, ref ModelRef, creds Credentials) (LlmClient, error) {
	switch ref.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:        creds.OpenAIAPIKey,
			BaseURL:       creds.OpenAIBaseURL,
			Azure:         azureAliases[ref.Alias],
			MaxRetries:    creds.MaxRetries,
			RetryBudgetMS: creds.RetryBudgetMS,
		}), nil
	case ProviderAnthropic:
		return NewAnthropicClient(AnthropicConfig{
			APIKey:        creds.AnthropicAPIKey,
			MaxRetries:    creds.MaxRetries,
			RetryBudgetMS: creds.RetryBudgetMS,
		}), nil
	case ProviderGoogle:
		return NewGoogleClient(ctx, GoogleConfig{
			APIKey:        creds.GoogleAPIKey,
			MaxRetries:    creds.MaxRetries,
			RetryBudgetMS: creds.RetryBudgetMS,
		})
	default:
		return nil, fmt.Errorf("llmclient: unhandled provider %q", ref.Provider)
	}
}
