// Package llmclient implements the uniform chat-completion interface
// over OpenAI-compatible, Anthropic, and Google provider wire
// protocols, plus ModelRef parsing and the request/response types
// shared across all three.
package llmclient

import (
	"fmt"
	"strings"
)

// Provider identifies which wire protocol a ModelRef resolves to.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// providerAliases normalizes provider prefixes that are OpenAI-compatible
// gateways (OpenRouter, Groq, xAI, Mistral, Azure OpenAI) to ProviderOpenAI.
// The model string is only the part after the prefix; the raw prefix is
// kept in ModelRef.Alias, which the client factory uses for Azure
// detection only.
var providerAliases = map[string]Provider{
	"openai":       ProviderOpenAI,
	"openrouter":   ProviderOpenAI,
	"groq":         ProviderOpenAI,
	"xai":          ProviderOpenAI,
	"mistral":      ProviderOpenAI,
	"azure":        ProviderOpenAI,
	"azure-openai": ProviderOpenAI,
	"anthropic":    ProviderAnthropic,
	"google":       ProviderGoogle,
}

// ModelRef is a parsed "provider/model" reference.
type ModelRef struct {
	Provider Provider
	// Alias is the raw prefix as written (e.g. "groq", "azure"), which
	// differs from Provider when an alias normalized to it. Empty when
	// no prefix was present (OpenAI is the default) or when the prefix
	// is the provider's own name (e.g. "anthropic").
	Alias string
	Model string
}

// ErrMissingModel is returned when the input is empty or the model
// portion is whitespace only.
type ErrMissingModel struct{ Raw string }

func (e *ErrMissingModel) Error() string {
	return fmt.Sprintf("llmclient: missing model in %q", e.Raw)
}

// ErrUnsupportedProvider is returned when the prefix before the first
// "/" does not match any known provider or alias. It carries only the
// offending prefix, not the full model reference.
type ErrUnsupportedProvider struct{ Provider string }

func (e *ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("llmclient: unsupported provider %q", e.Provider)
}

// ParseModelRef parses "provider/model", defaulting to OpenAI when no
// provider prefix is present.
func ParseModelRef(raw string) (ModelRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ModelRef{}, &ErrMissingModel{Raw: raw}
	}

	idx := strings.Index(trimmed, "/")
	if idx < 0 {
		model := strings.TrimSpace(trimmed)
		if model == "" {
			return ModelRef{}, &ErrMissingModel{Raw: raw}
		}
		return ModelRef{Provider: ProviderOpenAI, Model: model}, nil
	}

	prefix := strings.ToLower(strings.TrimSpace(trimmed[:idx]))
	modelPart := strings.TrimSpace(trimmed[idx+1:])
	if modelPart == "" {
		return ModelRef{}, &ErrMissingModel{Raw: raw}
	}

	provider, ok := providerAliases[prefix]
	if !ok {
		return ModelRef{}, &ErrUnsupportedProvider{Provider: prefix}
	}

	alias := ""
	if prefix != string(provider) {
		alias = prefix
	}
	return ModelRef{Provider: provider, Alias: alias, Model: modelPart}, nil
}
