package llmclient

import (
	"errors"
	"testing"
)

func TestParseModelRefDefaultsToOpenAI(t *testing.T) {
	ref, err := ParseModelRef("gpt-4o")
	if err != nil {
		t.Fatalf("ParseModelRef: %v", err)
	}
	if ref.Provider != ProviderOpenAI || ref.Model != "gpt-4o" {
		t.Fatalf("ref = %+v", ref)
	}
}

func TestParseModelRefExplicitProvider(t *testing.T) {
	ref, err := ParseModelRef("anthropic/claude-3-5-sonnet")
	if err != nil {
		t.Fatalf("ParseModelRef: %v", err)
	}
	if ref.Provider != ProviderAnthropic || ref.Model != "claude-3-5-sonnet" {
		t.Fatalf("ref = %+v", ref)
	}
}

func TestParseModelRefAliasesNormalizeToOpenAI(t *testing.T) {
	cases := map[string]string{
		"openrouter/meta-llama/llama-3": "meta-llama/llama-3",
		"groq/llama3-70b":               "llama3-70b",
		"xai/grok-2":                    "grok-2",
		"mistral/mistral-large":         "mistral-large",
		"azure/gpt-4o":                  "gpt-4o",
		"azure-openai/gpt-4o":           "gpt-4o",
	}
	for raw, wantModel := range cases {
		ref, err := ParseModelRef(raw)
		if err != nil {
			t.Fatalf("ParseModelRef(%q): %v", raw, err)
		}
		if ref.Provider != ProviderOpenAI {
			t.Fatalf("ParseModelRef(%q).Provider = %v, want openai", raw, ref.Provider)
		}
		if ref.Model != wantModel {
			t.Fatalf("ParseModelRef(%q).Model = %q, want %q", raw, ref.Model, wantModel)
		}
	}
}

func TestParseModelRefMissingModel(t *testing.T) {
	cases := []string{"", "   ", "openai/", "openai/   "}
	for _, raw := range cases {
		_, err := ParseModelRef(raw)
		var missing *ErrMissingModel
		if !errors.As(err, &missing) {
			t.Fatalf("ParseModelRef(%q) err = %v, want ErrMissingModel", raw, err)
		}
	}
}

func TestParseModelRefUnsupportedProvider(t *testing.T) {
	_, err := ParseModelRef("cohere/command-r")
	var unsupported *ErrUnsupportedProvider
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want ErrUnsupportedProvider", err)
	}
	if unsupported.Provider != "cohere" {
		t.Fatalf("Provider = %q, want %q", unsupported.Provider, "cohere")
	}
}
