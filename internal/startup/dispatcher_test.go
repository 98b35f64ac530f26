package startup

import (
	"context"
	"strings"
	"testing"
)

func fixedEnv(values map[string]string) Getenv {
	return func(key string) string { return values[key] }
}

func TestParseModeDefaultsToLocal(t *testing.T) {
	mode, err := ParseMode("")
	if err != nil {
		t.Fatalf("ParseMode(\"\"): %v", err)
	}
	if mode != ModeLocal {
		t.Fatalf("mode = %q, want local", mode)
	}
}

func TestParseModeUnknown(t *testing.T) {
	_, err := ParseMode("carrier-pigeon")
	if err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestResolveMissingCredentialFailsClosed(t *testing.T) {
	_, err := Resolve(context.Background(), Flags{Model: "gpt-4o-mini"}, fixedEnv(nil))
	if err == nil {
		t.Fatalf("expected error when no credential is available")
	}
	if !strings.Contains(err.Error(), "--openai-api-key") {
		t.Fatalf("error = %v, want hint flag name", err)
	}
}

func TestResolveSucceedsWithEnvCredential(t *testing.T) {
	resolved, err := Resolve(context.Background(), Flags{Model: "anthropic/claude-sonnet-4", Mode: "local"},
		fixedEnv(map[string]string{"ANTHROPIC_API_KEY": "sk-test"}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.ModelRef.Model != "claude-sonnet-4" {
		t.Fatalf("Model = %q, want claude-sonnet-4", resolved.ModelRef.Model)
	}
	if resolved.Mode != ModeLocal {
		t.Fatalf("Mode = %q, want local", resolved.Mode)
	}
	if resolved.Client == nil {
		t.Fatalf("Client is nil")
	}
}

func TestResolveRejectsBadModelBeforeCredentials(t *testing.T) {
	_, err := Resolve(context.Background(), Flags{Model: "foo/model"}, fixedEnv(nil))
	if err == nil {
		t.Fatalf("expected error for unsupported provider")
	}
}
