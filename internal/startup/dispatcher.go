// Package startup implements the Startup Dispatcher (spec §4 C11): it
// resolves the model, tool policy, and credentials a run needs, then
// selects which runtime mode the process will hand execution to — a
// local prompt loop or one of the transport bridges. It is the single
// place those resolution concerns compose; everything downstream
// (agentloop.Loop, bridge.Runtime) is handed already-resolved values
// rather than reaching back into flags or the environment itself.
package startup

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/tau/internal/credentials"
	"github.com/haasonsaas/tau/internal/llmclient"
	"github.com/haasonsaas/tau/internal/toolpolicy"
)

// Mode names the runtime this process will hand execution to.
type Mode string

const (
	ModeLocal     Mode = "local"
	ModeGitHub    Mode = "github"
	ModeSlack     Mode = "slack"
	ModeDiscord   Mode = "discord"
	ModeTelegram  Mode = "telegram"
	ModeWebhook   Mode = "webhook"
	ModeRPC       Mode = "rpc"
)

// ErrUnknownMode is returned by ParseMode for any value not in the
// known mode set.
type ErrUnknownMode struct{ Raw string }

func (e *ErrUnknownMode) Error() string {
	return fmt.Sprintf("startup: unknown runtime mode %q", e.Raw)
}

var knownModes = map[Mode]bool{
	ModeLocal: true, ModeGitHub: true, ModeSlack: true,
	ModeDiscord: true, ModeTelegram: true, ModeWebhook: true, ModeRPC: true,
}

// ParseMode normalizes and validates a --mode flag value, defaulting
// to ModeLocal when empty (the "local prompt loop" fallback in spec
// §2's control-flow summary).
func ParseMode(raw string) (Mode, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ModeLocal, nil
	}
	mode := Mode(trimmed)
	if !knownModes[mode] {
		return "", &ErrUnknownMode{Raw: raw}
	}
	return mode, nil
}

// Flags bundles the CLI-flag-shaped inputs the dispatcher resolves
// against the environment. Concrete flag parsing is the CLI layer's
// job (out of scope, per spec §1); this struct is what that layer
// hands in after parsing.
type Flags struct {
	Model              string
	Mode               string
	ToolPreset         string
	OpenAIAPIKeyFlag   string
	AnthropicAPIKeyFlag string
	GoogleAPIKeyFlag   string
	GenericAPIKeyFlag  string
	MaxRetries         int
	RetryBudgetMS      uint64
}

// Resolved is everything the dispatcher produces for a run: the
// parsed model reference, a constructed provider client, the
// effective tool policy, and the selected runtime mode.
type Resolved struct {
	ModelRef llmclient.ModelRef
	Client   llmclient.LlmClient
	Policy   toolpolicy.Policy
	Mode     Mode
}

// Getenv abstracts environment lookup so callers (and tests) can
// inject a fixed environment instead of the process's real one.
type Getenv func(string) string

// Resolve parses Flags.Model, resolves the winning credential for its
// provider through the ordered candidate precedence (spec §4.3
// "Credential resolution"), builds the concrete provider client,
// resolves the named tool policy preset, and validates the requested
// runtime mode — in that order, so a bad model string or missing
// credential is reported before any transport-specific setup runs.
func Resolve(ctx context.Context, flags Flags, getenv Getenv) (*Resolved, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	ref, err := llmclient.ParseModelRef(flags.Model)
	if err != nil {
		return nil, fmt.Errorf("startup: %w", err)
	}

	creds, err := resolveCredentials(ref, flags, getenv)
	if err != nil {
		return nil, err
	}
	creds.MaxRetries = flags.MaxRetries
	creds.RetryBudgetMS = flags.RetryBudgetMS

	client, err := llmclient.NewClient(ctx, ref, creds)
	if err != nil {
		return nil, fmt.Errorf("startup: build provider client: %w", err)
	}

	preset := toolpolicy.Preset(flags.ToolPreset)
	if preset == "" {
		preset = toolpolicy.PresetBalanced
	}
	policy := toolpolicy.Resolve(preset, toolpolicy.Overrides{})

	mode, err := ParseMode(flags.Mode)
	if err != nil {
		return nil, err
	}

	return &Resolved{ModelRef: ref, Client: client, Policy: policy, Mode: mode}, nil
}

// resolveCredentials builds the provider-specific candidate list (per-
// provider CLI flag -> generic CLI flag -> provider env vars ->
// generic env var) and resolves it, failing closed with a message
// naming the provider, mode, and hint flag when nothing usable is
// found — spec §4.3's "fail closed ... includes the provider, mode,
// and a hint flag name" applies to UnsupportedAuthMode; here the
// analogous MissingCredential case is surfaced the same way.
func resolveCredentials(ref llmclient.ModelRef, flags Flags, getenv Getenv) (llmclient.Credentials, error) {
	var creds llmclient.Credentials

	switch ref.Provider {
	case llmclient.ProviderOpenAI:
		resolution, err := credentials.Resolve(string(ref.Provider), credentials.CandidateList(
			flags.OpenAIAPIKeyFlag, flags.GenericAPIKeyFlag,
			[]credentials.Candidate{
				{Source: "env:OPENAI_API_KEY", Value: getenv("OPENAI_API_KEY")},
				{Source: "env:OPENROUTER_API_KEY", Value: getenv("OPENROUTER_API_KEY")},
				{Source: "env:GROQ_API_KEY", Value: getenv("GROQ_API_KEY")},
			},
			credentials.Candidate{Source: "env:TAU_API_KEY", Value: getenv("TAU_API_KEY")},
		))
		if err != nil {
			return creds, fmt.Errorf("startup: credential for provider %q mode %q (hint: --openai-api-key): %w",
				ref.Provider, "openai", err)
		}
		creds.OpenAIAPIKey = resolution.Secret
		creds.OpenAIBaseURL = getenv("OPENAI_BASE_URL")
	case llmclient.ProviderAnthropic:
		resolution, err := credentials.Resolve(string(ref.Provider), credentials.CandidateList(
			flags.AnthropicAPIKeyFlag, flags.GenericAPIKeyFlag,
			[]credentials.Candidate{
				{Source: "env:ANTHROPIC_API_KEY", Value: getenv("ANTHROPIC_API_KEY")},
			},
			credentials.Candidate{Source: "env:TAU_API_KEY", Value: getenv("TAU_API_KEY")},
		))
		if err != nil {
			return creds, fmt.Errorf("startup: credential for provider %q mode %q (hint: --anthropic-api-key): %w",
				ref.Provider, "anthropic", err)
		}
		creds.AnthropicAPIKey = resolution.Secret
	case llmclient.ProviderGoogle:
		resolution, err := credentials.Resolve(string(ref.Provider), credentials.CandidateList(
			flags.GoogleAPIKeyFlag, flags.GenericAPIKeyFlag,
			[]credentials.Candidate{
				{Source: "env:GOOGLE_API_KEY", Value: getenv("GOOGLE_API_KEY")},
				{Source: "env:GEMINI_API_KEY", Value: getenv("GEMINI_API_KEY")},
			},
			credentials.Candidate{Source: "env:TAU_API_KEY", Value: getenv("TAU_API_KEY")},
		))
		if err != nil {
			return creds, fmt.Errorf("startup: credential for provider %q mode %q (hint: --google-api-key): %w",
				ref.Provider, "google", err)
		}
		creds.GoogleAPIKey = resolution.Secret
	default:
		return creds, fmt.Errorf("startup: unsupported provider %q", ref.Provider)
	}

	return creds, nil
}
