package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/tau/internal/agentloop"
	"github.com/haasonsaas/tau/internal/llmclient"
	"github.com/haasonsaas/tau/internal/session"
	"github.com/haasonsaas/tau/internal/startup"
	"github.com/spf13/cobra"
)

// buildPromptCmd creates the "prompt" command: the local runtime mode
// from spec §2's control-flow summary ("C11 ... hands execution to ...
// C7 (for local prompt loops)"). It loads (or creates) a session file,
// restores its lineage as agent history, runs one prompt turn, and
// appends the resulting messages back to the session.
func buildPromptCmd() *cobra.Command {
	var (
		model        string
		sessionPath  string
		systemPrompt string
		toolPreset   string
		maxRetries   int
	)

	cmd := &cobra.Command{
		Use:   "prompt [text]",
		Short: "Run a single prompt through the local agent loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := startup.Resolve(cmd.Context(), startup.Flags{
				Model:      model,
				Mode:       "local",
				ToolPreset: toolPreset,
				MaxRetries: maxRetries,
			}, nil)
			if err != nil {
				return err
			}

			store, err := session.Load(sessionPath, session.LoadOptions{
				Kind: session.BackendKindFromEnv(os.Getenv),
				DSN:  os.Getenv("TAU_SESSION_POSTGRES_DSN"),
			})
			if err != nil {
				return fmt.Errorf("tau prompt: load session: %w", err)
			}
			defer store.Close()

			head, err := store.EnsureInitialized(systemPrompt)
			if err != nil {
				return fmt.Errorf("tau prompt: ensure initialized: %w", err)
			}

			loop := agentloop.New(resolved.Client, agentloop.NewRegistry(), agentloop.Config{
				DefaultModel: resolved.ModelRef.Model,
			})
			priorCount := 0
			if head != nil {
				messages, err := store.LineageMessages(*head)
				if err != nil {
					return fmt.Errorf("tau prompt: lineage: %w", err)
				}
				loop.ReplaceMessages(messages)
				priorCount = len(messages)
			}

			var finishReason string
			var usage llmclient.Usage
			loop.Subscribe(func(ev agentloop.Event) {
				if ev.Type == agentloop.EventTurnEnd {
					finishReason = ev.FinishReason
					usage = ev.Usage
				}
			})

			if _, err := loop.Prompt(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("tau prompt: %w", err)
			}

			newHead, err := store.AppendMessages(head, loop.Messages()[priorCount:])
			if err != nil {
				return fmt.Errorf("tau prompt: append: %w", err)
			}

			final := loop.Messages()[len(loop.Messages())-1]
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(final.Text()))
			fmt.Fprintf(cmd.OutOrStdout(), "head=%d finish_reason=%s input_tokens=%d output_tokens=%d\n",
				newHead, finishReason, usage.InputTokens, usage.OutputTokens)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "openai/gpt-4o-mini", "provider/model reference")
	cmd.Flags().StringVar(&sessionPath, "session", "./session.jsonl", "path to the session file")
	cmd.Flags().StringVar(&systemPrompt, "system", "you are helpful", "system prompt used only when the session is empty")
	cmd.Flags().StringVar(&toolPreset, "tool-preset", "balanced", "tool policy preset (permissive|balanced|strict|hardened)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 3, "provider call retry budget")
	return cmd
}
