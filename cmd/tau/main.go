// Package main provides the CLI entry point for Tau, an operator-
// controlled agent platform that brokers LLM conversations across
// multiple providers and surfaces the resulting work through several
// inbound transports.
//
// # Basic Usage
//
// Run a single local prompt against a persisted session:
//
//	tau prompt --model anthropic/claude-sonnet-4 --session ./session.jsonl "summarize this repo"
//
// Inspect or repair a session file:
//
//	tau session validate ./session.jsonl
//	tau session repair ./session.jsonl
//
// Validate or dispatch an RPC frame:
//
//	tau rpc validate ./frame.json
//	tau rpc serve
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() so tests can exercise it directly.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tau",
		Short: "Tau - operator-controlled agent platform",
		Long: `Tau brokers LLM conversations across multiple providers (OpenAI-compatible,
Anthropic, Google) and surfaces the resulting work through several inbound
transports: local CLI, GitHub issues, Slack, a multi-channel messenger
bridge, and an RPC frame protocol for external control.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildPromptCmd(),
		buildSessionCmd(),
		buildChannelCmd(),
		buildRPCCmd(),
		buildBridgeCmd(),
	)
	return rootCmd
}
