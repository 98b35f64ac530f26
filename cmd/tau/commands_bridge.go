package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/tau/internal/agentloop"
	"github.com/haasonsaas/tau/internal/bridge"
	"github.com/haasonsaas/tau/internal/channelstore"
	"github.com/haasonsaas/tau/internal/startup"
	"github.com/haasonsaas/tau/pkg/models"
)

// buildBridgeCmd creates the "bridge" command group: the Transport
// Bridge Runtime's polling-scheduler mode (spec §4.5). Each subcommand
// builds the transport-specific wiring (spec §4.5's per-transport
// Discover/Post functions) and hands it to the shared Runtime, which
// owns the eight-step pipeline regardless of which transport it runs.
func buildBridgeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "bridge", Short: "Run a transport bridge's polling scheduler"}
	cmd.AddCommand(buildBridgeGitHubCmd(), buildBridgeSlackCmd())
	return cmd
}

// commonBridgeFlags registers the flags every transport bridge shares
// and returns the pointers cobra fills in once args are parsed.
func commonBridgeFlags(cmd *cobra.Command) (model, channelRoot *string, pollSeconds *int) {
	model = cmd.Flags().String("model", "openai/gpt-4o-mini", "provider/model reference for dispatched runs")
	channelRoot = cmd.Flags().String("channel-root", "./channels", "channel store root directory")
	pollSeconds = cmd.Flags().Int("poll-seconds", 10, "polling interval in seconds")
	return
}

func runBridgeForever(cmd *cobra.Command, rt *bridge.Runtime) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rt.RunForever(ctx, func() int64 { return time.Now().UnixMilli() })
}

func channelOpener(root, transportName string) func(models.BridgeEvent) (*channelstore.Store, error) {
	return func(ev models.BridgeEvent) (*channelstore.Store, error) {
		return channelstore.Open(root, transportName, ev.ConversationID)
	}
}

func buildBridgeGitHubCmd() *cobra.Command {
	var owner, repo, requiredLabel string
	cmd := &cobra.Command{Use: "github", Short: "Poll a GitHub repository's issues and dispatch agent runs"}
	model, channelRoot, pollSeconds := commonBridgeFlags(cmd)
	cmd.Flags().StringVar(&owner, "owner", "", "repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name")
	cmd.Flags().StringVar(&requiredLabel, "required-label", "", "only act on issues carrying this label")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		resolved, err := startup.Resolve(cmd.Context(), startup.Flags{Model: *model, Mode: "github"}, nil)
		if err != nil {
			return err
		}
		token := os.Getenv("GITHUB_TOKEN")
		if token == "" {
			return fmt.Errorf("tau bridge github: GITHUB_TOKEN is not set")
		}

		transport := bridge.NewGitHubTransport(bridge.GitHubTransportConfig{
			Owner: owner, Repo: repo, Token: token, RequiredLabel: requiredLabel,
			RetryMax: 3, RetryBaseMS: 500,
		})
		rt := bridge.New(transport, bridge.AllowAllPolicy{}, runFuncForClient(resolved), channelOpener(*channelRoot, "github"), bridge.Config{
			PollInterval: time.Duration(*pollSeconds) * time.Second,
			TurnTimeout:  2 * time.Minute,
			ArtifactRoot: *channelRoot,
		})
		return runBridgeForever(cmd, rt)
	}
	return cmd
}

func buildBridgeSlackCmd() *cobra.Command {
	var channelID string
	cmd := &cobra.Command{Use: "slack", Short: "Poll a Slack channel's history and dispatch agent runs"}
	model, channelRoot, pollSeconds := commonBridgeFlags(cmd)
	cmd.Flags().StringVar(&channelID, "channel-id", "", "Slack channel id to poll")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		resolved, err := startup.Resolve(cmd.Context(), startup.Flags{Model: *model, Mode: "slack"}, nil)
		if err != nil {
			return err
		}
		token := os.Getenv("SLACK_BOT_TOKEN")
		if token == "" {
			return fmt.Errorf("tau bridge slack: SLACK_BOT_TOKEN is not set")
		}

		transport := bridge.NewSlackTransport(bridge.SlackTransportConfig{
			Client: slackapi.New(token), ChannelID: channelID, RetryMax: 3, RetryBaseMS: 500,
		})
		rt := bridge.New(transport, bridge.AllowAllPolicy{}, runFuncForClient(resolved), channelOpener(*channelRoot, "slack"), bridge.Config{
			PollInterval: time.Duration(*pollSeconds) * time.Second,
			TurnTimeout:  2 * time.Minute,
			ArtifactRoot: *channelRoot,
		})
		return runBridgeForever(cmd, rt)
	}
	return cmd
}

// runFuncForClient builds the RunFunc every transport bridge shares:
// one fresh Agent Loop per event, seeded only with that event's text
// (spec §4.5 step 6a-b: "Builds a prompt including event metadata ...
// Runs the Agent Loop"). Each dispatch is independent, matching the
// bridge's own per-event cancellable task model (spec §5).
func runFuncForClient(resolved *startup.Resolved) bridge.RunFunc {
	return func(ctx context.Context, event models.BridgeEvent) (string, bool, error) {
		loop := agentloop.New(resolved.Client, agentloop.NewRegistry(), agentloop.Config{
			DefaultModel: resolved.ModelRef.Model,
			MaxWallTime:  2 * time.Minute,
		})
		var usageEmitted bool
		loop.Subscribe(func(ev agentloop.Event) {
			if ev.Type == agentloop.EventTurnEnd {
				usageEmitted = ev.Usage.TotalTokens > 0
			}
		})
		ev, err := loop.Prompt(ctx, event.Text)
		if err != nil {
			return "", false, err
		}
		if ev.Message == nil {
			return "", usageEmitted, nil
		}
		return ev.Message.Text(), usageEmitted, nil
	}
}
