package main

import (
	"fmt"

	"github.com/haasonsaas/tau/internal/channelstore"
	"github.com/spf13/cobra"
)

// buildChannelCmd creates the "channel" command group, the operator
// surface over internal/channelstore (spec §4.6).
func buildChannelCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "channel", Short: "Inspect and repair a channel store"}
	cmd.AddCommand(buildChannelInspectCmd(), buildChannelRepairCmd())
	return cmd
}

func channelFlags(cmd *cobra.Command) (root, transport, channelID *string) {
	root = cmd.Flags().String("root", "./channels", "channel store root directory")
	transport = cmd.Flags().String("transport", "", "transport name (e.g. slack, github)")
	channelID = cmd.Flags().String("channel", "", "channel id")
	return
}

func buildChannelInspectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "inspect", Short: "Print a record/invalid-line summary for one channel"}
	root, transport, channelID := channelFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		store, err := channelstore.Open(*root, *transport, *channelID)
		if err != nil {
			return err
		}
		report, err := store.Inspect()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"log=%d/%d(invalid) context=%d/%d(invalid) artifacts=%d active/%d expired\n",
			report.LogRecords, report.LogInvalidLines, report.ContextRecords, report.ContextInvalidLines,
			report.ArtifactsActive, report.ArtifactsExpired)
		return nil
	}
	return cmd
}

func buildChannelRepairCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "repair", Short: "Drop invalid lines, expired artifacts, and dangling artifact records"}
	root, transport, channelID := channelFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		store, err := channelstore.Open(*root, *transport, *channelID)
		if err != nil {
			return err
		}
		report, err := store.Repair()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dropped invalid=%d expired=%d missing_file=%d backups=%v\n",
			report.DroppedInvalidLines, report.DroppedExpired, report.DroppedMissingFile, report.BackupPaths)
		return nil
	}
	return cmd
}
