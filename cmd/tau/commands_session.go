package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/haasonsaas/tau/internal/session"
	"github.com/spf13/cobra"
)

// buildSessionCmd creates the "session" command group: the operator-
// facing surface over internal/session's Store (spec §4.1). Every
// subcommand loads the store bound to the given path, so the same
// cross-process lock (spec §4.1 "Locking") protects CLI invocations
// against a concurrently running bridge or RPC process.
func buildSessionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Inspect and maintain a session file"}
	cmd.AddCommand(
		buildSessionValidateCmd(),
		buildSessionRepairCmd(),
		buildSessionCompactCmd(),
		buildSessionExportCmd(),
	)
	return cmd
}

func openSession(path string) (*session.Store, error) {
	return session.Load(path, session.LoadOptions{
		Kind: session.BackendKindFromEnv(os.Getenv),
		DSN:  os.Getenv("TAU_SESSION_POSTGRES_DSN"),
	})
}

func buildSessionValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Print a one-line validation summary for a session file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.ValidationReport()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entries=%d duplicates=%d invalid_parent=%d cycles=%d valid=%t\n",
				report.Entries, report.Duplicates, report.InvalidParent, report.Cycles, report.IsValid())
			if !report.IsValid() {
				return fmt.Errorf("session at %s is invalid", args[0])
			}
			return nil
		},
	}
}

func buildSessionRepairCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "repair [path]",
		Short: "Remove duplicate, orphaned, and cyclic entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.Repair()
			if err != nil {
				return err
			}
			return printReport(cmd, report, asJSON, fmt.Sprintf(
				"removed duplicates=%d invalid_parent=%d cycles=%d backup=%s",
				len(report.RemovedDuplicateIDs), len(report.RemovedInvalidParentIDs),
				len(report.RemovedCycleIDs), report.BackupPath))
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON instead of a summary line")
	return cmd
}

func buildSessionCompactCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "compact [path] [head]",
		Short: "Rewrite the session to keep only the lineage to head",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			head, err := parseHeadArg(args[1])
			if err != nil {
				return err
			}
			store, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.CompactToLineage(head)
			if err != nil {
				return err
			}
			return printReport(cmd, report, asJSON,
				fmt.Sprintf("kept=%d head=%d", len(report.KeptIDs), report.Head))
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON instead of a summary line")
	return cmd
}

func buildSessionExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [path] [dest]",
		Short: "Export the session graph as Mermaid or Graphviz DOT (by dest extension)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSession(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Entries()
			if err != nil {
				return err
			}
			rendered := session.ExportGraph(entries, args[1])
			if err := os.WriteFile(args[1], []byte(rendered), 0o644); err != nil {
				return fmt.Errorf("tau session export: write %s: %w", args[1], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d nodes)\n", args[1], len(entries))
			return nil
		},
	}
}

func parseHeadArg(raw string) (uint64, error) {
	var head uint64
	if _, err := fmt.Sscanf(raw, "%d", &head); err != nil {
		return 0, fmt.Errorf("tau session: invalid head id %q: %w", raw, err)
	}
	return head, nil
}

func printReport(cmd *cobra.Command, report any, asJSON bool, summary string) error {
	if asJSON {
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}
