package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haasonsaas/tau/internal/agentloop"
	"github.com/haasonsaas/tau/internal/rpc"
	"github.com/haasonsaas/tau/internal/session"
	"github.com/haasonsaas/tau/internal/startup"
	"github.com/spf13/cobra"
)

// buildRPCCmd creates the "rpc" command group: the four surfaces spec
// §4.7 names (validate file, dispatch file, dispatch NDJSON, serve
// NDJSON). All four share one Dispatcher wired the same way, so a
// frame accepted by "validate" behaves identically when later run
// through "serve".
func buildRPCCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rpc", Short: "Validate and dispatch RPC frames"}
	cmd.AddCommand(buildRPCValidateCmd(), buildRPCDispatchCmd(), buildRPCDispatchNDJSONCmd(), buildRPCServeCmd())
	return cmd
}

// buildDispatcher wires every registered RPC kind against a session
// store bound to sessionPath (spec §4.7: "dispatching the same C7
// operations"). The run.start kind additionally needs a provider
// client, resolved the same way the local "prompt" command resolves
// one.
func buildDispatcher(cmd *cobra.Command, sessionPath, model string) (*rpc.Dispatcher, func() error, error) {
	store, err := openSession(sessionPath)
	if err != nil {
		return nil, nil, err
	}

	d := rpc.NewDispatcher()
	rpc.RegisterSessionHandlers(d, store)
	rpc.RegisterChannelHandlers(d)

	if model != "" {
		resolved, err := startup.Resolve(cmd.Context(), startup.Flags{Model: model, Mode: "rpc"}, nil)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		loop := agentloop.New(resolved.Client, agentloop.NewRegistry(), agentloop.Config{DefaultModel: resolved.ModelRef.Model})
		rpc.RegisterRunHandlers(d, loop)
	}

	return d, store.Close, nil
}

func buildRPCValidateCmd() *cobra.Command {
	var sessionPath, model string
	cmd := &cobra.Command{
		Use:   "validate [frame-file]",
		Short: "Read, parse, and print a single validation summary line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeStore, err := buildDispatcher(cmd, sessionPath, model)
			if err != nil {
				return err
			}
			defer closeStore()

			summary, err := d.ValidateFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionPath, "session", "./session.jsonl", "session file session.* kinds operate on")
	cmd.Flags().StringVar(&model, "model", "", "provider/model for run.start; leave empty to disable it")
	return cmd
}

func buildRPCDispatchCmd() *cobra.Command {
	var sessionPath, model string
	cmd := &cobra.Command{
		Use:   "dispatch [frame-file]",
		Short: "Read, dispatch, and print the response frame as pretty JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeStore, err := buildDispatcher(cmd, sessionPath, model)
			if err != nil {
				return err
			}
			defer closeStore()

			pretty, isErr, err := d.DispatchFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty)
			if isErr {
				return fmt.Errorf("rpc dispatch returned an error response")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionPath, "session", "./session.jsonl", "session file session.* kinds operate on")
	cmd.Flags().StringVar(&model, "model", "", "provider/model for run.start; leave empty to disable it")
	return cmd
}

func buildRPCDispatchNDJSONCmd() *cobra.Command {
	var sessionPath, model, inputPath string
	cmd := &cobra.Command{
		Use:   "dispatch-ndjson",
		Short: "Dispatch one frame per NDJSON line, writing one response line per request",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeStore, err := buildDispatcher(cmd, sessionPath, model)
			if err != nil {
				return err
			}
			defer closeStore()

			in := cmd.InOrStdin()
			if inputPath != "" {
				f, err := os.Open(inputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			anyErr, err := d.DispatchNDJSON(in, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if anyErr {
				return fmt.Errorf("one or more frames dispatched to an error response")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionPath, "session", "./session.jsonl", "session file session.* kinds operate on")
	cmd.Flags().StringVar(&model, "model", "", "provider/model for run.start; leave empty to disable it")
	cmd.Flags().StringVar(&inputPath, "input", "", "NDJSON file to read instead of stdin")
	return cmd
}

func buildRPCServeCmd() *cobra.Command {
	var sessionPath, model string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve RPC frames over stdin/stdout until EOF or interrupt",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeStore, err := buildDispatcher(cmd, sessionPath, model)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return d.ServeNDJSON(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sessionPath, "session", "./session.jsonl", "session file session.* kinds operate on")
	cmd.Flags().StringVar(&model, "model", "", "provider/model for run.start; leave empty to disable it")
	return cmd
}
