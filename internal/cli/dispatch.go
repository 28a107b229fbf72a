package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacledger/pacledger/internal/loop"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions
	Database string
	Policy   string
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch <pac-id>",
		Short: "Open a session for a PAC and dispatch it",
		Long: `Open a session for a PAC and dispatch it for execution.

The session starts in PAC_RECEIVED and moves to DISPATCHED with a fresh
dispatch token, which is the first record on the audit chain. A PAC that
already has an open session in PAC_RECEIVED is dispatched without a new
session being created.

Example:
  pacledger dispatch PAC-100 --db ./pacledger.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "path to CUE authority policy (default: built-in orchestrator-only)")

	return cmd
}

func runDispatch(opts *DispatchOptions, pacID string, cmd *cobra.Command) error {
	ctx := context.Background()

	m, st, err := openMachine(ctx, opts.Database, opts.Policy)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := m.Receive(ctx, pacID); err != nil {
		// An existing PAC_RECEIVED session is fine; anything else is not.
		if code, ok := violationCode(err); !ok || code != loop.CodeDuplicateSession {
			return transitionError(err)
		}
	}

	s, err := m.Dispatch(ctx, pacID)
	if err != nil {
		return transitionError(err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), viewOf(s))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "dispatched %s token=%s\n", s.PacID, s.Token)
	return nil
}
