package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// InvalidateOptions holds flags for the invalidate and timeout commands.
type InvalidateOptions struct {
	*RootOptions
	Database string
	Policy   string
	Reason   string
	Force    bool
}

// NewInvalidateCommand creates the invalidate command.
func NewInvalidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvalidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invalidate <pac-id>",
		Short: "Cancel a session",
		Long: `Cancel a non-completed session, moving it to SESSION_INVALID with an
audit record carrying the reason. SESSION_INVALID is a sink: invalidating
an already-invalid session is a no-op. A completed session cannot be
invalidated.

Example:
  pacledger invalidate PAC-100 --db ./pacledger.db --reason "operator cancel"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvalidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "path to CUE authority policy")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason code for the audit record (required)")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

// NewTimeoutCommand creates the timeout command.
func NewTimeoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvalidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "timeout <pac-id>",
		Short: "Invalidate a session whose decision deadline lapsed",
		Long: `Invalidate a session stuck awaiting a decision past its escalation
deadline. Refuses if the deadline has not lapsed yet unless --force is
given. Intended to be fired by an external scheduler.

Example:
  pacledger timeout PAC-100 --db ./pacledger.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimeout(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "path to CUE authority policy")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "time out even before the deadline")

	return cmd
}

func runInvalidate(opts *InvalidateOptions, pacID string, cmd *cobra.Command) error {
	ctx := context.Background()

	m, st, err := openMachine(ctx, opts.Database, opts.Policy)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := m.Invalidate(ctx, pacID, opts.Reason)
	if err != nil {
		return transitionError(err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), viewOf(s))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %s invalidated (%s)\n", s.PacID, s.Reason)
	return nil
}

func runTimeout(opts *InvalidateOptions, pacID string, cmd *cobra.Command) error {
	ctx := context.Background()

	m, st, err := openMachine(ctx, opts.Database, opts.Policy)
	if err != nil {
		return err
	}
	defer st.Close()

	if !opts.Force {
		s, ok := m.Session(pacID)
		if ok && !s.Overdue(timeNow()) {
			return NewExitError(ExitFailure, "escalation deadline has not lapsed; use --force to override")
		}
	}

	s, err := m.Timeout(ctx, pacID)
	if err != nil {
		return transitionError(err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), viewOf(s))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %s timed out\n", s.PacID)
	return nil
}
