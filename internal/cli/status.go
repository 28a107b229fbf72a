package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status [pac-id]",
		Short: "Show session state for one PAC or all sessions",
		Long: `Show the session state for a PAC, or all sessions when no PAC is
given.

Examples:
  pacledger status --db ./pacledger.db
  pacledger status PAC-100 --db ./pacledger.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pacID := ""
			if len(args) == 1 {
				pacID = args[0]
			}
			return runStatus(opts, pacID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStatus(opts *StatusOptions, pacID string, cmd *cobra.Command) error {
	ctx := context.Background()

	m, st, err := openMachine(ctx, opts.Database, "")
	if err != nil {
		return err
	}
	defer st.Close()

	if pacID != "" {
		s, ok := m.Session(pacID)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("no session for %s", pacID))
		}
		if opts.Format == "json" {
			return writeJSON(cmd.OutOrStdout(), viewOf(s))
		}
		fmt.Fprintln(cmd.OutOrStdout(), viewOf(s).String())
		return nil
	}

	sessions := m.Sessions()
	if opts.Format == "json" {
		views := make([]sessionView, 0, len(sessions))
		for _, s := range sessions {
			views = append(views, viewOf(s))
		}
		return writeJSON(cmd.OutOrStdout(), views)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintln(cmd.OutOrStdout(), viewOf(s).String())
	}
	return nil
}
