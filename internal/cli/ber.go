package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacledger/pacledger/internal/artifact"
	"github.com/pacledger/pacledger/internal/policy"
)

// BEROptions holds flags for the ber command.
type BEROptions struct {
	*RootOptions
	Database string
	Policy   string
	Identity string
	Decision string
	Payload  string
	Hold     bool
}

// NewBERCommand creates the ber command.
func NewBERCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BEROptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ber <pac-id> <ber-id>",
		Short: "Issue and emit the authority's decision over a WRAP",
		Long: `Issue and emit the authority's decision over a session's WRAP.

The decision step is synchronous: by default the BER is issued and emitted
in one call, and the emission lands on the audit chain. Pass --hold to stop
at BER_ISSUED and emit later with 'pacledger emit'.

Only an identity with the issue_ber and emit_ber capabilities may run this;
any other identity trips an authority violation and the session fails
closed.

Examples:
  pacledger ber PAC-100 B1 --db ./pacledger.db --decision APPROVE
  pacledger ber PAC-100 B1 --db ./pacledger.db --decision REJECT --hold`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBER(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "path to CUE authority policy")
	cmd.Flags().StringVar(&opts.Identity, "identity", policy.Orchestrator, "deciding identity")
	cmd.Flags().StringVar(&opts.Decision, "decision", "", "decision: APPROVE or REJECT (required)")
	_ = cmd.MarkFlagRequired("decision")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "BER payload as a JSON object")
	cmd.Flags().BoolVar(&opts.Hold, "hold", false, "issue without emitting")

	return cmd
}

// NewEmitCommand creates the emit command for held BERs.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BEROptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "emit <pac-id>",
		Short: "Emit a previously issued BER",
		Long: `Emit a BER that was issued with --hold, writing its audit record
and moving the session to BER_EMITTED.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "path to CUE authority policy")
	cmd.Flags().StringVar(&opts.Identity, "identity", policy.Orchestrator, "deciding identity")

	return cmd
}

func runBER(opts *BEROptions, pacID, berID string, cmd *cobra.Command) error {
	ctx := context.Background()

	decision := artifact.Decision(opts.Decision)
	if !artifact.ValidDecisions[decision] {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --decision %q: must be APPROVE or REJECT", opts.Decision))
	}

	payload, err := parsePayload(opts.Payload)
	if err != nil {
		return err
	}

	m, st, err := openMachine(ctx, opts.Database, opts.Policy)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := m.IssueBER(ctx, pacID, berID, opts.Identity, decision, payload)
	if err != nil {
		return transitionError(err)
	}
	if !opts.Hold {
		s, err = m.EmitBER(ctx, pacID, opts.Identity)
		if err != nil {
			return transitionError(err)
		}
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), viewOf(s))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ber %s %s for %s (%s)\n", s.BERID, s.Decision, s.PacID, s.State)
	return nil
}

func runEmit(opts *BEROptions, pacID string, cmd *cobra.Command) error {
	ctx := context.Background()

	m, st, err := openMachine(ctx, opts.Database, opts.Policy)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := m.EmitBER(ctx, pacID, opts.Identity)
	if err != nil {
		return transitionError(err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), viewOf(s))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ber %s emitted for %s\n", s.BERID, s.PacID)
	return nil
}
