package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// WrapOptions holds flags for the wrap command.
type WrapOptions struct {
	*RootOptions
	Database string
	Policy   string
	Issuer   string
	Payload  string
}

// NewWrapCommand creates the wrap command.
func NewWrapCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WrapOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "wrap <pac-id> <wrap-id>",
		Short: "Record the WRAP returned for a dispatched PAC",
		Long: `Record the WRAP returned for a dispatched PAC.

The WRAP is stored write-once in the artifact store and the session moves
to BER_REQUIRED with its escalation deadline set. A session can carry
exactly one WRAP; a second wrap for the same PAC is rejected.

Example:
  pacledger wrap PAC-100 W1 --db ./pacledger.db --issuer agent-7 --payload '{"result":"done"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrap(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "path to CUE authority policy")
	cmd.Flags().StringVar(&opts.Issuer, "issuer", "", "identity of the executing agent (required)")
	_ = cmd.MarkFlagRequired("issuer")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "WRAP payload as a JSON object")

	return cmd
}

func runWrap(opts *WrapOptions, pacID, wrapID string, cmd *cobra.Command) error {
	ctx := context.Background()

	payload, err := parsePayload(opts.Payload)
	if err != nil {
		return err
	}

	m, st, err := openMachine(ctx, opts.Database, opts.Policy)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := m.ReceiveWrap(ctx, pacID, wrapID, opts.Issuer, payload)
	if err != nil {
		return transitionError(err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), viewOf(s))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrap %s accepted for %s, decision due %s\n",
		s.WrapID, s.PacID, s.EscalateAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
