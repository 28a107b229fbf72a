package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pacledger/pacledger/internal/graph"
	"github.com/pacledger/pacledger/internal/policy"
)

// PDOOptions holds flags for the pdo command.
type PDOOptions struct {
	*RootOptions
	Database string
	Policy   string
	Identity string
	Outcome  string
	Payload  string
	Deps     []string
}

// NewPDOCommand creates the pdo command.
func NewPDOCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PDOOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pdo <pac-id> <pdo-id>",
		Short: "Create the final PDO and complete the session",
		Long: `Create the PDO binding the session's WRAP and BER digests and move
the session to SESSION_COMPLETE.

Dependency edges may be declared with repeated --dep flags in the form
upstream:downstream:TYPE where TYPE is DATA, APPROVAL, or SEQUENCE. The
whole batch is inserted atomically; a cycle anywhere rejects the batch
and fails the session closed.

Examples:
  pacledger pdo PAC-100 P1 --db ./pacledger.db --outcome delivered
  pacledger pdo PAC-100 P1 --db ./pacledger.db --outcome delivered \
    --dep W1:P1:DATA --dep B1:P1:APPROVAL`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPDO(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "path to CUE authority policy")
	cmd.Flags().StringVar(&opts.Identity, "identity", policy.Orchestrator, "creating identity")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "outcome text (required)")
	_ = cmd.MarkFlagRequired("outcome")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "PDO payload as a JSON object")
	cmd.Flags().StringArrayVar(&opts.Deps, "dep", nil, "dependency edge upstream:downstream:TYPE (repeatable)")

	return cmd
}

func runPDO(opts *PDOOptions, pacID, pdoID string, cmd *cobra.Command) error {
	ctx := context.Background()

	payload, err := parsePayload(opts.Payload)
	if err != nil {
		return err
	}
	deps, err := parseDeps(opts.Deps)
	if err != nil {
		return err
	}

	m, st, err := openMachine(ctx, opts.Database, opts.Policy)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := m.CreatePDO(ctx, pacID, pdoID, opts.Identity, opts.Outcome, payload, deps)
	if err != nil {
		return transitionError(err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), viewOf(s))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pdo %s committed for %s, outcome=%s\n", s.PDOID, s.PacID, s.Outcome)
	return nil
}

// parseDeps converts --dep flags to graph edges.
func parseDeps(raw []string) ([]graph.Edge, error) {
	edges := make([]graph.Edge, 0, len(raw))
	for _, d := range raw {
		parts := strings.Split(d, ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --dep %q: want upstream:downstream:TYPE", d))
		}
		typ := graph.EdgeType(parts[2])
		if !graph.ValidEdgeTypes[typ] {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --dep type %q: want DATA, APPROVAL, or SEQUENCE", parts[2]))
		}
		edges = append(edges, graph.Edge{UpstreamID: parts[0], DownstreamID: parts[1], Type: typ})
	}
	return edges, nil
}
