package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// OrderOptions holds flags for the order command.
type OrderOptions struct {
	*RootOptions
	Database string
}

// OrderResult holds the order command output.
type OrderResult struct {
	Order []string `json:"order"`
}

// NewOrderCommand creates the order command.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Show the dependency graph in topological order",
		Long: `Show all registered artifacts in dependency order. Ties between
nodes of equal in-degree break by registration order, so the output is
stable across runs.

Example:
  pacledger order --db ./pacledger.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runOrder(opts *OrderOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	m, st, err := openMachine(ctx, opts.Database, "")
	if err != nil {
		return err
	}
	defer st.Close()

	order := m.Graph().TopologicalOrder()

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), OrderResult{Order: order})
	}
	if len(order) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no artifacts registered")
		return nil
	}
	for i, id := range order {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, id)
	}
	return nil
}
