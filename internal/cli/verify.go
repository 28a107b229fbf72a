package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacledger/pacledger/internal/chain"
	"github.com/pacledger/pacledger/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
}

// VerifyResult holds the verify command output.
type VerifyResult struct {
	Records int64  `json:"records"`
	ChainOK bool   `json:"chain_ok"`
	Error   string `json:"error,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit chain end to end",
		Long: `Recompute every record hash from genesis and check each link. Exits 1
if the chain is broken.

Example:
  pacledger verify --db ./pacledger.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	// Verification reads the raw records; it must not go through a
	// rehydrated machine, since rehydration itself refuses broken chains.
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	records, err := st.Records(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read audit trail", err)
	}

	result := VerifyResult{Records: int64(len(records)), ChainOK: true}
	if verr := chain.VerifyRecords(records); verr != nil {
		result.ChainOK = false
		result.Error = verr.Error()
	}

	if opts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else if result.ChainOK {
		fmt.Fprintf(cmd.OutOrStdout(), "chain ok (%d records)\n", result.Records)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "chain BROKEN: %s\n", result.Error)
	}

	if !result.ChainOK {
		return NewExitError(ExitFailure, "audit chain verification failed")
	}
	return nil
}
