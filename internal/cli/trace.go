package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacledger/pacledger/internal/chain"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Kind     string // optional - filter to one event kind
}

// TraceEvent is one audit record in the trace timeline.
type TraceEvent struct {
	Seq          int64  `json:"seq"`
	Kind         string `json:"kind"`
	ArtifactHash string `json:"artifact_hash,omitempty"`
	Detail       string `json:"detail,omitempty"`
	PrevHash     string `json:"prev_hash"`
	RecordHash   string `json:"record_hash"`
	RecordedAt   string `json:"recorded_at"`
}

// TraceArtifact is one stored artifact in the trace output.
type TraceArtifact struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Issuer      string `json:"issuer"`
	ParentID    string `json:"parent_id,omitempty"`
	ContentHash string `json:"content_hash"`
}

// TraceResult holds the complete trace output for one PAC.
type TraceResult struct {
	PacID     string          `json:"pac_id"`
	State     string          `json:"state,omitempty"`
	Timeline  []TraceEvent    `json:"timeline"`
	Artifacts []TraceArtifact `json:"artifacts"`
	ChainOK   bool            `json:"chain_ok"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <pac-id>",
		Short: "Show the audit timeline for a PAC",
		Long: `Show the audit timeline for a PAC: its chained records in sequence
order, the artifacts it produced, and whether the full chain verifies.

Examples:
  pacledger trace PAC-100 --db ./pacledger.db
  pacledger trace PAC-100 --db ./pacledger.db --kind WRAP_RECEIVED
  pacledger trace PAC-100 --db ./pacledger.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind")

	return cmd
}

func runTrace(opts *TraceOptions, pacID string, cmd *cobra.Command) error {
	ctx := context.Background()

	m, st, err := openMachine(ctx, opts.Database, "")
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := m.Trail().ForPac(ctx, pacID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query audit trail", err)
	}

	arts, err := st.ArtifactsForPac(ctx, pacID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query artifacts", err)
	}

	chainOK, err := m.Trail().VerifyChain(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to verify chain", err)
	}

	result := TraceResult{
		PacID:     pacID,
		Timeline:  buildTimeline(records, opts.Kind),
		Artifacts: make([]TraceArtifact, 0, len(arts)),
		ChainOK:   chainOK,
	}
	if s, ok := m.Session(pacID); ok {
		result.State = string(s.State)
	}
	for _, a := range arts {
		result.Artifacts = append(result.Artifacts, TraceArtifact{
			ID:          a.ID,
			Kind:        string(a.Kind),
			Issuer:      a.Issuer,
			ParentID:    a.ParentID,
			ContentHash: a.ContentHash,
		})
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	return outputTraceText(cmd, result)
}

// buildTimeline converts audit records to trace events, optionally
// filtered to one kind.
func buildTimeline(records []chain.AuditRecord, kindFilter string) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(records))
	for _, r := range records {
		if kindFilter != "" && string(r.Kind) != kindFilter {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:          r.Seq,
			Kind:         string(r.Kind),
			ArtifactHash: r.ArtifactHash,
			Detail:       r.Detail,
			PrevHash:     r.PrevHash,
			RecordHash:   r.RecordHash,
			RecordedAt:   r.RecordedAt.Format("2006-01-02T15:04:05.000000000Z07:00"),
		})
	}
	return timeline
}

func outputTraceText(cmd *cobra.Command, result TraceResult) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "PAC: %s", result.PacID)
	if result.State != "" {
		fmt.Fprintf(out, " (%s)", result.State)
	}
	fmt.Fprintln(out)

	if len(result.Timeline) == 0 {
		fmt.Fprintln(out, "no audit records")
	}
	for _, ev := range result.Timeline {
		fmt.Fprintf(out, "  [%d] %s", ev.Seq, ev.Kind)
		if ev.Detail != "" {
			fmt.Fprintf(out, " %s", ev.Detail)
		}
		if ev.ArtifactHash != "" {
			fmt.Fprintf(out, " artifact=%.12s", ev.ArtifactHash)
		}
		fmt.Fprintln(out)
	}

	if len(result.Artifacts) > 0 {
		fmt.Fprintln(out, "artifacts:")
		for _, a := range result.Artifacts {
			fmt.Fprintf(out, "  %s %s issuer=%s hash=%.12s\n", a.Kind, a.ID, a.Issuer, a.ContentHash)
		}
	}

	if result.ChainOK {
		fmt.Fprintln(out, "chain: ok")
	} else {
		fmt.Fprintln(out, "chain: BROKEN")
	}
	return nil
}
