package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// testDB returns a path for a fresh database in a temp dir.
func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// execCommand builds and executes one command, returning its stdout.
func execCommand(t *testing.T, newCmd func(*RootOptions) *cobra.Command, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := newCmd(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// driveToBERRequired dispatches a PAC and records its WRAP.
func driveToBERRequired(t *testing.T, dbPath, pacID string) {
	t.Helper()
	_, err := execCommand(t, NewDispatchCommand, "text", pacID, "--db", dbPath)
	require.NoError(t, err)
	_, err = execCommand(t, NewWrapCommand, "text", pacID, "W-"+pacID, "--db", dbPath, "--issuer", "agent-7")
	require.NoError(t, err)
}

// driveToComplete runs the full approve flow for a PAC.
func driveToComplete(t *testing.T, dbPath, pacID string) {
	t.Helper()
	driveToBERRequired(t, dbPath, pacID)
	_, err := execCommand(t, NewBERCommand, "text", pacID, "B-"+pacID, "--db", dbPath, "--decision", "APPROVE")
	require.NoError(t, err)
	_, err = execCommand(t, NewPDOCommand, "text", pacID, "P-"+pacID, "--db", dbPath, "--outcome", "delivered")
	require.NoError(t, err)
}
