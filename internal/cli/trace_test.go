package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := execCommand(t, NewTraceCommand, "text", "PAC-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceEmptyPac(t *testing.T) {
	db := testDB(t)
	_, err := execCommand(t, NewDispatchCommand, "text", "PAC-other", "--db", db)
	require.NoError(t, err)

	out, err := execCommand(t, NewTraceCommand, "text", "PAC-unknown", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "no audit records")
}

func TestTraceHappyPathTimeline(t *testing.T) {
	db := testDB(t)
	driveToComplete(t, db, "PAC-1")

	out, err := execCommand(t, NewTraceCommand, "json", "PAC-1", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)

	result := resp.Data
	assert.Equal(t, "PAC-1", result.PacID)
	assert.Equal(t, "SESSION_COMPLETE", result.State)
	assert.True(t, result.ChainOK)

	require.Len(t, result.Timeline, 4)
	assert.Equal(t, "DISPATCHED", result.Timeline[0].Kind)
	assert.Equal(t, "WRAP_RECEIVED", result.Timeline[1].Kind)
	assert.Equal(t, "BER_ISSUED", result.Timeline[2].Kind)
	assert.Equal(t, "PDO_COMMITTED", result.Timeline[3].Kind)

	// Each record links to the previous.
	for i := 1; i < len(result.Timeline); i++ {
		assert.Equal(t, result.Timeline[i-1].RecordHash, result.Timeline[i].PrevHash)
	}

	require.Len(t, result.Artifacts, 3)
}

func TestTraceKindFilter(t *testing.T) {
	db := testDB(t)
	driveToComplete(t, db, "PAC-1")

	out, err := execCommand(t, NewTraceCommand, "json", "PAC-1", "--db", db, "--kind", "WRAP_RECEIVED")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Timeline, 1)
	assert.Equal(t, "WRAP_RECEIVED", resp.Data.Timeline[0].Kind)
}

func TestTraceTextOutput(t *testing.T) {
	db := testDB(t)
	driveToComplete(t, db, "PAC-1")

	out, err := execCommand(t, NewTraceCommand, "text", "PAC-1", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "PAC: PAC-1 (SESSION_COMPLETE)")
	assert.Contains(t, out, "[0] DISPATCHED")
	assert.Contains(t, out, "chain: ok")
	assert.Contains(t, out, "artifacts:")
}
