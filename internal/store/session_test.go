package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveSessionUpsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	row := SessionRow{
		PacID:     "PAC-100",
		Token:     "tok-1",
		State:     "DISPATCHED",
		CreatedAt: testTime,
	}
	require.NoError(t, s.SaveSession(ctx, row))

	row.State = "BER_REQUIRED"
	row.WrapID = "W1"
	row.EscalateAt = testTime.Add(48 * time.Hour)
	require.NoError(t, s.SaveSession(ctx, row))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	got := sessions[0]
	assert.Equal(t, "BER_REQUIRED", got.State)
	assert.Equal(t, "W1", got.WrapID)
	assert.Equal(t, testTime, got.CreatedAt)
	assert.Equal(t, testTime.Add(48*time.Hour), got.EscalateAt)
	assert.True(t, got.TerminalAt.IsZero(), "empty column maps back to zero time")
}

func TestSessionsOrderedByPacID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, pac := range []string{"PAC-300", "PAC-100", "PAC-200"} {
		require.NoError(t, s.SaveSession(ctx, SessionRow{
			PacID:     pac,
			Token:     "t",
			State:     "PAC_RECEIVED",
			CreatedAt: testTime,
		}))
	}

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "PAC-100", sessions[0].PacID)
	assert.Equal(t, "PAC-200", sessions[1].PacID)
	assert.Equal(t, "PAC-300", sessions[2].PacID)
}
