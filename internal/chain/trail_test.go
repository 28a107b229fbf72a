package chain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacledger/pacledger/internal/artifact"
)

func fixedClock() func() time.Time {
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newTestTrail() (*Trail, *MemoryLedger) {
	ledger := NewMemoryLedger()
	return New(ledger, WithClock(fixedClock())), ledger
}

func TestAppendAssignsGapFreeSequence(t *testing.T) {
	trail, _ := newTestTrail()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec, err := trail.Append(ctx, Event{PacID: "PAC-100", Kind: EventDispatched})
		require.NoError(t, err)
		assert.Equal(t, int64(i), rec.Seq)
	}
}

func TestGenesisRecordBindsToSentinel(t *testing.T) {
	trail, _ := newTestTrail()

	rec, err := trail.Append(context.Background(), Event{PacID: "PAC-100", Kind: EventDispatched})
	require.NoError(t, err)

	assert.Equal(t, int64(0), rec.Seq)
	assert.Equal(t, artifact.GenesisHash, rec.PrevHash)
	assert.True(t, artifact.IsDigest(rec.RecordHash))
}

func TestAppendChainsToPrevious(t *testing.T) {
	trail, _ := newTestTrail()
	ctx := context.Background()

	r0, err := trail.Append(ctx, Event{PacID: "PAC-100", Kind: EventDispatched})
	require.NoError(t, err)
	r1, err := trail.Append(ctx, Event{PacID: "PAC-100", Kind: EventWrapReceived})
	require.NoError(t, err)

	assert.Equal(t, r0.RecordHash, r1.PrevHash, "record N's hash becomes record N+1's prev hash")
}

func TestVerifyChainCleanTrail(t *testing.T) {
	trail, _ := newTestTrail()
	ctx := context.Background()

	kinds := []EventKind{EventDispatched, EventWrapReceived, EventBERIssued, EventPDOCommitted}
	for _, k := range kinds {
		_, err := trail.Append(ctx, Event{PacID: "PAC-100", Kind: k})
		require.NoError(t, err)
	}

	ok, err := trail.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	trail, ledger := newTestTrail()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := trail.Append(ctx, Event{PacID: "PAC-100", Kind: EventDispatched})
		require.NoError(t, err)
	}

	require.NoError(t, ledger.Tamper(2, func(r *AuditRecord) {
		r.Detail = "rewritten history"
	}))

	ok, err := trail.VerifyChain(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "mutated record content must break verification")
}

func TestVerifyChainDetectsRecomputedTampering(t *testing.T) {
	trail, ledger := newTestTrail()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := trail.Append(ctx, Event{PacID: "PAC-100", Kind: EventDispatched})
		require.NoError(t, err)
	}

	// Recomputing the tampered record's own hash still breaks the next
	// record's linkage: tampering cannot be hidden mid-chain.
	require.NoError(t, ledger.Tamper(2, func(r *AuditRecord) {
		r.Detail = "rewritten history"
		h, err := ComputeRecordHash(*r)
		require.NoError(t, err)
		r.RecordHash = h
	}))

	ok, err := trail.VerifyChain(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRecordsReportsFirstBreak(t *testing.T) {
	trail, ledger := newTestTrail()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := trail.Append(ctx, Event{PacID: "PAC-100", Kind: EventDispatched})
		require.NoError(t, err)
	}

	require.NoError(t, ledger.Tamper(1, func(r *AuditRecord) { r.PacID = "PAC-999" }))

	records, err := ledger.Records(ctx)
	require.NoError(t, err)

	verr := VerifyRecords(records)
	require.Error(t, verr)
	var ie *IntegrityError
	require.ErrorAs(t, verr, &ie)
	assert.Equal(t, int64(1), ie.Seq)
}

func TestQueryFiltersByPac(t *testing.T) {
	trail, _ := newTestTrail()
	ctx := context.Background()

	_, err := trail.Append(ctx, Event{PacID: "PAC-100", Kind: EventDispatched})
	require.NoError(t, err)
	_, err = trail.Append(ctx, Event{PacID: "PAC-200", Kind: EventDispatched})
	require.NoError(t, err)
	_, err = trail.Append(ctx, Event{PacID: "PAC-100", Kind: EventWrapReceived})
	require.NoError(t, err)

	recs, err := trail.ForPac(ctx, "PAC-100")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, EventDispatched, recs[0].Kind)
	assert.Equal(t, EventWrapReceived, recs[1].Kind)
}

func TestConcurrentAppendsLinearize(t *testing.T) {
	trail, ledger := newTestTrail()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := trail.Append(ctx, Event{PacID: "PAC-100", Kind: EventDispatched})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := ledger.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 20)

	verr := VerifyRecords(records)
	assert.NoError(t, verr, "linearized appends must form a valid chain")
}

func TestTrailResumesFromExistingLedger(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	first := New(ledger, WithClock(fixedClock()))
	r0, err := first.Append(ctx, Event{PacID: "PAC-100", Kind: EventDispatched})
	require.NoError(t, err)

	// A fresh trail over the same ledger continues the chain.
	second := New(ledger, WithClock(fixedClock()))
	r1, err := second.Append(ctx, Event{PacID: "PAC-100", Kind: EventWrapReceived})
	require.NoError(t, err)

	assert.Equal(t, int64(1), r1.Seq)
	assert.Equal(t, r0.RecordHash, r1.PrevHash)
}
