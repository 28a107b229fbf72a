package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pacledger/pacledger/internal/artifact"
)

// Ledger is the narrow persistence contract the trail appends through.
// Implementations must store records exactly as given and return them in
// ascending sequence order. internal/store provides the SQLite-backed
// implementation; MemoryLedger backs tests.
type Ledger interface {
	AppendRecord(ctx context.Context, rec AuditRecord) error
	Records(ctx context.Context) ([]AuditRecord, error)
	LastRecord(ctx context.Context) (AuditRecord, bool, error)
}

// IntegrityError reports the first broken link found while verifying a trail.
type IntegrityError struct {
	Seq     int64
	Message string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("chain integrity violation at seq %d: %s", e.Seq, e.Message)
}

// Trail is the append-only, hash-linked audit trail.
//
// Append is not concurrency-safe by construction; the trail serializes all
// appends under one mutex. Two concurrent appends are linearized, first
// committer wins the lower sequence number.
type Trail struct {
	mu       sync.Mutex
	ledger   Ledger
	now      func() time.Time
	nextSeq  int64
	lastHash string
	loaded   bool
}

// Option configures a Trail.
type Option func(*Trail)

// WithClock overrides the wall clock. Tests inject a deterministic clock;
// the default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) {
		t.now = now
	}
}

// New creates a trail over the given ledger. Existing records are picked up
// lazily on first use, so reopening a persisted ledger resumes the chain
// rather than restarting it.
func New(ledger Ledger, opts ...Option) *Trail {
	t := &Trail{
		ledger:   ledger,
		now:      time.Now,
		lastHash: artifact.GenesisHash,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// load positions nextSeq/lastHash after the last persisted record.
// Caller must hold t.mu.
func (t *Trail) load(ctx context.Context) error {
	if t.loaded {
		return nil
	}
	last, ok, err := t.ledger.LastRecord(ctx)
	if err != nil {
		return fmt.Errorf("trail: load last record: %w", err)
	}
	if ok {
		t.nextSeq = last.Seq + 1
		t.lastHash = last.RecordHash
	}
	t.loaded = true
	return nil
}

// Append assigns the next sequence number, chains the record to the
// previous one, persists it, and returns it.
//
// Fail-closed: if hashing or persistence fails, the sequence number is not
// advanced and the trail is unchanged — no gaps, no partial records.
func (t *Trail) Append(ctx context.Context, ev Event) (AuditRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.load(ctx); err != nil {
		return AuditRecord{}, err
	}

	rec := AuditRecord{
		Seq:          t.nextSeq,
		PacID:        ev.PacID,
		Kind:         ev.Kind,
		ArtifactHash: ev.ArtifactHash,
		Detail:       ev.Detail,
		PrevHash:     t.lastHash,
		RecordedAt:   t.now().UTC(),
	}

	hash, err := ComputeRecordHash(rec)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("trail: hash record: %w", err)
	}
	rec.RecordHash = hash

	if err := t.ledger.AppendRecord(ctx, rec); err != nil {
		return AuditRecord{}, fmt.Errorf("trail: persist record %d: %w", rec.Seq, err)
	}

	// Advance only after the record is durably committed.
	t.nextSeq = rec.Seq + 1
	t.lastHash = rec.RecordHash
	return rec, nil
}

// VerifyChain walks every record from genesis, recomputing each record hash
// and checking linkage. Returns (false, nil) on the first mismatch; the
// error return carries I/O failures only.
func (t *Trail) VerifyChain(ctx context.Context) (bool, error) {
	records, err := t.ledger.Records(ctx)
	if err != nil {
		return false, fmt.Errorf("trail: read records: %w", err)
	}
	if err := VerifyRecords(records); err != nil {
		return false, nil
	}
	return true, nil
}

// VerifyRecords checks an in-order record sequence for gap-free numbering
// and unbroken hash linkage. Returns an IntegrityError at the first break.
func VerifyRecords(records []AuditRecord) error {
	prevHash := artifact.GenesisHash
	for i, rec := range records {
		if rec.Seq != int64(i) {
			return &IntegrityError{Seq: rec.Seq, Message: fmt.Sprintf("sequence gap: expected %d", i)}
		}
		if rec.PrevHash != prevHash {
			return &IntegrityError{Seq: rec.Seq, Message: "previous-hash linkage broken"}
		}
		expected, err := ComputeRecordHash(rec)
		if err != nil {
			return &IntegrityError{Seq: rec.Seq, Message: "record content not hashable: " + err.Error()}
		}
		if rec.RecordHash != expected {
			return &IntegrityError{Seq: rec.Seq, Message: "record hash mismatch"}
		}
		prevHash = rec.RecordHash
	}
	return nil
}

// Query returns all records matching pred, in sequence order. Read-only:
// the returned slice is a copy and mutating it cannot affect the trail.
func (t *Trail) Query(ctx context.Context, pred func(AuditRecord) bool) ([]AuditRecord, error) {
	records, err := t.ledger.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("trail: read records: %w", err)
	}

	matched := []AuditRecord{}
	for _, rec := range records {
		if pred == nil || pred(rec) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// ForPac returns all records for one PAC, in sequence order.
func (t *Trail) ForPac(ctx context.Context, pacID string) ([]AuditRecord, error) {
	return t.Query(ctx, func(r AuditRecord) bool { return r.PacID == pacID })
}

// Len returns the number of appended records.
func (t *Trail) Len(ctx context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.load(ctx); err != nil {
		return 0, err
	}
	return t.nextSeq, nil
}
