package chain

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger is an in-memory Ledger for tests and ephemeral trails.
type MemoryLedger struct {
	mu      sync.Mutex
	records []AuditRecord
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// AppendRecord implements Ledger. Out-of-order sequence numbers are
// rejected so a buggy trail cannot silently create gaps.
func (m *MemoryLedger) AppendRecord(_ context.Context, rec AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.Seq != int64(len(m.records)) {
		return fmt.Errorf("memory ledger: non-contiguous seq %d (have %d records)", rec.Seq, len(m.records))
	}
	m.records = append(m.records, rec)
	return nil
}

// Records implements Ledger.
func (m *MemoryLedger) Records(_ context.Context) ([]AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AuditRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

// LastRecord implements Ledger.
func (m *MemoryLedger) LastRecord(_ context.Context) (AuditRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.records) == 0 {
		return AuditRecord{}, false, nil
	}
	return m.records[len(m.records)-1], true, nil
}

// Tamper overwrites the record at seq, for integrity tests only.
func (m *MemoryLedger) Tamper(seq int64, mutate func(*AuditRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq < 0 || seq >= int64(len(m.records)) {
		return fmt.Errorf("memory ledger: no record at seq %d", seq)
	}
	mutate(&m.records[seq])
	return nil
}
