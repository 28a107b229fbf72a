package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pacledger/pacledger/internal/chain"
)

// AppendRecord implements chain.Ledger. The PRIMARY KEY on seq makes a
// lost-update race between two writers a constraint violation instead of a
// silent merge; the chain serializes appends above this anyway.
func (s *Store) AppendRecord(ctx context.Context, rec chain.AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records
		(seq, pac_id, kind, artifact_hash, detail, prev_hash, record_hash, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Seq,
		rec.PacID,
		string(rec.Kind),
		rec.ArtifactHash,
		rec.Detail,
		rec.PrevHash,
		rec.RecordHash,
		rec.RecordedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("append record %d: %w", rec.Seq, err)
	}
	return nil
}

// Records implements chain.Ledger: every record in ascending seq order.
func (s *Store) Records(ctx context.Context) ([]chain.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, pac_id, kind, artifact_hash, detail, prev_hash, record_hash, recorded_at
		FROM audit_records
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []chain.AuditRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// LastRecord implements chain.Ledger.
func (s *Store) LastRecord(ctx context.Context) (chain.AuditRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, pac_id, kind, artifact_hash, detail, prev_hash, record_hash, recorded_at
		FROM audit_records
		ORDER BY seq DESC LIMIT 1
	`)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chain.AuditRecord{}, false, nil
	}
	if err != nil {
		return chain.AuditRecord{}, false, fmt.Errorf("last record: %w", err)
	}
	return rec, true, nil
}

func scanRecord(row scanner) (chain.AuditRecord, error) {
	var (
		rec        chain.AuditRecord
		kind       string
		recordedAt string
	)
	if err := row.Scan(&rec.Seq, &rec.PacID, &kind, &rec.ArtifactHash, &rec.Detail, &rec.PrevHash, &rec.RecordHash, &recordedAt); err != nil {
		return chain.AuditRecord{}, err
	}

	rec.Kind = chain.EventKind(kind)

	ts, err := time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return chain.AuditRecord{}, fmt.Errorf("recorded_at: %w", err)
	}
	rec.RecordedAt = ts.UTC()

	return rec, nil
}
