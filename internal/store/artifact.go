package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pacledger/pacledger/internal/artifact"
)

// timeFormat is RFC 3339 with fixed-width nanoseconds. RFC3339Nano trims
// trailing zeros, which breaks lexicographic-equals-chronological ordering
// in the TEXT columns; this format keeps them.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// PutResult reports the outcome of a PutArtifact call.
type PutResult struct {
	ID          string
	ContentHash string
	Existing    bool // true when the put was an idempotent duplicate
}

// PutArtifact stores an artifact write-once, keyed by content hash.
//
// Three outcomes:
//   - new content: inserted, Existing=false
//   - byte-identical duplicate: no-op, returns the stored artifact's id
//     with Existing=true (a genuine duplicate submission)
//   - same hash, different content: HashCollisionError; nothing is written
//
// The artifact's ContentHash must already be populated (constructors in
// internal/artifact do this).
func (s *Store) PutArtifact(ctx context.Context, a artifact.Artifact) (PutResult, error) {
	if !artifact.IsDigest(a.ContentHash) {
		return PutResult{}, fmt.Errorf("put artifact %s: missing content hash", a.ID)
	}

	payload, err := a.CanonicalPayload()
	if err != nil {
		return PutResult{}, fmt.Errorf("put artifact %s: %w", a.ID, err)
	}

	existing, err := s.GetArtifact(ctx, a.ContentHash)
	switch {
	case err == nil:
		if !existing.Equal(a) {
			return PutResult{}, &HashCollisionError{ContentHash: a.ContentHash, ExistingID: existing.ID}
		}
		// Duplicate submission: the first write wins, including its id.
		return PutResult{ID: existing.ID, ContentHash: a.ContentHash, Existing: true}, nil
	case IsNotFound(err):
		// fall through to insert
	default:
		return PutResult{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts
		(content_hash, id, kind, pac_id, parent_id, issuer, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ContentHash,
		a.ID,
		string(a.Kind),
		a.PacID,
		a.ParentID,
		a.Issuer,
		string(payload),
		a.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return PutResult{}, fmt.Errorf("put artifact %s: %w", a.ID, err)
	}

	s.notify("put", a.ContentHash)
	return PutResult{ID: a.ID, ContentHash: a.ContentHash}, nil
}

// GetArtifact retrieves an artifact by content hash.
func (s *Store) GetArtifact(ctx context.Context, contentHash string) (artifact.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content_hash, id, kind, pac_id, parent_id, issuer, payload, created_at
		FROM artifacts WHERE content_hash = ?
	`, contentHash)

	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return artifact.Artifact{}, &NotFoundError{Key: contentHash}
	}
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("get artifact %s: %w", contentHash, err)
	}

	s.notify("get", a.ContentHash)
	return a, nil
}

// GetArtifactByID retrieves an artifact by its caller-assigned id.
func (s *Store) GetArtifactByID(ctx context.Context, id string) (artifact.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content_hash, id, kind, pac_id, parent_id, issuer, payload, created_at
		FROM artifacts WHERE id = ?
	`, id)

	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return artifact.Artifact{}, &NotFoundError{Key: id}
	}
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("get artifact by id %s: %w", id, err)
	}

	s.notify("get", a.ContentHash)
	return a, nil
}

// ArtifactsForPac returns all artifacts for one PAC, ordered by creation
// time then id for deterministic rehydration.
func (s *Store) ArtifactsForPac(ctx context.Context, pacID string) ([]artifact.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_hash, id, kind, pac_id, parent_id, issuer, payload, created_at
		FROM artifacts
		WHERE pac_id = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, pacID)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []artifact.Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row scanner) (artifact.Artifact, error) {
	var (
		a         artifact.Artifact
		kind      string
		payload   string
		createdAt string
	)
	if err := row.Scan(&a.ContentHash, &a.ID, &kind, &a.PacID, &a.ParentID, &a.Issuer, &payload, &createdAt); err != nil {
		return artifact.Artifact{}, err
	}

	a.Kind = artifact.Kind(kind)

	obj, err := artifact.ParseObject([]byte(payload))
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("payload: %w", err)
	}
	a.Payload = obj

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("created_at: %w", err)
	}
	a.CreatedAt = ts.UTC()

	return a, nil
}
