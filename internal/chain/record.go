package chain

import (
	"time"

	"github.com/pacledger/pacledger/internal/artifact"
)

// EventKind identifies the governance event an audit record describes.
type EventKind string

const (
	// EventDispatched marks a PAC handed to its executor.
	EventDispatched EventKind = "DISPATCHED"

	// EventWrapReceived marks acceptance of a proof-of-work artifact.
	EventWrapReceived EventKind = "WRAP_RECEIVED"

	// EventBERIssued marks the authority's decision being emitted.
	EventBERIssued EventKind = "BER_ISSUED"

	// EventPDOCommitted marks the final outcome artifact being committed.
	EventPDOCommitted EventKind = "PDO_COMMITTED"

	// EventSessionInvalidated marks a session forced to its invalid sink.
	EventSessionInvalidated EventKind = "SESSION_INVALIDATED"

	// EventAuthorityViolation marks an unauthorized decision attempt.
	EventAuthorityViolation EventKind = "AUTHORITY_VIOLATION"

	// EventHashCollision marks a content-hash collision in the artifact
	// store. Alert-worthy: it means either a broken hash function or
	// deliberate tampering.
	EventHashCollision EventKind = "HASH_COLLISION"
)

// Event is the caller-supplied content of an audit record, before the trail
// assigns sequencing and chain linkage.
type Event struct {
	PacID        string
	Kind         EventKind
	ArtifactHash string // content hash of the artifact involved, if any
	Detail       string // free-form context (reason codes, identities)
}

// AuditRecord is one immutable entry in the trail.
//
// RecordHash = Bind(PrevHash, content digest), where the content digest
// covers every field except the hashes themselves. Record N's RecordHash is
// record N+1's PrevHash.
type AuditRecord struct {
	Seq          int64     `json:"seq"`
	PacID        string    `json:"pac_id"`
	Kind         EventKind `json:"kind"`
	ArtifactHash string    `json:"artifact_hash,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	PrevHash     string    `json:"prev_hash"`
	RecordHash   string    `json:"record_hash"`
	RecordedAt   time.Time `json:"recorded_at"` // UTC
}

// contentDigest hashes the record's content fields. RecordedAt participates:
// an audit entry asserts when it was recorded, and backdating must break
// the chain.
func contentDigest(r AuditRecord) (string, error) {
	obj := artifact.Object{
		"seq":           artifact.Int(r.Seq),
		"pac_id":        artifact.Text(r.PacID),
		"kind":          artifact.Text(r.Kind),
		"artifact_hash": artifact.Text(r.ArtifactHash),
		"detail":        artifact.Text(r.Detail),
		"recorded_at":   artifact.Text(r.RecordedAt.UTC().Format(time.RFC3339Nano)),
	}

	canonical, err := artifact.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return artifact.HashWithDomain(artifact.DomainRecord, canonical), nil
}

// ComputeRecordHash returns the chained hash for a record given its
// populated content fields and PrevHash.
func ComputeRecordHash(r AuditRecord) (string, error) {
	content, err := contentDigest(r)
	if err != nil {
		return "", err
	}
	return artifact.Bind(r.PrevHash, content), nil
}
