package artifact

import (
	"fmt"
	"time"
)

// Kind identifies the artifact variety in the governance loop.
type Kind string

const (
	// KindWrap is the proof-of-work artifact an executor submits for a PAC.
	KindWrap Kind = "WRAP"

	// KindBER is the accept/reject decision artifact issued by the authority.
	KindBER Kind = "BER"

	// KindPDO is the final Proof-Decision-Outcome artifact binding the WRAP
	// and BER digests into one immutable record.
	KindPDO Kind = "PDO"
)

// Decision is the verdict carried by a BER artifact.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// ValidDecisions defines the allowed BER verdicts.
var ValidDecisions = map[Decision]bool{
	DecisionApprove: true,
	DecisionReject:  true,
}

// Payload keys a PDO uses to bind its upstream digests.
const (
	KeyWrapHash = "wrap_hash"
	KeyBERHash  = "ber_hash"
	KeyDecision = "decision"
	KeyOutcome  = "outcome"
)

// Artifact is an immutable governance record. Fields are exported for
// serialization but must never be written after construction; corrections
// are new artifacts whose ParentID references the one being corrected.
type Artifact struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	PacID       string    `json:"pac_id"`
	ParentID    string    `json:"parent_id"` // artifact this one responds to ("" for a WRAP)
	Issuer      string    `json:"issuer"`
	Payload     Object    `json:"payload"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"` // UTC; excluded from ContentHash
}

// New constructs an artifact and computes its content hash.
// Returns an EncodingError if the payload cannot be canonically serialized.
func New(id string, kind Kind, pacID, parentID, issuer string, payload Object, at time.Time) (Artifact, error) {
	if id == "" {
		return Artifact{}, fmt.Errorf("artifact id must not be empty")
	}
	if pacID == "" {
		return Artifact{}, fmt.Errorf("artifact %s: pac id must not be empty", id)
	}
	if issuer == "" {
		return Artifact{}, fmt.Errorf("artifact %s: issuer must not be empty", id)
	}
	if payload == nil {
		payload = Object{}
	}

	hash, err := contentHash(kind, pacID, parentID, issuer, payload)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact %s: %w", id, err)
	}

	return Artifact{
		ID:          id,
		Kind:        kind,
		PacID:       pacID,
		ParentID:    parentID,
		Issuer:      issuer,
		Payload:     payload,
		ContentHash: hash,
		CreatedAt:   at.UTC(),
	}, nil
}

// NewWrap constructs a WRAP artifact. A WRAP responds directly to the PAC,
// so it carries no parent artifact.
func NewWrap(id, pacID, issuer string, payload Object, at time.Time) (Artifact, error) {
	return New(id, KindWrap, pacID, "", issuer, payload, at)
}

// NewBER constructs a BER artifact carrying the authority's decision over
// the WRAP identified by wrapID.
func NewBER(id, pacID, wrapID, issuer string, decision Decision, payload Object, at time.Time) (Artifact, error) {
	if !ValidDecisions[decision] {
		return Artifact{}, fmt.Errorf("artifact %s: invalid decision %q", id, decision)
	}

	merged := make(Object, len(payload)+1)
	for k, v := range payload {
		merged[k] = v
	}
	merged[KeyDecision] = Text(decision)

	return New(id, KindBER, pacID, wrapID, issuer, merged, at)
}

// NewPDO constructs a PDO artifact binding the WRAP and BER content hashes
// into the final outcome record. Both digests must be well-formed; a PDO
// that fails to bind its upstream proofs is unusable as evidence.
func NewPDO(id, pacID, berID, issuer, outcome, wrapHash, berHash string, payload Object, at time.Time) (Artifact, error) {
	if !IsDigest(wrapHash) {
		return Artifact{}, fmt.Errorf("artifact %s: malformed wrap hash %q", id, wrapHash)
	}
	if !IsDigest(berHash) {
		return Artifact{}, fmt.Errorf("artifact %s: malformed ber hash %q", id, berHash)
	}
	if outcome == "" {
		return Artifact{}, fmt.Errorf("artifact %s: outcome must not be empty", id)
	}

	merged := make(Object, len(payload)+3)
	for k, v := range payload {
		merged[k] = v
	}
	merged[KeyOutcome] = Text(outcome)
	merged[KeyWrapHash] = Text(wrapHash)
	merged[KeyBERHash] = Text(berHash)

	return New(id, KindPDO, pacID, berID, issuer, merged, at)
}

// Decision extracts the decision text from a BER payload.
// Returns "" for non-BER artifacts or a malformed payload.
func (a Artifact) Decision() Decision {
	if a.Kind != KindBER {
		return ""
	}
	if d, ok := a.Payload[KeyDecision].(Text); ok {
		return Decision(d)
	}
	return ""
}

// CanonicalPayload returns the canonical JSON bytes of the payload.
func (a Artifact) CanonicalPayload() ([]byte, error) {
	return MarshalCanonical(a.Payload)
}

// Equal reports whether two artifacts carry identical content. Used by the
// store to distinguish a duplicate submission from a hash collision.
func (a Artifact) Equal(b Artifact) bool {
	if a.Kind != b.Kind || a.PacID != b.PacID || a.ParentID != b.ParentID || a.Issuer != b.Issuer {
		return false
	}
	ap, errA := a.CanonicalPayload()
	bp, errB := b.CanonicalPayload()
	if errA != nil || errB != nil {
		return false
	}
	return string(ap) == string(bp)
}
