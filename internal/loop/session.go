package loop

import (
	"fmt"
	"time"

	"github.com/pacledger/pacledger/internal/artifact"
	"github.com/pacledger/pacledger/internal/store"
)

// Session tracks one PAC through the governance loop. All mutation happens
// inside Machine transitions under the session's lock; callers receive
// copies via Snapshot.
type Session struct {
	// PacID identifies the PAC. Primary key for the session.
	PacID string

	// Token is the dispatch token issued when the PAC went out.
	Token string

	// State is the current lifecycle state.
	State State

	// WrapID and WrapHash identify the received WRAP artifact.
	WrapID   string
	WrapHash string

	// BERID and BERHash identify the issued BER artifact.
	BERID   string
	BERHash string

	// PDOID and PDOHash identify the final PDO artifact.
	PDOID   string
	PDOHash string

	// Decision is the BER verdict, set at issue time.
	Decision artifact.Decision

	// Outcome is the PDO outcome text, set at creation time.
	Outcome string

	// Reason records why a session went SESSION_INVALID.
	Reason string

	// CreatedAt is when the PAC was received.
	CreatedAt time.Time

	// EscalateAt is the decision deadline, set when the WRAP arrives.
	// Zero while no decision is pending.
	EscalateAt time.Time

	// TerminalAt is when the session reached a terminal state.
	TerminalAt time.Time
}

// Terminal reports whether the session admits no further transitions.
func (s *Session) Terminal() bool {
	return s.State.Terminal()
}

// Overdue reports whether the decision deadline has passed as of now.
func (s *Session) Overdue(now time.Time) bool {
	if s.Terminal() || s.EscalateAt.IsZero() {
		return false
	}
	return !now.Before(s.EscalateAt)
}

func (s *Session) row() store.SessionRow {
	return store.SessionRow{
		PacID:      s.PacID,
		Token:      s.Token,
		State:      string(s.State),
		WrapID:     s.WrapID,
		WrapHash:   s.WrapHash,
		BERID:      s.BERID,
		BERHash:    s.BERHash,
		PDOID:      s.PDOID,
		PDOHash:    s.PDOHash,
		Decision:   string(s.Decision),
		Outcome:    s.Outcome,
		Reason:     s.Reason,
		CreatedAt:  s.CreatedAt,
		EscalateAt: s.EscalateAt,
		TerminalAt: s.TerminalAt,
	}
}

func sessionFromRow(row store.SessionRow) (*Session, error) {
	st := State(row.State)
	if !st.Valid() {
		return nil, fmt.Errorf("session %s: unknown state %q", row.PacID, row.State)
	}
	return &Session{
		PacID:      row.PacID,
		Token:      row.Token,
		State:      st,
		WrapID:     row.WrapID,
		WrapHash:   row.WrapHash,
		BERID:      row.BERID,
		BERHash:    row.BERHash,
		PDOID:      row.PDOID,
		PDOHash:    row.PDOHash,
		Decision:   artifact.Decision(row.Decision),
		Outcome:    row.Outcome,
		Reason:     row.Reason,
		CreatedAt:  row.CreatedAt,
		EscalateAt: row.EscalateAt,
		TerminalAt: row.TerminalAt,
	}, nil
}

func (s *Session) clone() Session {
	return *s
}
