package store

import (
	"context"
	"fmt"
	"time"
)

// SessionRow is the persisted shape of a loop session. The loop package
// owns the domain type; this row exists so the store stays a leaf package.
type SessionRow struct {
	PacID      string
	Token      string
	State      string
	WrapID     string
	WrapHash   string
	BERID      string
	BERHash    string
	PDOID      string
	PDOHash    string
	Decision   string
	Outcome    string
	Reason     string
	CreatedAt  time.Time
	EscalateAt time.Time // zero when not awaiting a decision
	TerminalAt time.Time // zero while non-terminal
}

// SaveSession upserts a session row. Called after every completed
// transition, so the persisted state always reflects the last committed
// transition.
func (s *Store) SaveSession(ctx context.Context, row SessionRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(pac_id, token, state, wrap_id, wrap_hash, ber_id, ber_hash, pdo_id, pdo_hash,
		 decision, outcome, reason, created_at, escalate_at, terminal_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pac_id) DO UPDATE SET
			state = excluded.state,
			wrap_id = excluded.wrap_id,
			wrap_hash = excluded.wrap_hash,
			ber_id = excluded.ber_id,
			ber_hash = excluded.ber_hash,
			pdo_id = excluded.pdo_id,
			pdo_hash = excluded.pdo_hash,
			decision = excluded.decision,
			outcome = excluded.outcome,
			reason = excluded.reason,
			escalate_at = excluded.escalate_at,
			terminal_at = excluded.terminal_at
	`,
		row.PacID, row.Token, row.State,
		row.WrapID, row.WrapHash, row.BERID, row.BERHash, row.PDOID, row.PDOHash,
		row.Decision, row.Outcome, row.Reason,
		formatTime(row.CreatedAt), formatTime(row.EscalateAt), formatTime(row.TerminalAt),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", row.PacID, err)
	}
	return nil
}

// Sessions returns all persisted sessions ordered by pac id.
func (s *Store) Sessions(ctx context.Context) ([]SessionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pac_id, token, state, wrap_id, wrap_hash, ber_id, ber_hash, pdo_id, pdo_hash,
		       decision, outcome, reason, created_at, escalate_at, terminal_at
		FROM sessions
		ORDER BY pac_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionRow{}
	for rows.Next() {
		var (
			row                               SessionRow
			createdAt, escalateAt, terminalAt string
		)
		if err := rows.Scan(
			&row.PacID, &row.Token, &row.State,
			&row.WrapID, &row.WrapHash, &row.BERID, &row.BERHash, &row.PDOID, &row.PDOHash,
			&row.Decision, &row.Outcome, &row.Reason,
			&createdAt, &escalateAt, &terminalAt,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if row.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("session %s created_at: %w", row.PacID, err)
		}
		if row.EscalateAt, err = parseTime(escalateAt); err != nil {
			return nil, fmt.Errorf("session %s escalate_at: %w", row.PacID, err)
		}
		if row.TerminalAt, err = parseTime(terminalAt); err != nil {
			return nil, fmt.Errorf("session %s terminal_at: %w", row.PacID, err)
		}
		sessions = append(sessions, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// formatTime renders a timestamp, mapping the zero value to "".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

// parseTime is the inverse of formatTime.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
