package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pacledger/pacledger/internal/artifact"
	"github.com/pacledger/pacledger/internal/loop"
	"github.com/pacledger/pacledger/internal/policy"
	"github.com/pacledger/pacledger/internal/store"
)

// openMachine opens the database, loads the authority policy, and returns
// a rehydrated machine. The caller must Close the returned store.
func openMachine(ctx context.Context, dbPath, policyPath string) (*loop.Machine, *store.Store, error) {
	st, err := store.Open(dbPath, store.WithJournal(func(op, contentHash string) {
		slog.Debug("artifact access", "op", op, "content_hash", contentHash)
	}))
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	pol := policy.Default()
	if policyPath != "" {
		pol, err = policy.Load(policyPath)
		if err != nil {
			st.Close()
			return nil, nil, WrapExitError(ExitCommandError, "failed to load policy", err)
		}
	}

	m := loop.New(st, pol)
	if err := m.Rehydrate(ctx); err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitFailure, "failed to restore ledger state", err)
	}
	return m, st, nil
}

// parsePayload decodes a --payload JSON object into an artifact payload.
func parsePayload(raw string) (artifact.Object, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var obj artifact.Object
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --payload JSON", err)
	}
	return obj, nil
}

// transitionError maps a machine error onto an exit code: governance
// violations exit 1, everything else exits 2.
func transitionError(err error) error {
	var v *loop.Violation
	if errors.As(err, &v) {
		return WrapExitError(ExitFailure, string(v.Code), err)
	}
	return WrapExitError(ExitCommandError, "transition failed", err)
}

// timeNow is the wall clock for deadline checks; tests swap it.
var timeNow = func() time.Time { return time.Now().UTC() }

// violationCode extracts the violation code from a machine error.
func violationCode(err error) (loop.ViolationCode, bool) {
	var v *loop.Violation
	if errors.As(err, &v) {
		return v.Code, true
	}
	return "", false
}

// sessionView is the JSON shape of a session in command output.
type sessionView struct {
	PacID      string `json:"pac_id"`
	State      string `json:"state"`
	Token      string `json:"token,omitempty"`
	WrapID     string `json:"wrap_id,omitempty"`
	BERID      string `json:"ber_id,omitempty"`
	PDOID      string `json:"pdo_id,omitempty"`
	Decision   string `json:"decision,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Reason     string `json:"reason,omitempty"`
	EscalateAt string `json:"escalate_at,omitempty"`
}

func viewOf(s loop.Session) sessionView {
	v := sessionView{
		PacID:    s.PacID,
		State:    string(s.State),
		Token:    s.Token,
		WrapID:   s.WrapID,
		BERID:    s.BERID,
		PDOID:    s.PDOID,
		Decision: string(s.Decision),
		Outcome:  s.Outcome,
		Reason:   s.Reason,
	}
	if !s.EscalateAt.IsZero() {
		v.EscalateAt = s.EscalateAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return v
}

func (v sessionView) String() string {
	out := fmt.Sprintf("%s  %s", v.PacID, v.State)
	if v.Reason != "" {
		out += fmt.Sprintf("  (%s)", v.Reason)
	}
	return out
}
