package loop

import (
	"errors"
	"fmt"
)

// Violation represents a governance failure detected during a session
// transition.
//
// Violations include:
//   - Authority violation: identity lacks the capability for the operation
//   - Terminal state violation: operation attempted on a finished session
//   - Invalid transition: operation not legal from the current state
//   - Unknown session: no session exists for the PAC
//   - Duplicate session: a session already exists for the PAC
//
// Violation includes structured fields for diagnostics and audit.
type Violation struct {
	// Code identifies the violation category.
	Code ViolationCode

	// Message is a human-readable description.
	Message string

	// PacID identifies the affected session.
	PacID string

	// Op is the operation that was attempted.
	Op string

	// Identity is the caller that attempted the operation.
	Identity string

	// State is the session state at the time of the attempt.
	State State
}

// ViolationCode categorizes governance violations.
type ViolationCode string

const (
	// CodeAuthorityViolation indicates the identity lacks the capability
	// for the attempted operation.
	CodeAuthorityViolation ViolationCode = "AUTHORITY_VIOLATION"

	// CodeTerminalState indicates an operation on a terminal session.
	CodeTerminalState ViolationCode = "TERMINAL_STATE_VIOLATION"

	// CodeInvalidTransition indicates the operation is not legal from the
	// session's current state.
	CodeInvalidTransition ViolationCode = "INVALID_TRANSITION"

	// CodeUnknownSession indicates no session exists for the PAC.
	CodeUnknownSession ViolationCode = "UNKNOWN_SESSION"

	// CodeDuplicateSession indicates a session already exists for the PAC.
	CodeDuplicateSession ViolationCode = "DUPLICATE_SESSION"
)

// Error implements the error interface.
func (v *Violation) Error() string {
	if v.Identity != "" {
		return fmt.Sprintf("%s: %s (pac=%s, op=%s, identity=%s)", v.Code, v.Message, v.PacID, v.Op, v.Identity)
	}
	if v.Op != "" {
		return fmt.Sprintf("%s: %s (pac=%s, op=%s)", v.Code, v.Message, v.PacID, v.Op)
	}
	return fmt.Sprintf("%s: %s (pac=%s)", v.Code, v.Message, v.PacID)
}

// IsAuthorityViolation returns true if the error is an authority violation.
// Uses errors.As to handle wrapped errors.
func IsAuthorityViolation(err error) bool {
	var v *Violation
	if errors.As(err, &v) {
		return v.Code == CodeAuthorityViolation
	}
	return false
}

// IsTerminalViolation returns true if the error is a terminal state
// violation. Uses errors.As to handle wrapped errors.
func IsTerminalViolation(err error) bool {
	var v *Violation
	if errors.As(err, &v) {
		return v.Code == CodeTerminalState
	}
	return false
}

// IsInvalidTransition returns true if the error is an invalid transition.
// Uses errors.As to handle wrapped errors.
func IsInvalidTransition(err error) bool {
	var v *Violation
	if errors.As(err, &v) {
		return v.Code == CodeInvalidTransition
	}
	return false
}

// IsUnknownSession returns true if the error indicates a missing session.
func IsUnknownSession(err error) bool {
	var v *Violation
	if errors.As(err, &v) {
		return v.Code == CodeUnknownSession
	}
	return false
}

func newAuthorityViolation(pacID, op, identity string, state State) *Violation {
	return &Violation{
		Code:     CodeAuthorityViolation,
		Message:  "identity is not authorized for operation",
		PacID:    pacID,
		Op:       op,
		Identity: identity,
		State:    state,
	}
}

func newTerminalViolation(pacID, op string, state State) *Violation {
	return &Violation{
		Code:    CodeTerminalState,
		Message: fmt.Sprintf("session is terminal in state %s", state),
		PacID:   pacID,
		Op:      op,
		State:   state,
	}
}

func newInvalidTransition(pacID, op string, state State) *Violation {
	return &Violation{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("operation not permitted in state %s", state),
		PacID:   pacID,
		Op:      op,
		State:   state,
	}
}

func newUnknownSession(pacID, op string) *Violation {
	return &Violation{
		Code:    CodeUnknownSession,
		Message: "no session exists for PAC",
		PacID:   pacID,
		Op:      op,
	}
}

func newDuplicateSession(pacID string) *Violation {
	return &Violation{
		Code:    CodeDuplicateSession,
		Message: "session already exists for PAC",
		PacID:   pacID,
		Op:      "receive",
	}
}
