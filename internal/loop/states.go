package loop

// State is the lifecycle state of a PAC session.
type State string

const (
	StatePACReceived     State = "PAC_RECEIVED"
	StateDispatched      State = "DISPATCHED"
	StateWrapReceived    State = "WRAP_RECEIVED"
	StateBERRequired     State = "BER_REQUIRED"
	StateBERIssued       State = "BER_ISSUED"
	StateBEREmitted      State = "BER_EMITTED"
	StatePDOCreated      State = "PDO_CREATED"
	StateSessionComplete State = "SESSION_COMPLETE"
	StateSessionInvalid  State = "SESSION_INVALID"
)

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	return s == StateSessionComplete || s == StateSessionInvalid
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePACReceived, StateDispatched, StateWrapReceived,
		StateBERRequired, StateBERIssued, StateBEREmitted,
		StatePDOCreated, StateSessionComplete, StateSessionInvalid:
		return true
	}
	return false
}
