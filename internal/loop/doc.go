// Package loop implements the PAC execution state machine.
//
// One LoopSession per PAC walks PAC_RECEIVED through DISPATCHED,
// BER_REQUIRED, BER_ISSUED, BER_EMITTED to SESSION_COMPLETE, or to the
// SESSION_INVALID sink. Each session carries at most one WRAP, one BER, and
// one PDO artifact.
//
// Two transitions are compound and atomic as observed by callers:
// ReceiveWrap lands in BER_REQUIRED (WRAP_RECEIVED is never observable) and
// CreatePDO lands in SESSION_COMPLETE (PDO_CREATED is never observable). A
// failure inside either compound transition rolls the session to
// SESSION_INVALID rather than leaving a dangling intermediate state.
//
// IssueBER, EmitBER, and CreatePDO are authority-gated: an unauthorized
// identity gets an AUTHORITY_VIOLATION and the session fails closed to
// SESSION_INVALID, with the attempt recorded in the audit trail.
//
// Concurrency: one in-flight transition per PAC, serialized by a
// per-session mutex. Sessions for different PACs proceed in parallel; the
// audit trail and artifact store serialize their own mutations.
package loop
