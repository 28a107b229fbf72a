// Package chain implements the append-only, hash-linked audit trail.
//
// Every finalized governance event becomes an AuditRecord with a gap-free
// sequence number and a record hash bound to the previous record's hash.
// The genesis record binds to an all-zero sentinel. Mutating any persisted
// record invalidates verification from that point forward.
//
// Append is serialized under a per-trail mutex: concurrent appends are
// linearized, never merged. Appends fail closed; if hashing or persistence
// fails, the sequence number is not advanced and no partial record exists.
//
// Persistence goes through the narrow Ledger interface. The SQLite-backed
// implementation lives in internal/store; MemoryLedger here serves tests
// and ephemeral trails.
package chain
