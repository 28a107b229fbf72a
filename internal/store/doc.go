// Package store provides SQLite-backed durable storage for the governance
// ledger: the content-addressed artifact store, the persisted audit chain,
// and the dependency graph tables.
//
// # Storage invariants
//
//   - Artifacts are write-once. PutArtifact never updates a row; a
//     byte-identical resubmission is an idempotent no-op and a hash match
//     with differing content is a HashCollisionError, never an overwrite.
//   - audit_records is append-only with gap-free seq numbering. The store
//     persists records exactly as the chain package computed them; hashing
//     and linkage live in internal/chain.
//   - All reads order by stable columns (seq, or insertion rowid) so that
//     rehydration is deterministic across runs.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - single connection: SQLite has one writer, so the pool is capped at 1
//     to avoid SQLITE_BUSY under concurrent sessions
package store
