// Package artifact defines the governance artifact model (WRAP, BER, PDO)
// and the canonical hashing it is built on.
//
// Every artifact is an immutable value: constructed once, never mutated.
// Corrections are expressed by creating a new artifact whose ParentID points
// at the artifact being corrected.
//
// Content-addressed identity is computed from RFC 8785 canonical JSON and
// SHA-256 with domain separation (see hash.go). The canonical form is
// byte-stable across platforms: object keys are sorted by UTF-16 code units,
// strings are NFC normalized, and floats and nulls are rejected outright
// since they cannot be serialized deterministically.
//
// CreatedAt is deliberately excluded from content hashes. A content hash
// answers "what was asserted", not "when it was recorded"; the wall-clock
// timestamp is retained on the record for audit purposes only.
package artifact
