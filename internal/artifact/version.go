package artifact

// Version constants for the ledger schema and build.
const (
	// SchemaVersion is the artifact/record schema version.
	SchemaVersion = "1"

	// LedgerVersion is the pacledger build version.
	LedgerVersion = "0.1.0"
)
