package ir

// Version constants for persisted records and the ledger binary.
const (
	// SchemaVersion is the event payload schema version.
	SchemaVersion = "1"

	// LedgerVersion is the pulseledger release version.
	LedgerVersion = "0.3.0"
)
