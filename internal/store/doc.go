// Package store provides SQLite-backed durable state for the pulse ledger.
//
// The store holds the ledger's tables (programs, pulses, sealed value
// handles, decryption grants, emblems, role memberships) and the
// append-only, hash-chained events table that forms the audit log.
//
// # Transactions
//
// All writes go through Update, which runs a callback against a Tx inside
// one SQLite transaction. The callback's error rolls everything back,
// including id counters and appended events, so a failed operation leaves
// no trace. Reads are available on both Store (committed state) and Tx
// (the transaction's own view).
//
// # Determinism
//
// Every multi-row query has an explicit ORDER BY on a stable key and
// returns an empty slice rather than nil when nothing matches.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
