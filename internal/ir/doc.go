// Package ir holds the ledger's foundational record types and the canonical
// value encoding used for audit events.
//
// ir imports nothing internal. Every other package builds on it:
//   - Program, Pulse, Emblem and Event are the persisted records
//   - Value is a sealed value tree with no floats and no null
//   - MarshalCanonical produces RFC 8785 JSON used for event hashing
//   - Digest is the 32-byte commitment type (payload hashes, rules
//     digests, device fingerprints, sealed value handles)
package ir
