package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for hashed records. The version suffix allows a later
// algorithm change without colliding with existing chains.
const (
	DomainEvent = "pulseledger/event/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null separator keeps domain and data unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventHash computes the chained hash of ev. Hash itself is excluded; every
// other field, including PrevHash, is covered.
func EventHash(ev Event) (string, error) {
	obj := Object{
		"seq":        Int(ev.Seq),
		"op_token":   String(ev.OpToken),
		"kind":       String(ev.Kind),
		"pulse_id":   Uint(ev.PulseID),
		"program_id": Uint(ev.ProgramID),
		"account":    String(ev.Account),
		"actor":      String(ev.Actor),
		"fields":     ev.Fields,
		"at":         Int(ev.At),
		"prev_hash":  String(ev.PrevHash),
	}
	if ev.Fields == nil {
		obj["fields"] = Object{}
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustEventHash is like EventHash but panics on error.
// Use only in tests or when fields are known to be valid.
func MustEventHash(ev Event) string {
	h, err := EventHash(ev)
	if err != nil {
		panic(err)
	}
	return h
}
