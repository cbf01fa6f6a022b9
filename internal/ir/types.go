package ir

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Digest is a 32-byte commitment: payload hashes, rules digests, device
// fingerprints and sealed value handles all share this shape.
type Digest [32]byte

// IsZero reports whether every byte is zero.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Hex returns the 0x-prefixed lowercase hex form.
func (d Digest) Hex() string {
	return "0x" + hex.EncodeToString(d[:])
}

func (d Digest) String() string { return d.Hex() }

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest parses 64 hex characters with an optional 0x prefix.
// The empty string parses to the zero digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return d, nil
	}
	if len(s) != 64 {
		return d, fmt.Errorf("digest must be 32 bytes (64 hex chars), got %d chars", len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("digest: %w", err)
	}
	return d, nil
}

// Role identifies an access-control role.
type Role string

// Built-in roles. RoleAdmin is the default admin of every role.
const (
	RoleAdmin   Role = "ADMIN"
	RoleCurator Role = "CURATOR"
	RoleAnalyst Role = "ANALYST"
)

// BuiltinRoles lists the roles granted at genesis, in grant order.
var BuiltinRoles = []Role{RoleAdmin, RoleCurator, RoleAnalyst}

// Exposure is the confidentiality level a pulse was recorded at.
// Numeric values are part of the wire format.
type Exposure uint8

const (
	Shielded  Exposure = 0
	Encrypted Exposure = 1
	Revealed  Exposure = 2
)

// Valid reports whether e is one of the three defined levels.
func (e Exposure) Valid() bool {
	return e <= Revealed
}

func (e Exposure) String() string {
	switch e {
	case Shielded:
		return "shielded"
	case Encrypted:
		return "encrypted"
	case Revealed:
		return "revealed"
	default:
		return fmt.Sprintf("exposure(%d)", uint8(e))
	}
}

// ParseExposure accepts the text form or the numeric form.
func ParseExposure(s string) (Exposure, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shielded", "0":
		return Shielded, nil
	case "encrypted", "1":
		return Encrypted, nil
	case "revealed", "2":
		return Revealed, nil
	}
	return 0, fmt.Errorf("unknown exposure %q (want shielded, encrypted or revealed)", s)
}

// Program is a curator-defined scheduling window. Immutable once created.
type Program struct {
	ID          uint64 `json:"id"`
	Curator     string `json:"curator"`
	ManifestCID string `json:"manifest_cid"`
	WindowStart uint64 `json:"window_start"`
	WindowEnd   uint64 `json:"window_end"` // 0 = unbounded
	RulesDigest Digest `json:"rules_digest"`
	CreatedAt   int64  `json:"created_at"`
}

// Pulse is one recorded measurement.
type Pulse struct {
	ID                uint64   `json:"id"`
	Pilot             string   `json:"pilot"`
	PayloadHash       Digest   `json:"payload_hash"`
	ArtifactCID       string   `json:"artifact_cid"`
	LatencyMs         uint64   `json:"latency_ms"` // 0 = unset
	ProtocolMode      uint8    `json:"protocol_mode"`
	Exposure          Exposure `json:"exposure"`
	ProgramID         uint64   `json:"program_id"` // 0 = unassigned
	DeviceFingerprint Digest   `json:"device_fingerprint"`
	Rounds            uint64   `json:"rounds"`
	SealedHandle      Digest   `json:"sealed_handle"` // zero = none
	SubmittedAt       int64    `json:"submitted_at"`
	Validated         bool     `json:"validated"`
	EmblemTokenID     uint64   `json:"emblem_token_id"` // 0 = none
	ClearCID          string   `json:"clear_cid,omitempty"`
}

// HasLatency reports whether a plaintext latency is on record.
func (p Pulse) HasLatency() bool { return p.LatencyMs != 0 }

// HasSealedValue reports whether the pulse carries a ciphertext handle.
func (p Pulse) HasSealedValue() bool { return !p.SealedHandle.IsZero() }

// Emblem is the achievement token minted for a validated pulse.
type Emblem struct {
	TokenID   uint64 `json:"token_id"`
	PulseID   uint64 `json:"pulse_id"`
	Owner     string `json:"owner"`
	EmblemCID string `json:"emblem_cid"`
	MintedAt  int64  `json:"minted_at"`
}

// Collection describes the emblem token collection.
type Collection struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}
