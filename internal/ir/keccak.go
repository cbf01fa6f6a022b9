package ir

import (
	"strings"

	"golang.org/x/crypto/sha3"
)

// Keccak256 returns the legacy Keccak-256 digest of data, the hash clients
// use for payload and device fingerprints.
func Keccak256(data []byte) Digest {
	var d Digest
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	h.Sum(d[:0])
	return d
}

// DigestOf interprets s as a digest: "0x"-prefixed input must be 64 hex
// characters, any other non-empty text is hashed with Keccak256, and the
// empty string is the zero digest.
func DigestOf(s string) (Digest, error) {
	switch {
	case s == "":
		return Digest{}, nil
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		return ParseDigest(s)
	default:
		return Keccak256([]byte(s)), nil
	}
}
