package oracle

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/roach88/pulseledger/internal/ir"
)

const (
	nonceSize = 24
	valueSize = 8

	valueKeyInfo = "pulseledger/oracle/value/v1"
	proofKeyInfo = "pulseledger/oracle/proof/v1/"
)

// Local is a stateless reference engine keyed by a shared secret.
//
// A handle is nonce(24) || value XOR HMAC(valueKey, nonce)[:8]. A proof is
// HMAC(proofKey(submitter), handle), with per-submitter keys derived by
// HKDF-SHA256 so a proof cannot be replayed under another account.
type Local struct {
	protocolID uint64
	valueKey   []byte
	secret     []byte
	rand       io.Reader
}

// Option configures a Local engine.
type Option func(*Local)

// WithRand sets the nonce source. Tests use it for reproducible handles.
func WithRand(r io.Reader) Option {
	return func(l *Local) { l.rand = r }
}

// NewLocal creates a Local engine. secret must be at least 16 bytes.
func NewLocal(secret []byte, protocolID uint64, opts ...Option) (*Local, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("oracle secret must be at least 16 bytes, got %d", len(secret))
	}

	l := &Local{
		protocolID: protocolID,
		secret:     append([]byte(nil), secret...),
		rand:       rand.Reader,
	}
	for _, opt := range opts {
		opt(l)
	}

	key, err := l.derive(valueKeyInfo)
	if err != nil {
		return nil, err
	}
	l.valueKey = key
	return l, nil
}

// ProtocolID implements Oracle.
func (l *Local) ProtocolID() uint64 { return l.protocolID }

// Seal encrypts value for submitter, returning the handle and input proof a
// client would send alongside recordPulse.
func (l *Local) Seal(value uint64, submitter string) (ir.Digest, []byte, error) {
	var handle ir.Digest
	if _, err := io.ReadFull(l.rand, handle[:nonceSize]); err != nil {
		return ir.Digest{}, nil, fmt.Errorf("seal: nonce: %w", err)
	}

	mask := l.mask(handle[:nonceSize])
	binary.BigEndian.PutUint64(handle[nonceSize:], value^binary.BigEndian.Uint64(mask))

	proof, err := l.proof(handle, submitter)
	if err != nil {
		return ir.Digest{}, nil, fmt.Errorf("seal: %w", err)
	}
	return handle, proof, nil
}

// VerifyInput implements Oracle.
func (l *Local) VerifyInput(ctx context.Context, handle ir.Digest, proof []byte, submitter string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want, err := l.proof(handle, submitter)
	if err != nil {
		return err
	}
	if !hmac.Equal(want, proof) {
		return ErrInvalidProof
	}
	return nil
}

// Disclose implements Oracle.
func (l *Local) Disclose(ctx context.Context, handle ir.Digest) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if handle.IsZero() {
		return 0, ErrUnknownHandle
	}
	mask := l.mask(handle[:nonceSize])
	return binary.BigEndian.Uint64(handle[nonceSize:]) ^ binary.BigEndian.Uint64(mask), nil
}

func (l *Local) mask(nonce []byte) []byte {
	mac := hmac.New(sha256.New, l.valueKey)
	mac.Write(nonce)
	return mac.Sum(nil)[:valueSize]
}

func (l *Local) proof(handle ir.Digest, submitter string) ([]byte, error) {
	key, err := l.derive(proofKeyInfo + submitter)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(handle[:])
	return mac.Sum(nil), nil
}

// derive expands the secret into a 32-byte key bound to info and the
// protocol id.
func (l *Local) derive(info string) ([]byte, error) {
	salt := make([]byte, 8)
	binary.BigEndian.PutUint64(salt, l.protocolID)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, l.secret, salt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("HKDF derivation failed: %w", err)
	}
	return key, nil
}
