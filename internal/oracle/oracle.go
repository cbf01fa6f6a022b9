// Package oracle is the ledger's boundary to the confidential-computation
// engine.
//
// The ledger never interprets ciphertext. It hands a handle and an input
// proof to an Oracle, which either accepts them or returns ErrInvalidProof,
// and later asks the Oracle to disclose a handle's value to an authorized
// requester. Local is a self-contained engine for development and tests.
package oracle

import (
	"context"
	"errors"

	"github.com/roach88/pulseledger/internal/ir"
)

// Errors returned by oracles.
var (
	ErrInvalidProof  = errors.New("oracle: input proof does not verify")
	ErrUnknownHandle = errors.New("oracle: handle was not produced by this engine")
)

// Oracle verifies encrypted inputs and discloses sealed values.
type Oracle interface {
	// ProtocolID identifies the confidentiality protocol the engine speaks.
	ProtocolID() uint64

	// VerifyInput checks that proof binds handle to submitter.
	VerifyInput(ctx context.Context, handle ir.Digest, proof []byte, submitter string) error

	// Disclose returns the plaintext value behind handle.
	Disclose(ctx context.Context, handle ir.Digest) (uint64, error)
}
