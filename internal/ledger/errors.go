package ledger

import (
	"errors"
	"fmt"
	"math"

	"github.com/roach88/pulseledger/internal/ir"
)

// Code identifies a domain error category.
type Code string

const (
	CodeAccessDenied                       Code = "ACCESS_DENIED"
	CodeNotFound                           Code = "NOT_FOUND"
	CodeInvalidWindow                      Code = "INVALID_WINDOW"
	CodeAlreadyMinted                      Code = "ALREADY_MINTED"
	CodeNotValidated                       Code = "NOT_VALIDATED"
	CodeProofVerificationFailed            Code = "PROOF_VERIFICATION_FAILED"
	CodeUnsupportedConfidentialityProtocol Code = "UNSUPPORTED_CONFIDENTIALITY_PROTOCOL"
	CodeInvalidArgument                    Code = "INVALID_ARGUMENT"
	CodeBadConfirmation                    Code = "BAD_CONFIRMATION"
	CodeAlreadyDisclosed                   Code = "ALREADY_DISCLOSED"
	CodeAlreadyInitialized                 Code = "ALREADY_INITIALIZED"
	CodeNotInitialized                     Code = "NOT_INITIALIZED"
	CodeChainBroken                        Code = "CHAIN_BROKEN"
)

// Error is a domain error. A failed operation returns exactly one Error
// and leaves no state or events behind.
//
// Infrastructure failures (SQL, context cancellation) are returned wrapped
// with fmt.Errorf instead and never carry a Code.
type Error struct {
	Code    Code
	Message string

	// Role is the role the caller lacked (AccessDenied).
	Role ir.Role

	// Entity and ID identify the missing record (NotFound).
	Entity string
	ID     uint64
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Code == CodeAccessDenied && e.Role != "":
		return fmt.Sprintf("%s: %s (requires %s)", e.Code, e.Message, e.Role)
	case e.Code == CodeNotFound:
		return fmt.Sprintf("%s: %s %d", e.Code, e.Entity, e.ID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Is matches any *Error with the same Code, so callers can write
// errors.Is(err, ledger.ErrNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrAccessDenied                       = &Error{Code: CodeAccessDenied}
	ErrNotFound                           = &Error{Code: CodeNotFound}
	ErrInvalidWindow                      = &Error{Code: CodeInvalidWindow}
	ErrAlreadyMinted                      = &Error{Code: CodeAlreadyMinted}
	ErrNotValidated                       = &Error{Code: CodeNotValidated}
	ErrProofVerificationFailed            = &Error{Code: CodeProofVerificationFailed}
	ErrUnsupportedConfidentialityProtocol = &Error{Code: CodeUnsupportedConfidentialityProtocol}
	ErrInvalidArgument                    = &Error{Code: CodeInvalidArgument}
	ErrBadConfirmation                    = &Error{Code: CodeBadConfirmation}
	ErrAlreadyDisclosed                   = &Error{Code: CodeAlreadyDisclosed}
	ErrAlreadyInitialized                 = &Error{Code: CodeAlreadyInitialized}
	ErrNotInitialized                     = &Error{Code: CodeNotInitialized}
	ErrChainBroken                        = &Error{Code: CodeChainBroken}
)

// CodeOf returns the domain code of err, or "" for non-domain errors.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsDomainError reports whether err carries a domain Code.
func IsDomainError(err error) bool {
	return CodeOf(err) != ""
}

func accessDenied(role ir.Role, account string) *Error {
	return &Error{
		Code:    CodeAccessDenied,
		Message: fmt.Sprintf("account %s is missing role", account),
		Role:    role,
	}
}

func notFound(entity string, id uint64) *Error {
	return &Error{Code: CodeNotFound, Message: entity + " not found", Entity: entity, ID: id}
}

func invalidArgument(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// MaxQuantity is the largest latency, round count or window bound the
// ledger stores. Quantities are uint64 on the wire but persist in signed
// 64-bit columns and canonical JSON integers.
const MaxQuantity = math.MaxInt64

// checkQuantity rejects values above MaxQuantity.
func checkQuantity(name string, v uint64) error {
	if v > MaxQuantity {
		return invalidArgument("%s %d exceeds the maximum %d", name, v, uint64(MaxQuantity))
	}
	return nil
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
