package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/oracle"
	"github.com/roach88/pulseledger/internal/store"
)

// verifySealed runs the encrypted-input checks for recordPulse: protocol
// match, single-use handle, and proof verification.
func (l *Ledger) verifySealed(o *op, in SealedInput) error {
	if l.oracle == nil {
		return newError(CodeUnsupportedConfidentialityProtocol, "no confidential engine configured")
	}
	raw, _, err := o.tx.Meta(o.ctx, metaProtocolID)
	if err != nil {
		return err
	}
	if err := l.checkProtocol(raw); err != nil {
		return err
	}

	if _, found, err := o.tx.SealedValue(o.ctx, in.Handle); err != nil {
		return err
	} else if found {
		return newError(CodeProofVerificationFailed, "handle %s was already submitted", in.Handle.Hex())
	}

	if err := l.oracle.VerifyInput(o.ctx, in.Handle, in.Proof, o.actor); err != nil {
		if errors.Is(err, oracle.ErrInvalidProof) {
			return newError(CodeProofVerificationFailed, "input proof rejected for %s", o.actor)
		}
		return err
	}
	return nil
}

// checkProtocol compares the engine's protocol with the one fixed at
// genesis, stored as raw.
func (l *Ledger) checkProtocol(raw string) error {
	want, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return errors.Join(errors.New("corrupt protocol id in meta"), err)
	}
	if got := l.oracle.ProtocolID(); got != want {
		return newError(CodeUnsupportedConfidentialityProtocol,
			"engine speaks protocol %d, ledger requires %d", got, want)
	}
	return nil
}

// DelegateDecrypt allows to to decrypt the pulse's sealed value. Requires
// CURATOR. Repeating a grant is accepted and logged again.
func (l *Ledger) DelegateDecrypt(ctx context.Context, caller string, pulseID uint64, to string) error {
	if to == "" {
		return invalidArgument("grantee account is required")
	}
	return l.mutate(ctx, "delegate_decrypt", caller, func(o *op) error {
		if err := o.requireRole(ir.RoleCurator); err != nil {
			return err
		}
		pulse, err := o.pulse(pulseID)
		if err != nil {
			return err
		}
		if !pulse.HasSealedValue() {
			return invalidArgument("pulse %d has no sealed value to delegate", pulseID)
		}
		if _, err := o.tx.AddDecryptGrant(ctx, pulseID, to); err != nil {
			return err
		}
		return o.emit(ir.EventDecryptDelegated, eventRef{pulseID: pulseID, programID: pulse.ProgramID, account: to}, ir.Object{
			"pulse_id": ir.Uint(pulseID),
			"to":       ir.String(to),
		})
	})
}

// ReadSealedValue returns the record for an ingested handle.
func (l *Ledger) ReadSealedValue(ctx context.Context, handle ir.Digest) (store.SealedValue, error) {
	sv, found, err := l.store.SealedValue(ctx, handle)
	if err != nil {
		return store.SealedValue{}, err
	}
	if !found {
		return store.SealedValue{}, &Error{
			Code:    CodeNotFound,
			Message: "sealed value " + handle.Hex() + " not found",
			Entity:  "sealed_value",
		}
	}
	return sv, nil
}

// DecryptionGrants lists the accounts delegated to decrypt a pulse.
func (l *Ledger) DecryptionGrants(ctx context.Context, pulseID uint64) ([]string, error) {
	if _, err := l.ViewPulse(ctx, pulseID); err != nil {
		return nil, err
	}
	return l.store.DecryptGrants(ctx, pulseID)
}

// CanDecrypt reports whether account may decrypt the pulse: its pilot or a
// delegated grantee, and only when the pulse carries a sealed value.
func (l *Ledger) CanDecrypt(ctx context.Context, pulseID uint64, account string) (bool, error) {
	p, err := l.ViewPulse(ctx, pulseID)
	if err != nil {
		return false, err
	}
	if !p.HasSealedValue() {
		return false, nil
	}
	if p.Pilot == account {
		return true, nil
	}
	return l.store.HasDecryptGrant(ctx, pulseID, account)
}

// Decrypt asks the confidential engine to disclose the pulse's sealed
// value to requester. Only the pilot and delegated grantees are allowed.
func (l *Ledger) Decrypt(ctx context.Context, requester string, pulseID uint64) (uint64, error) {
	p, err := l.ViewPulse(ctx, pulseID)
	if err != nil {
		return 0, err
	}
	if !p.HasSealedValue() {
		return 0, invalidArgument("pulse %d has no sealed value", pulseID)
	}
	ok, err := l.CanDecrypt(ctx, pulseID, requester)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &Error{Code: CodeAccessDenied, Message: "only the pilot or a delegated grantee may decrypt pulse " + strconv.FormatUint(pulseID, 10)}
	}
	if l.oracle == nil {
		return 0, newError(CodeUnsupportedConfidentialityProtocol, "no confidential engine configured")
	}
	raw, _, err := l.store.Meta(ctx, metaProtocolID)
	if err != nil {
		return 0, err
	}
	if err := l.checkProtocol(raw); err != nil {
		return 0, err
	}

	v, err := l.oracle.Disclose(ctx, p.SealedHandle)
	if err != nil {
		return 0, err
	}
	l.logger.InfoContext(ctx, "sealed value disclosed", "pulse_id", pulseID, "requester", requester)
	return v, nil
}
