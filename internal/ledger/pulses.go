package ledger

import (
	"context"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/store"
)

// SealedInput is an encrypted value as submitted by a client: the handle
// issued by the confidential engine and the proof binding it to the
// submitter.
type SealedInput struct {
	Handle ir.Digest
	Proof  []byte
}

// RecordParams are the inputs of RecordPulse.
type RecordParams struct {
	PayloadHash       ir.Digest
	ArtifactCID       string
	LatencyMs         uint64 // required for Revealed, must be 0 otherwise
	ProtocolMode      uint8
	Exposure          ir.Exposure
	ProgramID         uint64 // 0 = unassigned
	DeviceFingerprint ir.Digest
	Rounds            uint64
	Sealed            *SealedInput // required for Encrypted, optional for Revealed
}

// validate checks the exposure-dependent shape of p.
func (p RecordParams) validate() error {
	if !p.Exposure.Valid() {
		return invalidArgument("unknown exposure level %d", uint8(p.Exposure))
	}
	switch p.Exposure {
	case ir.Revealed:
		if p.LatencyMs == 0 {
			return invalidArgument("revealed pulse requires a latency")
		}
	case ir.Encrypted:
		if p.LatencyMs != 0 {
			return invalidArgument("encrypted pulse must not carry a plaintext latency")
		}
		if p.Sealed == nil {
			return invalidArgument("encrypted pulse requires a ciphertext handle and proof")
		}
	case ir.Shielded:
		if p.LatencyMs != 0 {
			return invalidArgument("shielded pulse must not carry a plaintext latency")
		}
		if p.Sealed != nil {
			return invalidArgument("shielded pulse must not carry a ciphertext")
		}
	}
	if p.Sealed != nil && p.Sealed.Handle.IsZero() {
		return invalidArgument("ciphertext handle must not be zero")
	}
	if err := checkQuantity("latency", p.LatencyMs); err != nil {
		return err
	}
	if err := checkQuantity("rounds", p.Rounds); err != nil {
		return err
	}
	if p.ProgramID > MaxQuantity {
		return notFound("program", p.ProgramID)
	}
	return nil
}

// RecordPulse stores a new pulse submitted by the caller. No role is
// required. A non-zero ProgramID must reference an existing program.
func (l *Ledger) RecordPulse(ctx context.Context, caller string, p RecordParams) (uint64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}

	var id uint64
	err := l.mutate(ctx, "record_pulse", caller, func(o *op) error {
		if p.ProgramID != 0 {
			if _, found, err := o.tx.Program(ctx, p.ProgramID); err != nil {
				return err
			} else if !found {
				return notFound("program", p.ProgramID)
			}
		}

		if p.Sealed != nil {
			if err := l.verifySealed(o, *p.Sealed); err != nil {
				return err
			}
		}

		next, err := o.tx.NextID(ctx, "pulse")
		if err != nil {
			return err
		}
		pulse := ir.Pulse{
			ID:                next,
			Pilot:             caller,
			PayloadHash:       p.PayloadHash,
			ArtifactCID:       p.ArtifactCID,
			LatencyMs:         p.LatencyMs,
			ProtocolMode:      p.ProtocolMode,
			Exposure:          p.Exposure,
			ProgramID:         p.ProgramID,
			DeviceFingerprint: p.DeviceFingerprint,
			Rounds:            p.Rounds,
			SubmittedAt:       o.at,
		}
		if p.Sealed != nil {
			pulse.SealedHandle = p.Sealed.Handle
		}
		if err := o.tx.InsertPulse(ctx, pulse); err != nil {
			return err
		}
		if p.Sealed != nil {
			if _, err := o.tx.InsertSealedValue(ctx, store.SealedValue{
				Handle: p.Sealed.Handle, PulseID: next, Submitter: caller,
			}); err != nil {
				return err
			}
		}

		id = next
		return o.emit(ir.EventPulseRecorded, eventRef{pulseID: id, programID: p.ProgramID, account: caller}, pulseRecordedFields(pulse))
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func pulseRecordedFields(p ir.Pulse) ir.Object {
	fields := ir.Object{
		"pulse_id":           ir.Uint(p.ID),
		"pilot":              ir.String(p.Pilot),
		"payload_hash":       ir.String(p.PayloadHash.Hex()),
		"exposure":           ir.String(p.Exposure.String()),
		"program_id":         ir.Uint(p.ProgramID),
		"timestamp":          ir.Int(p.SubmittedAt),
		"artifact_cid":       ir.String(p.ArtifactCID),
		"protocol_mode":      ir.Int(p.ProtocolMode),
		"device_fingerprint": ir.String(p.DeviceFingerprint.Hex()),
		"rounds":             ir.Uint(p.Rounds),
	}
	if p.HasLatency() {
		fields["latency_ms"] = ir.Uint(p.LatencyMs)
	}
	if p.HasSealedValue() {
		fields["sealed_handle"] = ir.String(p.SealedHandle.Hex())
	}
	return fields
}

// AuditPulse records an analyst verdict. Re-auditing overwrites the
// previous verdict.
func (l *Ledger) AuditPulse(ctx context.Context, caller string, pulseID uint64, approved bool, verificationCID string) error {
	return l.mutate(ctx, "audit_pulse", caller, func(o *op) error {
		if err := o.requireRole(ir.RoleAnalyst); err != nil {
			return err
		}
		pulse, err := o.pulse(pulseID)
		if err != nil {
			return err
		}
		if err := o.tx.SetPulseValidated(ctx, pulseID, approved); err != nil {
			return err
		}
		return o.emit(ir.EventPulseAudited, eventRef{pulseID: pulseID, programID: pulse.ProgramID, account: caller}, ir.Object{
			"pulse_id":         ir.Uint(pulseID),
			"analyst":          ir.String(caller),
			"approved":         ir.Bool(approved),
			"verification_cid": ir.String(verificationCID),
		})
	})
}

// ExposePulse discloses a plaintext latency for a pulse recorded without
// one. The exposure level itself does not change. Requires CURATOR.
func (l *Ledger) ExposePulse(ctx context.Context, caller string, pulseID, latencyMs uint64, clearCID string) error {
	if latencyMs == 0 {
		return invalidArgument("exposed latency must be positive")
	}
	if err := checkQuantity("latency", latencyMs); err != nil {
		return err
	}
	return l.mutate(ctx, "expose_pulse", caller, func(o *op) error {
		if err := o.requireRole(ir.RoleCurator); err != nil {
			return err
		}
		pulse, err := o.pulse(pulseID)
		if err != nil {
			return err
		}
		if pulse.HasLatency() {
			return newError(CodeAlreadyDisclosed, "pulse %d already has a plaintext latency", pulseID)
		}
		if err := o.tx.SetPulseDisclosure(ctx, pulseID, latencyMs, clearCID); err != nil {
			return err
		}
		return o.emit(ir.EventPulseExposed, eventRef{pulseID: pulseID, programID: pulse.ProgramID}, ir.Object{
			"pulse_id":   ir.Uint(pulseID),
			"latency_ms": ir.Uint(latencyMs),
			"clear_cid":  ir.String(clearCID),
		})
	})
}

// ViewPulse returns a pulse or NotFound.
func (l *Ledger) ViewPulse(ctx context.Context, id uint64) (ir.Pulse, error) {
	p, found, err := l.store.Pulse(ctx, id)
	if err != nil {
		return ir.Pulse{}, err
	}
	if !found {
		return ir.Pulse{}, notFound("pulse", id)
	}
	return p, nil
}

// SealedPulseValue returns the pulse's ciphertext handle; the zero digest
// when it has none.
func (l *Ledger) SealedPulseValue(ctx context.Context, id uint64) (ir.Digest, error) {
	p, err := l.ViewPulse(ctx, id)
	if err != nil {
		return ir.Digest{}, err
	}
	return p.SealedHandle, nil
}

// PulseCount returns the number of pulses recorded so far.
func (l *Ledger) PulseCount(ctx context.Context) (uint64, error) {
	return l.store.PulseCount(ctx)
}

// ListPulses returns pulses in id order.
func (l *Ledger) ListPulses(ctx context.Context, f store.PulseFilter) ([]ir.Pulse, error) {
	return l.store.ListPulses(ctx, f)
}

// pulse reads a pulse inside the operation or returns NotFound.
func (o *op) pulse(id uint64) (ir.Pulse, error) {
	p, found, err := o.tx.Pulse(o.ctx, id)
	if err != nil {
		return ir.Pulse{}, err
	}
	if !found {
		return ir.Pulse{}, notFound("pulse", id)
	}
	return p, nil
}
