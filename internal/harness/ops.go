package harness

import (
	"context"
	"fmt"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/ledger"
)

// operation is one scenario op: the argument names it accepts and how it
// drives the ledger. Domain failures come back as *ledger.Error; anything
// else aborts the run.
type operation struct {
	args []string
	run  func(ctx context.Context, h *Harness, caller string, a *argReader) (ir.Object, error)
}

var operations map[string]operation

func init() {
	operations = map[string]operation{
		"initialize": {nil, func(ctx context.Context, h *Harness, caller string, _ *argReader) (ir.Object, error) {
			return ir.Object{}, h.ledger.Initialize(ctx, caller)
		}},
		"grant_role": {[]string{"role", "account"}, func(ctx context.Context, h *Harness, caller string, a *argReader) (ir.Object, error) {
			role, account := a.role("role"), a.str("account")
			if a.err != nil {
				return nil, a.err
			}
			return ir.Object{}, h.ledger.GrantRole(ctx, caller, role, account)
		}},
		"revoke_role": {[]string{"role", "account"}, func(ctx context.Context, h *Harness, caller string, a *argReader) (ir.Object, error) {
			role, account := a.role("role"), a.str("account")
			if a.err != nil {
				return nil, a.err
			}
			return ir.Object{}, h.ledger.RevokeRole(ctx, caller, role, account)
		}},
		"renounce_role": {[]string{"role", "confirmation"}, func(ctx context.Context, h *Harness, caller string, a *argReader) (ir.Object, error) {
			role, confirmation := a.role("role"), a.str("confirmation")
			if a.err != nil {
				return nil, a.err
			}
			return ir.Object{}, h.ledger.RenounceRole(ctx, caller, role, confirmation)
		}},
		"set_role_admin": {[]string{"role", "admin_role"}, func(ctx context.Context, h *Harness, caller string, a *argReader) (ir.Object, error) {
			role, adminRole := a.role("role"), a.role("admin_role")
			if a.err != nil {
				return nil, a.err
			}
			return ir.Object{}, h.ledger.SetRoleAdmin(ctx, caller, role, adminRole)
		}},
		"has_role": {[]string{"role", "account"}, func(ctx context.Context, h *Harness, _ string, a *argReader) (ir.Object, error) {
			role, account := a.role("role"), a.str("account")
			if a.err != nil {
				return nil, a.err
			}
			has, err := h.ledger.HasRole(ctx, role, account)
			return ir.Object{"has": ir.Bool(has)}, err
		}},
		"role_admin": {[]string{"role"}, func(ctx context.Context, h *Harness, _ string, a *argReader) (ir.Object, error) {
			role := a.role("role")
			if a.err != nil {
				return nil, a.err
			}
			admin, err := h.ledger.RoleAdmin(ctx, role)
			return ir.Object{"admin_role": ir.String(admin)}, err
		}},

		"schedule_program": {[]string{"manifest_cid", "window_start", "window_end", "rules"}, func(ctx context.Context, h *Harness, caller string, a *argReader) (ir.Object, error) {
			params := ledger.ProgramParams{
				ManifestCID: a.str("manifest_cid"),
				WindowStart: a.uint("window_start"),
				WindowEnd:   a.uint("window_end"),
				RulesDigest: a.digest("rules"),
			}
			if a.err != nil {
				return nil, a.err
			}
			id, err := h.ledger.ScheduleProgram(ctx, caller, params)
			return ir.Object{"program_id": ir.Uint(id)}, err
		}},
		"view_program": {[]string{"program_id"}, func(ctx context.Context, h *Harness, _ string, a *argReader) (ir.Object, error) {
			id := a.uint("program_id")
			if a.err != nil {
				return nil, a.err
			}
			p, err := h.ledger.ViewProgram(ctx, id)
			if err != nil {
				return nil, err
			}
			return programObject(p), nil
		}},
		"program_count": {nil, func(ctx context.Context, h *Harness, _ string, _ *argReader) (ir.Object, error) {
			n, err := h.ledger.ProgramCount(ctx)
			return ir.Object{"count": ir.Uint(n)}, err
		}},

		"record_pulse": {[]string{
			"payload", "artifact_cid", "latency_ms", "protocol_mode", "exposure", "program_id",
			"device", "rounds", "sealed_value", "sealed_for", "proof", "reuse_sealed",
		}, recordPulse},
		"audit_pulse": {[]string{"pulse_id", "approved", "verification_cid"}, func(ctx context.Context, h *Harness, caller string, a *argReader) (ir.Object, error) {
			id, approved, cid := a.uint("pulse_id"), a.flag("approved"), a.str("verification_cid")
			if a.err != nil {
				return nil, a.err
			}
			return ir.Object{}, h.ledger.AuditPulse(ctx, caller, id, approved, cid)
		}},
		"expose_pulse": {[]string{"pulse_id", "latency_ms", "clear_cid"}, func(ctx context.Context, h *Harness, caller string, a *argReader) (ir.Object, error) {
			id, latency, cid := a.uint("pulse_id"), a.uint("latency_ms"), a.str("clear_cid")
			if a.err != nil {
				return nil, a.err
			}
			return ir.Object{}, h.ledger.ExposePulse(ctx, caller, id, latency, cid)
		}},
		"view_pulse": {[]string{"pulse_id"}, func(ctx context.Context, h *Harness, _ string, a *argReader) (ir.Object, error) {
			id := a.uint("pulse_id")
			if a.err != nil {
				return nil, a.err
			}
			p, err := h.ledger.ViewPulse(ctx, id)
			if err != nil {
				return nil, err
			}
			return pulseObject(p), nil
		}},
		"pulse_count": {nil, func(ctx context.Context, h *Harness, _ string, _ *argReader) (ir.Object, error) {
			n, err := h.ledger.PulseCount(ctx)
			return ir.Object{"count": ir.Uint(n)}, err
		}},

		"delegate_decrypt": {[]string{"pulse_id", "to"}, func(ctx context.Context, h *Harness, caller string, a *argReader) (ir.Object, error) {
			id, to := a.uint("pulse_id"), a.str("to")
			if a.err != nil {
				return nil, a.err
			}
			return ir.Object{}, h.ledger.DelegateDecrypt(ctx, caller, id, to)
		}},
		"can_decrypt": {[]string{"pulse_id", "account"}, func(ctx context.Context, h *Harness, _ string, a *argReader) (ir.Object, error) {
			id, account := a.uint("pulse_id"), a.str("account")
			if a.err != nil {
				return nil, a.err
			}
			ok, err := h.ledger.CanDecrypt(ctx, id, account)
			return ir.Object{"allowed": ir.Bool(ok)}, err
		}},
		"decrypt": {[]string{"pulse_id"}, func(ctx context.Context, h *Harness, caller string, a *argReader) (ir.Object, error) {
			id := a.uint("pulse_id")
			if a.err != nil {
				return nil, a.err
			}
			v, err := h.ledger.Decrypt(ctx, caller, id)
			return ir.Object{"value": ir.Uint(v)}, err
		}},

		"mint_emblem": {[]string{"pulse_id", "to", "emblem_cid"}, func(ctx context.Context, h *Harness, caller string, a *argReader) (ir.Object, error) {
			id, to, cid := a.uint("pulse_id"), a.str("to"), a.str("emblem_cid")
			if a.err != nil {
				return nil, a.err
			}
			token, err := h.ledger.MintEmblemForPulse(ctx, caller, id, to, cid)
			return ir.Object{"token_id": ir.Uint(token)}, err
		}},
		"view_emblem": {[]string{"token_id"}, func(ctx context.Context, h *Harness, _ string, a *argReader) (ir.Object, error) {
			id := a.uint("token_id")
			if a.err != nil {
				return nil, a.err
			}
			e, err := h.ledger.ViewEmblem(ctx, id)
			if err != nil {
				return nil, err
			}
			return ir.Object{
				"token_id":   ir.Uint(e.TokenID),
				"pulse_id":   ir.Uint(e.PulseID),
				"owner":      ir.String(e.Owner),
				"emblem_cid": ir.String(e.EmblemCID),
			}, nil
		}},

		"verify_chain": {nil, func(ctx context.Context, h *Harness, _ string, _ *argReader) (ir.Object, error) {
			report, err := h.ledger.VerifyChain(ctx)
			return ir.Object{"events": ir.Int(report.Events)}, err
		}},
	}
}

func recordPulse(ctx context.Context, h *Harness, caller string, a *argReader) (ir.Object, error) {
	params := ledger.RecordParams{
		PayloadHash:       a.digest("payload"),
		ArtifactCID:       a.str("artifact_cid"),
		LatencyMs:         a.uint("latency_ms"),
		ProtocolMode:      uint8(a.uint("protocol_mode")),
		Exposure:          a.exposure("exposure"),
		ProgramID:         a.uint("program_id"),
		DeviceFingerprint: a.digest("device"),
		Rounds:            a.uint("rounds"),
	}

	switch {
	case a.flag("reuse_sealed"):
		if h.lastSealed == nil {
			return nil, fmt.Errorf("reuse_sealed: no earlier sealed value")
		}
		sealed := *h.lastSealed
		params.Sealed = &sealed
	case a.has("sealed_value"):
		submitter := caller
		if a.has("sealed_for") {
			submitter = a.str("sealed_for")
		}
		value := a.uint("sealed_value")
		if a.err != nil {
			return nil, a.err
		}
		handle, proof, err := h.oracle.Seal(value, submitter)
		if err != nil {
			return nil, fmt.Errorf("seal: %w", err)
		}
		params.Sealed = &ledger.SealedInput{Handle: handle, Proof: proof}
		h.lastSealed = params.Sealed
	}
	if a.has("proof") && params.Sealed != nil {
		forged := *params.Sealed
		forged.Proof = []byte(a.str("proof"))
		params.Sealed = &forged
	}
	if a.err != nil {
		return nil, a.err
	}

	id, err := h.ledger.RecordPulse(ctx, caller, params)
	return ir.Object{"pulse_id": ir.Uint(id)}, err
}

func programObject(p ir.Program) ir.Object {
	return ir.Object{
		"program_id":   ir.Uint(p.ID),
		"curator":      ir.String(p.Curator),
		"manifest_cid": ir.String(p.ManifestCID),
		"window_start": ir.Uint(p.WindowStart),
		"window_end":   ir.Uint(p.WindowEnd),
		"rules":        ir.String(p.RulesDigest.Hex()),
		"created_at":   ir.Int(p.CreatedAt),
	}
}

func pulseObject(p ir.Pulse) ir.Object {
	return ir.Object{
		"pulse_id":        ir.Uint(p.ID),
		"pilot":           ir.String(p.Pilot),
		"exposure":        ir.String(p.Exposure.String()),
		"latency_ms":      ir.Uint(p.LatencyMs),
		"program_id":      ir.Uint(p.ProgramID),
		"rounds":          ir.Uint(p.Rounds),
		"validated":       ir.Bool(p.Validated),
		"emblem_token_id": ir.Uint(p.EmblemTokenID),
		"sealed":          ir.Bool(p.HasSealedValue()),
		"clear_cid":       ir.String(p.ClearCID),
		"submitted_at":    ir.Int(p.SubmittedAt),
	}
}

// argReader reads typed step arguments, keeping the first error.
type argReader struct {
	obj ir.Object
	err error
}

func (a *argReader) has(key string) bool {
	_, ok := a.obj[key]
	return ok
}

func (a *argReader) fail(key string, want string, got ir.Value) {
	if a.err == nil {
		a.err = fmt.Errorf("argument %s: want %s, got %T", key, want, got)
	}
}

func (a *argReader) str(key string) string {
	v, ok := a.obj[key]
	if !ok {
		return ""
	}
	s, ok := v.(ir.String)
	if !ok {
		a.fail(key, "string", v)
	}
	return string(s)
}

func (a *argReader) uint(key string) uint64 {
	v, ok := a.obj[key]
	if !ok {
		return 0
	}
	n, ok := v.(ir.Int)
	if !ok || n < 0 {
		a.fail(key, "non-negative integer", v)
		return 0
	}
	return uint64(n)
}

func (a *argReader) flag(key string) bool {
	v, ok := a.obj[key]
	if !ok {
		return false
	}
	b, ok := v.(ir.Bool)
	if !ok {
		a.fail(key, "bool", v)
	}
	return bool(b)
}

func (a *argReader) role(key string) ir.Role {
	return ir.Role(a.str(key))
}

func (a *argReader) digest(key string) ir.Digest {
	d, err := ir.DigestOf(a.str(key))
	if err != nil && a.err == nil {
		a.err = fmt.Errorf("argument %s: %w", key, err)
	}
	return d
}

func (a *argReader) exposure(key string) ir.Exposure {
	v, ok := a.obj[key]
	if !ok {
		if a.err == nil {
			a.err = fmt.Errorf("argument %s is required", key)
		}
		return 0
	}
	var text string
	switch x := v.(type) {
	case ir.String:
		text = string(x)
	case ir.Int:
		text = fmt.Sprint(int64(x))
	default:
		a.fail(key, "exposure name or number", v)
		return 0
	}
	e, err := ir.ParseExposure(text)
	if err != nil && a.err == nil {
		a.err = fmt.Errorf("argument %s: %w", key, err)
	}
	return e
}
