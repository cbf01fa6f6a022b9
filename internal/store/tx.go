package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/pulseledger/internal/ir"
)

// Tx is an open write transaction. Obtain one through Store.Update.
// Reads on a Tx observe its own uncommitted writes.
type Tx struct {
	reader
	tx *sql.Tx
}

// NextID increments the named counter and returns the new value.
// Counter names: program, pulse, emblem, event.
func (t *Tx) NextID(ctx context.Context, name string) (uint64, error) {
	res, err := t.tx.ExecContext(ctx, `UPDATE counters SET value = value + 1 WHERE name = ?`, name)
	if err != nil {
		return 0, fmt.Errorf("next id %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return 0, fmt.Errorf("next id %s: unknown counter", name)
	}
	return t.Counter(ctx, name)
}

// SetMeta stores value under key, replacing any previous value.
func (t *Tx) SetMeta(ctx context.Context, key, value string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}

// AddRoleMember grants role to account. added is false if it was already held.
func (t *Tx) AddRoleMember(ctx context.Context, role ir.Role, account string) (added bool, err error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO role_members (role, account) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		string(role), account)
	if err != nil {
		return false, fmt.Errorf("write role member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write role member: %w", err)
	}
	return n == 1, nil
}

// RemoveRoleMember revokes role from account. removed is false if it was not held.
func (t *Tx) RemoveRoleMember(ctx context.Context, role ir.Role, account string) (removed bool, err error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM role_members WHERE role = ? AND account = ?`, string(role), account)
	if err != nil {
		return false, fmt.Errorf("delete role member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete role member: %w", err)
	}
	return n == 1, nil
}

// SetRoleAdmin records admin as the admin role of role.
func (t *Tx) SetRoleAdmin(ctx context.Context, role, admin ir.Role) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO role_admins (role, admin_role) VALUES (?, ?)
		 ON CONFLICT(role) DO UPDATE SET admin_role = excluded.admin_role`,
		string(role), string(admin))
	if err != nil {
		return fmt.Errorf("write role admin: %w", err)
	}
	return nil
}

// InsertProgram stores p. p.ID must come from NextID("program").
func (t *Tx) InsertProgram(ctx context.Context, p ir.Program) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO programs (`+programColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Curator, p.ManifestCID, p.WindowStart, p.WindowEnd, p.RulesDigest.Hex(), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("write program: %w", err)
	}
	return nil
}

// InsertPulse stores p. p.ID must come from NextID("pulse").
func (t *Tx) InsertPulse(ctx context.Context, p ir.Pulse) error {
	handle := ""
	if p.HasSealedValue() {
		handle = p.SealedHandle.Hex()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO pulses (`+pulseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.Pilot, p.PayloadHash.Hex(), p.ArtifactCID, p.LatencyMs, p.ProtocolMode, uint8(p.Exposure),
		p.ProgramID, p.DeviceFingerprint.Hex(), p.Rounds, handle, p.SubmittedAt, p.Validated,
		p.EmblemTokenID, p.ClearCID,
	)
	if err != nil {
		return fmt.Errorf("write pulse: %w", err)
	}
	return nil
}

// SetPulseValidated records an audit verdict.
func (t *Tx) SetPulseValidated(ctx context.Context, id uint64, validated bool) error {
	return t.updatePulse(ctx, id, `UPDATE pulses SET validated = ? WHERE id = ?`, validated, id)
}

// SetPulseDisclosure records an exposed plaintext latency.
func (t *Tx) SetPulseDisclosure(ctx context.Context, id, latencyMs uint64, clearCID string) error {
	return t.updatePulse(ctx, id,
		`UPDATE pulses SET latency_ms = ?, clear_cid = ? WHERE id = ?`, latencyMs, clearCID, id)
}

// SetPulseEmblem links a minted emblem token to its pulse.
func (t *Tx) SetPulseEmblem(ctx context.Context, id, tokenID uint64) error {
	return t.updatePulse(ctx, id, `UPDATE pulses SET emblem_token_id = ? WHERE id = ?`, tokenID, id)
}

func (t *Tx) updatePulse(ctx context.Context, id uint64, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update pulse %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("update pulse %d: no such pulse", id)
	}
	return nil
}

// InsertSealedValue records an ingested handle. inserted is false when the
// handle was already present.
func (t *Tx) InsertSealedValue(ctx context.Context, sv SealedValue) (inserted bool, err error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO sealed_values (handle, pulse_id, submitter) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		sv.Handle.Hex(), sv.PulseID, sv.Submitter)
	if err != nil {
		return false, fmt.Errorf("write sealed value: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write sealed value: %w", err)
	}
	return n == 1, nil
}

// AddDecryptGrant records a grant. added is false for an existing grant.
func (t *Tx) AddDecryptGrant(ctx context.Context, pulseID uint64, grantee string) (added bool, err error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO decrypt_grants (pulse_id, grantee) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		pulseID, grantee)
	if err != nil {
		return false, fmt.Errorf("write decrypt grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write decrypt grant: %w", err)
	}
	return n == 1, nil
}

// InsertEmblem stores e. e.TokenID must come from NextID("emblem").
func (t *Tx) InsertEmblem(ctx context.Context, e ir.Emblem) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO emblems (token_id, pulse_id, owner, emblem_cid, minted_at) VALUES (?, ?, ?, ?, ?)`,
		e.TokenID, e.PulseID, e.Owner, e.EmblemCID, e.MintedAt)
	if err != nil {
		return fmt.Errorf("write emblem: %w", err)
	}
	return nil
}
