package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/queryir"
)

// reader implements the read API shared by Store and Tx.
type reader struct {
	q querier
}

// SealedValue is the stored record for an ingested ciphertext handle.
type SealedValue struct {
	Handle    ir.Digest
	PulseID   uint64
	Submitter string
}

// PulseFilter narrows ListPulses. Zero fields match everything.
type PulseFilter struct {
	ProgramID uint64
	Pilot     string
	AfterID   uint64
	Limit     int
}

// ProgramFilter narrows ListPrograms.
type ProgramFilter struct {
	Curator string
	AfterID uint64
	Limit   int
}

// Meta returns the value stored under key and whether it exists.
func (r reader) Meta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read meta %s: %w", key, err)
	}
	return v, true, nil
}

// HasRole reports whether account holds role.
func (r reader) HasRole(ctx context.Context, role ir.Role, account string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_members WHERE role = ? AND account = ?`,
		string(role), account,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("read role %s: %w", role, err)
	}
	return n > 0, nil
}

// RoleAdmin returns the admin role of role, defaulting to ADMIN.
func (r reader) RoleAdmin(ctx context.Context, role ir.Role) (ir.Role, error) {
	var admin string
	err := r.q.QueryRowContext(ctx,
		`SELECT admin_role FROM role_admins WHERE role = ?`, string(role),
	).Scan(&admin)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RoleAdmin, nil
	}
	if err != nil {
		return "", fmt.Errorf("read role admin %s: %w", role, err)
	}
	return ir.Role(admin), nil
}

// RoleMembers returns the accounts holding role in account order.
func (r reader) RoleMembers(ctx context.Context, role ir.Role) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT account FROM role_members WHERE role = ? ORDER BY account COLLATE BINARY ASC`,
		string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("read role members %s: %w", role, err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan role member: %w", err)
		}
		members = append(members, a)
	}
	return members, rows.Err()
}

// Counter returns the current value of a named id counter.
func (r reader) Counter(ctx context.Context, name string) (uint64, error) {
	var v uint64
	if err := r.q.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = ?`, name).Scan(&v); err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	return v, nil
}

const programColumns = `id, curator, manifest_cid, window_start, window_end, rules_digest, created_at`

// Program reads one program. found is false when id does not exist.
func (r reader) Program(ctx context.Context, id uint64) (p ir.Program, found bool, err error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+programColumns+` FROM programs WHERE id = ?`, id)
	p, err = scanProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Program{}, false, nil
	}
	if err != nil {
		return ir.Program{}, false, fmt.Errorf("read program %d: %w", id, err)
	}
	return p, true, nil
}

// ProgramCount returns the number of programs.
func (r reader) ProgramCount(ctx context.Context) (uint64, error) {
	return r.count(ctx, "programs")
}

// ListPrograms returns programs in id order.
func (r reader) ListPrograms(ctx context.Context, f ProgramFilter) ([]ir.Program, error) {
	var filter queryir.Predicate
	if f.Curator != "" {
		filter = queryir.Equals{Field: "curator", Value: ir.String(f.Curator)}
	}
	if f.AfterID > 0 {
		filter = queryir.All(filter, queryir.AtLeast{Field: "id", Value: ir.Uint(f.AfterID + 1)})
	}

	rows, err := r.selectRows(ctx, queryir.Select{
		From:    "programs",
		Columns: splitColumns(programColumns),
		Filter:  filter,
		Limit:   f.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	programs := []ir.Program{}
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("list programs: %w", err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

const pulseColumns = `id, pilot, payload_hash, artifact_cid, latency_ms, protocol_mode, exposure, program_id,
	device_fingerprint, rounds, sealed_handle, submitted_at, validated, emblem_token_id, clear_cid`

// Pulse reads one pulse. found is false when id does not exist.
func (r reader) Pulse(ctx context.Context, id uint64) (p ir.Pulse, found bool, err error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+pulseColumns+` FROM pulses WHERE id = ?`, id)
	p, err = scanPulse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Pulse{}, false, nil
	}
	if err != nil {
		return ir.Pulse{}, false, fmt.Errorf("read pulse %d: %w", id, err)
	}
	return p, true, nil
}

// PulseCount returns the number of pulses.
func (r reader) PulseCount(ctx context.Context) (uint64, error) {
	return r.count(ctx, "pulses")
}

// ListPulses returns pulses in id order.
func (r reader) ListPulses(ctx context.Context, f PulseFilter) ([]ir.Pulse, error) {
	var preds []queryir.Predicate
	if f.ProgramID > 0 {
		preds = append(preds, queryir.Equals{Field: "program_id", Value: ir.Uint(f.ProgramID)})
	}
	if f.Pilot != "" {
		preds = append(preds, queryir.Equals{Field: "pilot", Value: ir.String(f.Pilot)})
	}
	if f.AfterID > 0 {
		preds = append(preds, queryir.AtLeast{Field: "id", Value: ir.Uint(f.AfterID + 1)})
	}

	rows, err := r.selectRows(ctx, queryir.Select{
		From:    "pulses",
		Columns: splitColumns(pulseColumns),
		Filter:  queryir.All(preds...),
		Limit:   f.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list pulses: %w", err)
	}
	defer rows.Close()

	pulses := []ir.Pulse{}
	for rows.Next() {
		p, err := scanPulse(rows)
		if err != nil {
			return nil, fmt.Errorf("list pulses: %w", err)
		}
		pulses = append(pulses, p)
	}
	return pulses, rows.Err()
}

// SealedValue reads the record for handle.
func (r reader) SealedValue(ctx context.Context, handle ir.Digest) (SealedValue, bool, error) {
	var sv SealedValue
	var h string
	err := r.q.QueryRowContext(ctx,
		`SELECT handle, pulse_id, submitter FROM sealed_values WHERE handle = ?`, handle.Hex(),
	).Scan(&h, &sv.PulseID, &sv.Submitter)
	if errors.Is(err, sql.ErrNoRows) {
		return SealedValue{}, false, nil
	}
	if err != nil {
		return SealedValue{}, false, fmt.Errorf("read sealed value: %w", err)
	}
	if sv.Handle, err = ir.ParseDigest(h); err != nil {
		return SealedValue{}, false, fmt.Errorf("read sealed value: %w", err)
	}
	return sv, true, nil
}

// DecryptGrants returns the grantees for pulseID in grant order.
func (r reader) DecryptGrants(ctx context.Context, pulseID uint64) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT grantee FROM decrypt_grants WHERE pulse_id = ? ORDER BY id ASC`, pulseID)
	if err != nil {
		return nil, fmt.Errorf("read decrypt grants: %w", err)
	}
	defer rows.Close()

	grantees := []string{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan decrypt grant: %w", err)
		}
		grantees = append(grantees, g)
	}
	return grantees, rows.Err()
}

// HasDecryptGrant reports whether grantee may decrypt pulseID.
func (r reader) HasDecryptGrant(ctx context.Context, pulseID uint64, grantee string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decrypt_grants WHERE pulse_id = ? AND grantee = ?`, pulseID, grantee,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("read decrypt grant: %w", err)
	}
	return n > 0, nil
}

// Emblem reads one emblem by token id.
func (r reader) Emblem(ctx context.Context, tokenID uint64) (ir.Emblem, bool, error) {
	var e ir.Emblem
	err := r.q.QueryRowContext(ctx,
		`SELECT token_id, pulse_id, owner, emblem_cid, minted_at FROM emblems WHERE token_id = ?`, tokenID,
	).Scan(&e.TokenID, &e.PulseID, &e.Owner, &e.EmblemCID, &e.MintedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Emblem{}, false, nil
	}
	if err != nil {
		return ir.Emblem{}, false, fmt.Errorf("read emblem %d: %w", tokenID, err)
	}
	return e, true, nil
}

// ListEmblems returns every emblem in token order.
func (r reader) ListEmblems(ctx context.Context) ([]ir.Emblem, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT token_id, pulse_id, owner, emblem_cid, minted_at FROM emblems ORDER BY token_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list emblems: %w", err)
	}
	defer rows.Close()

	emblems := []ir.Emblem{}
	for rows.Next() {
		var e ir.Emblem
		if err := rows.Scan(&e.TokenID, &e.PulseID, &e.Owner, &e.EmblemCID, &e.MintedAt); err != nil {
			return nil, fmt.Errorf("scan emblem: %w", err)
		}
		emblems = append(emblems, e)
	}
	return emblems, rows.Err()
}

func (r reader) count(ctx context.Context, table string) (uint64, error) {
	var n uint64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgram(s scanner) (ir.Program, error) {
	var p ir.Program
	var digest string
	if err := s.Scan(&p.ID, &p.Curator, &p.ManifestCID, &p.WindowStart, &p.WindowEnd, &digest, &p.CreatedAt); err != nil {
		return ir.Program{}, err
	}
	d, err := ir.ParseDigest(digest)
	if err != nil {
		return ir.Program{}, fmt.Errorf("rules_digest: %w", err)
	}
	p.RulesDigest = d
	return p, nil
}

func scanPulse(s scanner) (ir.Pulse, error) {
	var p ir.Pulse
	var payload, device, handle string
	err := s.Scan(
		&p.ID, &p.Pilot, &payload, &p.ArtifactCID, &p.LatencyMs, &p.ProtocolMode, &p.Exposure,
		&p.ProgramID, &device, &p.Rounds, &handle, &p.SubmittedAt, &p.Validated,
		&p.EmblemTokenID, &p.ClearCID,
	)
	if err != nil {
		return ir.Pulse{}, err
	}
	if p.PayloadHash, err = ir.ParseDigest(payload); err != nil {
		return ir.Pulse{}, fmt.Errorf("payload_hash: %w", err)
	}
	if p.DeviceFingerprint, err = ir.ParseDigest(device); err != nil {
		return ir.Pulse{}, fmt.Errorf("device_fingerprint: %w", err)
	}
	if p.SealedHandle, err = ir.ParseDigest(handle); err != nil {
		return ir.Pulse{}, fmt.Errorf("sealed_handle: %w", err)
	}
	return p, nil
}

// Roles returns every role with at least one member, in role order.
func (r reader) Roles(ctx context.Context) ([]ir.Role, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT DISTINCT role FROM role_members ORDER BY role COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("read roles: %w", err)
	}
	defer rows.Close()

	roles := []ir.Role{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, ir.Role(role))
	}
	return roles, rows.Err()
}

// RoleAdmins returns every explicitly configured role admin.
func (r reader) RoleAdmins(ctx context.Context) (map[ir.Role]ir.Role, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT role, admin_role FROM role_admins ORDER BY role ASC`)
	if err != nil {
		return nil, fmt.Errorf("read role admins: %w", err)
	}
	defer rows.Close()

	admins := map[ir.Role]ir.Role{}
	for rows.Next() {
		var role, admin string
		if err := rows.Scan(&role, &admin); err != nil {
			return nil, fmt.Errorf("scan role admin: %w", err)
		}
		admins[ir.Role(role)] = ir.Role(admin)
	}
	return admins, rows.Err()
}
