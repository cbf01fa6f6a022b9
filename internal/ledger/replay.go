package ledger

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/store"
)

// Snapshot is the full projection of ledger state.
type Snapshot struct {
	Programs   []ir.Program
	Pulses     []ir.Pulse
	Emblems    []ir.Emblem
	Grants     map[uint64][]string
	Roles      map[ir.Role][]string
	RoleAdmins map[ir.Role]ir.Role
}

// ReplayReport is the result of rebuilding state from the audit log.
type ReplayReport struct {
	Events     int64    `json:"events"`
	Mismatches []string `json:"mismatches"`
}

// Consistent reports whether the replayed state matched the stored tables.
func (r ReplayReport) Consistent() bool { return len(r.Mismatches) == 0 }

// Replay rebuilds the ledger's tables from the audit log alone and
// compares the result with the stored state. Every difference is reported;
// an error is returned only when the log cannot be read or decoded.
//
// Replay holds the mutation lock so the log and the tables are read at
// the same point.
func (l *Ledger) Replay(ctx context.Context) (ReplayReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := newProjector()
	err := l.store.EachEvent(ctx, func(ev ir.Event) error {
		return p.apply(ev)
	})
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	stored, err := l.Snapshot(ctx)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	return ReplayReport{
		Events:     p.events,
		Mismatches: diffSnapshots(p.snapshot(), stored),
	}, nil
}

// Snapshot reads the current stored state.
func (l *Ledger) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Grants: map[uint64][]string{}, Roles: map[ir.Role][]string{}}
	var err error

	if snap.Programs, err = l.store.ListPrograms(ctx, store.ProgramFilter{}); err != nil {
		return Snapshot{}, err
	}
	if snap.Pulses, err = l.store.ListPulses(ctx, store.PulseFilter{}); err != nil {
		return Snapshot{}, err
	}
	if snap.Emblems, err = l.store.ListEmblems(ctx); err != nil {
		return Snapshot{}, err
	}
	for _, p := range snap.Pulses {
		grants, err := l.store.DecryptGrants(ctx, p.ID)
		if err != nil {
			return Snapshot{}, err
		}
		if len(grants) > 0 {
			snap.Grants[p.ID] = grants
		}
	}

	roles, err := l.store.Roles(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	for _, role := range roles {
		members, err := l.store.RoleMembers(ctx, role)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Roles[role] = members
	}
	if snap.RoleAdmins, err = l.store.RoleAdmins(ctx); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// projector folds events into a Snapshot.
type projector struct {
	events     int64
	programs   map[uint64]ir.Program
	pulses     map[uint64]ir.Pulse
	emblems    map[uint64]ir.Emblem
	grants     map[uint64][]string
	roles      map[ir.Role]map[string]bool
	roleAdmins map[ir.Role]ir.Role
}

func newProjector() *projector {
	return &projector{
		programs:   map[uint64]ir.Program{},
		pulses:     map[uint64]ir.Pulse{},
		emblems:    map[uint64]ir.Emblem{},
		grants:     map[uint64][]string{},
		roles:      map[ir.Role]map[string]bool{},
		roleAdmins: map[ir.Role]ir.Role{},
	}
}

func (p *projector) apply(ev ir.Event) error {
	p.events++
	f := ev.Fields

	switch ev.Kind {
	case ir.EventRoleGranted:
		role := ir.Role(f.String("role"))
		if p.roles[role] == nil {
			p.roles[role] = map[string]bool{}
		}
		p.roles[role][f.String("account")] = true

	case ir.EventRoleRevoked:
		delete(p.roles[ir.Role(f.String("role"))], f.String("account"))

	case ir.EventRoleAdminChanged:
		p.roleAdmins[ir.Role(f.String("role"))] = ir.Role(f.String("new_admin_role"))

	case ir.EventProgramScheduled:
		digest, err := ir.ParseDigest(f.String("rules_digest"))
		if err != nil {
			return fmt.Errorf("event %d: %w", ev.Seq, err)
		}
		p.programs[ev.ProgramID] = ir.Program{
			ID:          ev.ProgramID,
			Curator:     f.String("curator"),
			ManifestCID: f.String("manifest_cid"),
			WindowStart: uint64(f.Int("window_start")),
			WindowEnd:   uint64(f.Int("window_end")),
			RulesDigest: digest,
			CreatedAt:   ev.At,
		}

	case ir.EventPulseRecorded:
		pulse, err := pulseFromFields(ev)
		if err != nil {
			return err
		}
		p.pulses[pulse.ID] = pulse

	case ir.EventPulseAudited:
		pulse := p.pulses[ev.PulseID]
		pulse.Validated = f.Bool("approved")
		p.pulses[ev.PulseID] = pulse

	case ir.EventPulseExposed:
		pulse := p.pulses[ev.PulseID]
		pulse.LatencyMs = uint64(f.Int("latency_ms"))
		pulse.ClearCID = f.String("clear_cid")
		p.pulses[ev.PulseID] = pulse

	case ir.EventDecryptDelegated:
		to := f.String("to")
		if !slices.Contains(p.grants[ev.PulseID], to) {
			p.grants[ev.PulseID] = append(p.grants[ev.PulseID], to)
		}

	case ir.EventEmblemMinted:
		token := uint64(f.Int("token_id"))
		p.emblems[token] = ir.Emblem{
			TokenID:   token,
			PulseID:   ev.PulseID,
			Owner:     f.String("to"),
			EmblemCID: f.String("emblem_cid"),
			MintedAt:  ev.At,
		}
		pulse := p.pulses[ev.PulseID]
		pulse.EmblemTokenID = token
		p.pulses[ev.PulseID] = pulse

	default:
		return fmt.Errorf("event %d: unknown kind %q", ev.Seq, ev.Kind)
	}
	return nil
}

func pulseFromFields(ev ir.Event) (ir.Pulse, error) {
	f := ev.Fields
	exposure, err := ir.ParseExposure(f.String("exposure"))
	if err != nil {
		return ir.Pulse{}, fmt.Errorf("event %d: %w", ev.Seq, err)
	}
	pulse := ir.Pulse{
		ID:           ev.PulseID,
		Pilot:        f.String("pilot"),
		ArtifactCID:  f.String("artifact_cid"),
		LatencyMs:    uint64(f.Int("latency_ms")),
		ProtocolMode: uint8(f.Int("protocol_mode")),
		Exposure:     exposure,
		ProgramID:    ev.ProgramID,
		Rounds:       uint64(f.Int("rounds")),
		SubmittedAt:  f.Int("timestamp"),
	}
	digests := []struct {
		key string
		dst *ir.Digest
	}{
		{"payload_hash", &pulse.PayloadHash},
		{"device_fingerprint", &pulse.DeviceFingerprint},
		{"sealed_handle", &pulse.SealedHandle},
	}
	for _, d := range digests {
		if *d.dst, err = ir.ParseDigest(f.String(d.key)); err != nil {
			return ir.Pulse{}, fmt.Errorf("event %d %s: %w", ev.Seq, d.key, err)
		}
	}
	return pulse, nil
}

func (p *projector) snapshot() Snapshot {
	snap := Snapshot{
		Programs:   sortedValues(p.programs),
		Pulses:     sortedValues(p.pulses),
		Emblems:    sortedValues(p.emblems),
		Grants:     p.grants,
		Roles:      map[ir.Role][]string{},
		RoleAdmins: p.roleAdmins,
	}
	for role, members := range p.roles {
		if len(members) == 0 {
			continue
		}
		accounts := make([]string, 0, len(members))
		for a := range members {
			accounts = append(accounts, a)
		}
		slices.Sort(accounts)
		snap.Roles[role] = accounts
	}
	return snap
}

func sortedValues[V any](m map[uint64]V) []V {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// diffSnapshots lists human-readable differences between replayed and
// stored state.
func diffSnapshots(replayed, stored Snapshot) []string {
	diffs := []string{}
	diffs = append(diffs, diffRecords("program", replayed.Programs, stored.Programs, func(p ir.Program) uint64 { return p.ID })...)
	diffs = append(diffs, diffRecords("pulse", replayed.Pulses, stored.Pulses, func(p ir.Pulse) uint64 { return p.ID })...)
	diffs = append(diffs, diffRecords("emblem", replayed.Emblems, stored.Emblems, func(e ir.Emblem) uint64 { return e.TokenID })...)
	if !reflect.DeepEqual(replayed.Grants, stored.Grants) {
		diffs = append(diffs, "decryption grants differ")
	}
	if !reflect.DeepEqual(replayed.Roles, stored.Roles) {
		diffs = append(diffs, "role memberships differ")
	}
	if !reflect.DeepEqual(replayed.RoleAdmins, stored.RoleAdmins) {
		diffs = append(diffs, "role admins differ")
	}
	return diffs
}

func diffRecords[T any](kind string, replayed, stored []T, id func(T) uint64) []string {
	diffs := []string{}
	byID := make(map[uint64]T, len(stored))
	for _, s := range stored {
		byID[id(s)] = s
	}
	for _, r := range replayed {
		s, ok := byID[id(r)]
		switch {
		case !ok:
			diffs = append(diffs, fmt.Sprintf("%s %d: in log but not stored", kind, id(r)))
		case !reflect.DeepEqual(r, s):
			diffs = append(diffs, fmt.Sprintf("%s %d: stored record differs from log", kind, id(r)))
		}
		delete(byID, id(r))
	}
	for k := range byID {
		diffs = append(diffs, fmt.Sprintf("%s %d: stored but not in log", kind, k))
	}
	slices.Sort(diffs)
	return diffs
}
