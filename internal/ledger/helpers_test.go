package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/oracle"
	"github.com/roach88/pulseledger/internal/store"
	"github.com/roach88/pulseledger/internal/testutil"
)

const (
	admin    = "0xadmin"
	curator  = "0xcurator"
	analyst  = "0xanalyst"
	pilot    = "0xpilot"
	stranger = "0xstranger"
)

var testSecret = []byte("pulseledger-test-secret-0123456789")

type fixture struct {
	ledger *Ledger
	store  *store.Store
	oracle *oracle.Local
	clock  *testutil.ManualClock
	ctx    context.Context
}

// newUninitialized opens a ledger over a fresh store without genesis.
func newUninitialized(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	orc, err := oracle.NewLocal(testSecret, 1)
	require.NoError(t, err)

	clock := testutil.NewManualClock(0)
	base := []Option{WithClock(clock), WithTokenGenerator(NewSequenceGenerator("op"))}
	return &fixture{
		ledger: New(s, orc, append(base, opts...)...),
		store:  s,
		oracle: orc,
		clock:  clock,
		ctx:    context.Background(),
	}
}

// newFixture returns an initialized ledger where curator holds CURATOR and
// analyst holds ANALYST.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := newUninitialized(t, opts...)
	require.NoError(t, f.ledger.Initialize(f.ctx, admin))
	require.NoError(t, f.ledger.GrantRole(f.ctx, admin, ir.RoleCurator, curator))
	require.NoError(t, f.ledger.GrantRole(f.ctx, admin, ir.RoleAnalyst, analyst))
	return f
}

func revealed(latency uint64) RecordParams {
	return RecordParams{
		PayloadHash:       digestOf(0xaa),
		ArtifactCID:       "bafy-artifact",
		LatencyMs:         latency,
		ProtocolMode:      1,
		Exposure:          ir.Revealed,
		DeviceFingerprint: digestOf(0xdd),
		Rounds:            5,
	}
}

func (f *fixture) encrypted(t *testing.T, value uint64, submitter string) RecordParams {
	t.Helper()
	handle, proof, err := f.oracle.Seal(value, submitter)
	require.NoError(t, err)
	p := revealed(0)
	p.Exposure = ir.Encrypted
	p.Sealed = &SealedInput{Handle: handle, Proof: proof}
	return p
}

func shielded() RecordParams {
	p := revealed(0)
	p.Exposure = ir.Shielded
	return p
}

func digestOf(b byte) ir.Digest {
	var d ir.Digest
	for i := range d {
		d[i] = b
	}
	return d
}

func (f *fixture) eventCount(t *testing.T) int {
	t.Helper()
	evs, err := f.ledger.Events(f.ctx, store.EventFilter{})
	require.NoError(t, err)
	return len(evs)
}

func (f *fixture) counter(t *testing.T, name string) uint64 {
	t.Helper()
	n, err := f.store.Counter(f.ctx, name)
	require.NoError(t, err)
	return n
}

func domainErr(t *testing.T, err error) *Error {
	t.Helper()
	var e *Error
	require.ErrorAs(t, err, &e)
	return e
}
