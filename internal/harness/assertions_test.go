package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/ledger"
	"github.com/roach88/pulseledger/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Kind: ir.EventRoleGranted, Actor: "0xadmin", Account: "0xadmin",
			Fields: ir.Object{"role": ir.String("ADMIN"), "account": ir.String("0xadmin")}},
		{Seq: 2, Kind: ir.EventPulseRecorded, Actor: "0xpilot", Account: "0xpilot", PulseID: 1,
			Fields: ir.Object{"pulse_id": ir.Int(1), "exposure": ir.String("revealed"), "latency_ms": ir.Int(180)}},
		{Seq: 3, Kind: ir.EventPulseAudited, Actor: "0xanalyst", PulseID: 1,
			Fields: ir.Object{"pulse_id": ir.Int(1), "approved": ir.Bool(true)}},
		{Seq: 4, Kind: ir.EventPulseRecorded, Actor: "0xpilot", Account: "0xpilot", PulseID: 2,
			Fields: ir.Object{"pulse_id": ir.Int(2), "exposure": ir.String("shielded")}},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	t.Run("kind only", func(t *testing.T) {
		assert.NoError(t, assertTraceContains(trace, Assertion{Kind: "PulseAudited"}))
	})
	t.Run("field subset", func(t *testing.T) {
		err := assertTraceContains(trace, Assertion{
			Kind:   "PulseRecorded",
			Fields: map[string]any{"pulse_id": 2, "exposure": "shielded"},
		})
		assert.NoError(t, err)
	})
	t.Run("bool field", func(t *testing.T) {
		err := assertTraceContains(trace, Assertion{Kind: "PulseAudited", Fields: map[string]any{"approved": true}})
		assert.NoError(t, err)
	})
	t.Run("field mismatch", func(t *testing.T) {
		err := assertTraceContains(trace, Assertion{
			Kind:   "PulseRecorded",
			Fields: map[string]any{"pulse_id": 2, "exposure": "revealed"},
		})
		var ae *AssertionError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, AssertTraceContains, ae.Type)
		assert.Len(t, ae.Trace, 4)
	})
	t.Run("missing kind", func(t *testing.T) {
		err := assertTraceContains(trace, Assertion{Kind: "EmblemMinted"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found in trace")
	})
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Kinds: []string{"RoleGranted", "PulseRecorded", "PulseAudited"}}))

	err := assertTraceOrder(trace, Assertion{Kinds: []string{"PulseAudited", "PulseRecorded"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PulseAudited (pos 3) should be before PulseRecorded (pos 2)")

	err = assertTraceOrder(trace, Assertion{Kinds: []string{"PulseRecorded", "EmblemMinted"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing kind: EmblemMinted")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Kind: "PulseRecorded", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Kind: "EmblemMinted", Count: 0}))

	err := assertTraceCount(trace, Assertion{Kind: "PulseRecorded", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 1 PulseRecorded events")
	assert.Contains(t, err.Error(), "Actual: 2 events")
}

// seededLedger returns a ledger with one revealed, approved pulse.
func seededLedger(t *testing.T) (*store.Store, *ledger.Ledger) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	l := ledger.New(st, nil)
	require.NoError(t, l.Initialize(ctx, "0xadmin"))
	id, err := l.RecordPulse(ctx, "0xpilot", ledger.RecordParams{
		Exposure:    ir.Revealed,
		LatencyMs:   250,
		ArtifactCID: "bafy-a",
		Rounds:      2,
	})
	require.NoError(t, err)
	require.NoError(t, l.AuditPulse(ctx, "0xadmin", id, true, "bafy-v"))
	return st, l
}

func TestAssertFinalState(t *testing.T) {
	st, _ := seededLedger(t)
	ctx := context.Background()

	t.Run("match", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "pulses",
			Where:  map[string]any{"id": 1},
			Expect: map[string]any{"pilot": "0xpilot", "latency_ms": 250, "validated": true, "exposure": 2},
		})
		assert.NoError(t, err)
	})
	t.Run("bool where", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "pulses",
			Where:  map[string]any{"validated": true, "pilot": "0xpilot"},
			Expect: map[string]any{"id": 1},
		})
		assert.NoError(t, err)
	})
	t.Run("value mismatch", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "pulses",
			Where:  map[string]any{"id": 1},
			Expect: map[string]any{"latency_ms": 251},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pulses.latency_ms = 251")
	})
	t.Run("row not found", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "pulses",
			Where:  map[string]any{"id": 42},
			Expect: map[string]any{"pilot": "0xpilot"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row not found")
	})
	t.Run("ambiguous", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "role_members",
			Where:  map[string]any{"account": "0xadmin"},
			Expect: map[string]any{"account": "0xadmin"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "multiple rows matched")
	})
	t.Run("unknown column", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "pulses",
			Where:  map[string]any{"id": 1},
			Expect: map[string]any{"speed": 1},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `column "speed" to exist`)
	})
	t.Run("invalid table", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "pulses; DROP TABLE events",
			Expect: map[string]any{"id": 1},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})
	t.Run("invalid column", func(t *testing.T) {
		err := assertFinalState(ctx, st, Assertion{
			Table:  "pulses",
			Where:  map[string]any{"id OR 1=1": 1},
			Expect: map[string]any{"id": 1},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid column name")
	})
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(ir.Object{
		"pilot":     ir.String("0xpilot"),
		"id":        ir.Int(3),
		"validated": ir.Bool(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "id = ? AND pilot = ? AND validated = ?", sql)
	assert.Equal(t, []any{int64(3), "0xpilot", int64(0)}, args)

	sql, args, err = buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)

	_, _, err = buildWhereClause(ir.Object{"tags": ir.Array{ir.String("a")}})
	require.Error(t, err)
}

func TestStateValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected ir.Value
		actual   any
		want     bool
	}{
		{"string", ir.String("a"), "a", true},
		{"string bytes", ir.String("a"), []byte("a"), true},
		{"string mismatch", ir.String("a"), "b", false},
		{"int", ir.Int(7), int64(7), true},
		{"int vs string", ir.Int(7), "7", false},
		{"bool true", ir.Bool(true), int64(1), true},
		{"bool false", ir.Bool(false), int64(0), true},
		{"bool mismatch", ir.Bool(true), int64(0), false},
		{"nil", ir.String(""), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stateValuesEqual(tt.expected, tt.actual))
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	st, l := seededLedger(t)
	ctx := context.Background()

	result := NewResult()
	result.Trace = sampleTrace()

	assertions := []Assertion{
		{Type: AssertTraceContains, Kind: "PulseAudited"},
		{Type: AssertTraceCount, Kind: "PulseAudited", Count: 2},
		{Type: AssertChainIntact},
		{Type: AssertReplayConsistent},
		{Type: AssertFinalState, Table: "emblems", Where: map[string]any{"token_id": 1}, Expect: map[string]any{"owner": "0xpilot"}},
	}
	errs := EvaluateAssertions(result, assertions, &AssertionContext{Store: st, Ledger: l, Ctx: ctx})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "2 PulseAudited events")
	assert.Contains(t, errs[1], "row not found")
}

func TestEvaluateAssertions_NoContext(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Table: "pulses", Expect: map[string]any{"id": 1}},
		{Type: AssertChainIntact},
		{Type: AssertReplayConsistent},
	}, nil)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "final_state requires database context")
	assert.Contains(t, errs[1], "chain_intact requires a ledger")
	assert.Contains(t, errs[2], "replay_consistent requires a ledger")
}
