package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "One pulse"
admin: "0xadmin"
flow:
  - op: record_pulse
    as: "0xpilot"
    args: { exposure: revealed, latency_ms: 10 }
assertions:
  - type: trace_count
    kind: PulseRecorded
    count: 1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, "0xadmin", scenario.Admin)
	require.Len(t, scenario.Flow, 1)
	assert.Equal(t, "record_pulse", scenario.Flow[0].Op)
	assert.Equal(t, "0xpilot", scenario.Flow[0].As)
	assert.Equal(t, "revealed", scenario.Flow[0].Args["exposure"])
	assert.Equal(t, 10, scenario.Flow[0].Args["latency_ms"])
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, AssertTraceCount, scenario.Assertions[0].Type)
	assert.Equal(t, 1, scenario.Assertions[0].Count)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Expect(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: expect
description: "Expect clauses"
admin: "0xadmin"
time: 1700000000
protocol_id: 3
flow:
  - op: mint_emblem
    as: "0xcurator"
    advance: 30
    args: { pulse_id: 1, to: "0xpilot" }
    expect:
      error: NOT_FOUND
  - op: pulse_count
    as: "0xanyone"
    expect:
      result: { count: 0 }
assertions:
  - type: chain_intact
`))
	require.NoError(t, err)

	assert.Equal(t, int64(1700000000), scenario.Time)
	assert.Equal(t, uint64(3), scenario.ProtocolID)
	require.NotNil(t, scenario.Flow[0].Expect)
	assert.Equal(t, "NOT_FOUND", scenario.Flow[0].Expect.Error)
	assert.Equal(t, int64(30), scenario.Flow[0].Advance)
	require.NotNil(t, scenario.Flow[1].Expect)
	assert.Equal(t, map[string]any{"count": 0}, scenario.Flow[1].Expect.Result)
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "flow_token: abc\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing name",
			yaml: `
description: "x"
admin: "0xadmin"
flow: [{ op: pulse_count, as: "0xa" }]
assertions: [{ type: chain_intact }]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			yaml: `
name: x
admin: "0xadmin"
flow: [{ op: pulse_count, as: "0xa" }]
assertions: [{ type: chain_intact }]
`,
			wantErr: "description is required",
		},
		{
			name: "missing admin",
			yaml: `
name: x
description: "x"
flow: [{ op: pulse_count, as: "0xa" }]
assertions: [{ type: chain_intact }]
`,
			wantErr: "admin is required",
		},
		{
			name: "empty flow",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
flow: []
assertions: [{ type: chain_intact }]
`,
			wantErr: "flow list is required",
		},
		{
			name: "missing assertions",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
flow: [{ op: pulse_count, as: "0xa" }]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "unknown op",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
flow: [{ op: burn_emblem, as: "0xa" }]
assertions: [{ type: chain_intact }]
`,
			wantErr: `flow[0]: unknown op "burn_emblem"`,
		},
		{
			name: "missing caller",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
flow: [{ op: pulse_count }]
assertions: [{ type: chain_intact }]
`,
			wantErr: "flow[0]: as is required",
		},
		{
			name: "unknown argument",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
flow: [{ op: audit_pulse, as: "0xa", args: { pulse_id: 1, verdict: true } }]
assertions: [{ type: chain_intact }]
`,
			wantErr: `op audit_pulse does not take argument "verdict"`,
		},
		{
			name: "negative advance",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
flow: [{ op: pulse_count, as: "0xa", advance: -1 }]
assertions: [{ type: chain_intact }]
`,
			wantErr: "advance must be non-negative",
		},
		{
			name: "setup with expect",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
setup:
  - op: grant_role
    as: "0xadmin"
    args: { role: CURATOR, account: "0xc" }
    expect: { error: ACCESS_DENIED }
flow: [{ op: pulse_count, as: "0xa" }]
assertions: [{ type: chain_intact }]
`,
			wantErr: "setup[0]: setup steps cannot carry expect",
		},
		{
			name: "error and result",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
flow:
  - op: pulse_count
    as: "0xa"
    expect: { error: NOT_FOUND, result: { count: 1 } }
assertions: [{ type: chain_intact }]
`,
			wantErr: "error and result are mutually exclusive",
		},
		{
			name: "unknown assertion type",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
flow: [{ op: pulse_count, as: "0xa" }]
assertions: [{ type: eventually }]
`,
			wantErr: `unknown assertion type "eventually"`,
		},
		{
			name: "unknown event kind",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
flow: [{ op: pulse_count, as: "0xa" }]
assertions: [{ type: trace_contains, kind: PulseBurned }]
`,
			wantErr: `unknown event kind "PulseBurned"`,
		},
		{
			name: "trace_order without kinds",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
flow: [{ op: pulse_count, as: "0xa" }]
assertions: [{ type: trace_order }]
`,
			wantErr: "kinds list is required",
		},
		{
			name: "final_state without table",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
flow: [{ op: pulse_count, as: "0xa" }]
assertions: [{ type: final_state, expect: { id: 1 } }]
`,
			wantErr: "table is required for final_state",
		},
		{
			name: "final_state without expect",
			yaml: `
name: x
description: "x"
admin: "0xadmin"
flow: [{ op: pulse_count, as: "0xa" }]
assertions: [{ type: final_state, table: pulses }]
`,
			wantErr: "expect is required for final_state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, filepath.Base(path), scenario.Name+".yaml")
		})
	}
}
