package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pulseledger/internal/config"
	"github.com/roach88/pulseledger/internal/ir"
)

type cliRun struct {
	code   int
	stdout string
	stderr string
}

// envelope mirrors CLIResponse with the payload left raw.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// cliEnv runs commands against one temporary database.
type cliEnv struct {
	t  *testing.T
	db string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv(config.EnvOracleSecret, "")
	require.NoError(t, os.Unsetenv(config.EnvOracleSecret))
	return &cliEnv{t: t, db: filepath.Join(t.TempDir(), "ledger.db")}
}

func (e *cliEnv) run(args ...string) cliRun {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(append(args, "--db", e.db), &stdout, &stderr)
	return cliRun{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// ok runs a command that must succeed in JSON mode and decodes its data
// into v (when non-nil).
func (e *cliEnv) ok(v any, args ...string) {
	e.t.Helper()
	r := e.run(append(args, "--format", "json")...)
	require.Equal(e.t, ExitSuccess, r.code, "%v\nstdout: %s\nstderr: %s", args, r.stdout, r.stderr)
	var env envelope
	require.NoError(e.t, json.Unmarshal([]byte(r.stdout), &env))
	require.Equal(e.t, "ok", env.Status)
	if v != nil {
		require.NoError(e.t, json.Unmarshal(env.Data, v))
	}
}

// fails runs a command that must be rejected by the ledger in JSON mode
// and returns the error envelope.
func (e *cliEnv) fails(code string, args ...string) *CLIError {
	e.t.Helper()
	r := e.run(append(args, "--format", "json")...)
	require.Equal(e.t, ExitFailure, r.code, "%v\nstdout: %s\nstderr: %s", args, r.stdout, r.stderr)
	var env envelope
	require.NoError(e.t, json.Unmarshal([]byte(r.stdout), &env))
	require.Equal(e.t, "error", env.Status)
	require.NotNil(e.t, env.Error)
	assert.Equal(e.t, code, env.Error.Code)
	return env.Error
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pulseledger", cmd.Use)
	assert.Contains(t, cmd.Long, "hash-chained audit log")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"init"}, {"seal"}, {"events"}, {"verify"}, {"test"},
		{"role", "grant"}, {"role", "revoke"}, {"role", "renounce"}, {"role", "has"},
		{"role", "admin"}, {"role", "set-admin"}, {"role", "members"},
		{"program", "schedule"}, {"program", "view"}, {"program", "count"}, {"program", "list"},
		{"pulse", "record"}, {"pulse", "audit"}, {"pulse", "expose"}, {"pulse", "delegate"},
		{"pulse", "view"}, {"pulse", "sealed"}, {"pulse", "count"}, {"pulse", "list"},
		{"pulse", "grants"}, {"pulse", "decrypt"},
		{"emblem", "mint"}, {"emblem", "view"}, {"emblem", "collection"},
	}

	for _, path := range commands {
		name := strings.Join(path, " ")
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %s should exist", name)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"db", "as"} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "", f.DefValue)
	}
}

func TestSubcommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	tests := []struct {
		path  []string
		flags []string
	}{
		{[]string{"pulse", "record"}, []string{"payload", "artifact", "latency", "mode", "exposure", "program", "device", "rounds", "handle", "proof"}},
		{[]string{"pulse", "audit"}, []string{"approve", "cid"}},
		{[]string{"pulse", "expose"}, []string{"latency", "cid"}},
		{[]string{"program", "schedule"}, []string{"manifest", "start", "end", "rules"}},
		{[]string{"role", "renounce"}, []string{"confirm"}},
		{[]string{"events"}, []string{"kind", "pulse", "program", "account", "after", "limit"}},
		{[]string{"verify"}, []string{"skip-replay"}},
		{[]string{"test"}, []string{"update", "filter"}},
		{[]string{"seal"}, []string{"for"}},
	}
	for _, tt := range tests {
		sub, _, err := cmd.Find(tt.path)
		require.NoError(t, err)
		for _, name := range tt.flags {
			assert.NotNil(t, sub.Flags().Lookup(name), "%v --%s", tt.path, name)
		}
	}

	record, _, err := cmd.Find([]string{"pulse", "record"})
	require.NoError(t, err)
	assert.Equal(t, "revealed", record.Flags().Lookup("exposure").DefValue)
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}

func TestExecute_CommandErrors(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"frobnicate"}, "unknown command"},
		{"invalid format", []string{"pulse", "count", "--format", "yaml"}, "invalid format"},
		{"bad pulse id", []string{"pulse", "view", "abc"}, "invalid pulse id"},
		{"bad exposure", []string{"pulse", "record", "--exposure", "hidden", "--as", "0xpilot"}, "invalid --exposure"},
		{"bad event kind", []string{"events", "--kind", "Nope"}, "unknown event kind"},
		{"no acting account", []string{"pulse", "record", "--latency", "5"}, "no acting account"},
		{"renounce without confirm", []string{"role", "renounce", "CURATOR", "--as", "0xadmin"}, "confirm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := env.run(tt.args...)
			assert.Equal(t, ExitCommandError, r.code)
			assert.Contains(t, r.stderr, "Error [E_COMMAND]")
			assert.Contains(t, r.stderr, tt.want)
			assert.Empty(t, r.stdout)
		})
	}
}

func TestExecute_JSONCommandError(t *testing.T) {
	env := newCLIEnv(t)

	r := env.run("pulse", "view", "abc", "--format", "json")
	assert.Equal(t, ExitCommandError, r.code)

	var resp envelope
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeCommandError, resp.Error.Code)
}

func TestExecute_DomainErrorText(t *testing.T) {
	env := newCLIEnv(t)
	env.ok(nil, "init", "0xadmin")

	r := env.run("pulse", "view", "9")
	assert.Equal(t, ExitFailure, r.code)
	assert.Equal(t, "Error [NOT_FOUND]: NOT_FOUND: pulse 9\n", r.stderr)
	assert.Empty(t, r.stdout)
}

func TestCLI_InitAndRoles(t *testing.T) {
	env := newCLIEnv(t)

	var initRes InitResult
	env.ok(&initRes, "init", "0xadmin")
	assert.Equal(t, "0xadmin", initRes.Admin)
	assert.Equal(t, env.db, initRes.Database)
	assert.Equal(t, uint64(1), initRes.ProtocolID)
	assert.Equal(t, "PULSE", initRes.Collection.Symbol)

	env.fails("ALREADY_INITIALIZED", "init", "0xadmin")

	for _, role := range ir.BuiltinRoles {
		var has RoleResult
		env.ok(&has, "role", "has", string(role), "0xadmin")
		require.NotNil(t, has.Has)
		assert.True(t, *has.Has, role)
	}

	denied := env.fails("ACCESS_DENIED", "role", "grant", "CURATOR", "0xmallory", "--as", "0xmallory")
	assert.Equal(t, map[string]any{"required_role": "ADMIN"}, denied.Details)

	env.ok(nil, "role", "grant", "CURATOR", "0xcurator", "--as", "0xadmin")
	var members RoleResult
	env.ok(&members, "role", "members", "CURATOR")
	assert.ElementsMatch(t, []string{"0xadmin", "0xcurator"}, members.Members)

	env.fails("BAD_CONFIRMATION", "role", "renounce", "CURATOR", "--confirm", "0xadmin", "--as", "0xcurator")
	env.ok(nil, "role", "renounce", "CURATOR", "--confirm", "0xcurator", "--as", "0xcurator")

	var has RoleResult
	env.ok(&has, "role", "has", "CURATOR", "0xcurator")
	require.NotNil(t, has.Has)
	assert.False(t, *has.Has)

	env.ok(nil, "role", "set-admin", "ANALYST", "CURATOR", "--as", "0xadmin")
	var admin RoleResult
	env.ok(&admin, "role", "admin", "ANALYST")
	assert.Equal(t, ir.RoleCurator, admin.AdminRole)
}

func TestCLI_PulseToEmblem(t *testing.T) {
	env := newCLIEnv(t)
	env.ok(nil, "init", "0xadmin")
	env.ok(nil, "role", "grant", "ANALYST", "0xanalyst", "--as", "0xadmin")

	env.fails("INVALID_WINDOW", "program", "schedule", "--manifest", "bafy-m", "--start", "100", "--end", "50", "--as", "0xadmin")

	var prog map[string]uint64
	env.ok(&prog, "program", "schedule", "--manifest", "bafy-m", "--start", "100", "--end", "200", "--rules", "rules-v1", "--as", "0xadmin")
	assert.Equal(t, uint64(1), prog["program_id"])

	var program ir.Program
	env.ok(&program, "program", "view", "1")
	assert.Equal(t, "0xadmin", program.Curator)
	assert.Equal(t, uint64(200), program.WindowEnd)

	var rec map[string]uint64
	env.ok(&rec, "pulse", "record", "--latency", "250", "--rounds", "5", "--payload", "run-1", "--program", "1", "--as", "0xpilot")
	assert.Equal(t, uint64(1), rec["pulse_id"])

	env.fails("INVALID_ARGUMENT", "pulse", "record", "--as", "0xpilot")
	env.fails("NOT_FOUND", "pulse", "record", "--latency", "9", "--program", "7", "--as", "0xpilot")
	env.fails("INVALID_ARGUMENT", "pulse", "record", "--latency", "18446744073709551615", "--as", "0xpilot")

	env.fails("NOT_VALIDATED", "emblem", "mint", "1", "0xpilot", "--as", "0xadmin")
	env.fails("ACCESS_DENIED", "pulse", "audit", "1", "--approve", "--as", "0xpilot")
	env.ok(nil, "pulse", "audit", "1", "--approve", "--cid", "bafy-verdict", "--as", "0xanalyst")

	r := env.run("emblem", "mint", "1", "0xpilot", "--cid", "bafy-emblem", "--as", "0xadmin")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "Minted emblem 1 for pulse 1 to 0xpilot\n", r.stdout)
	env.fails("ALREADY_MINTED", "emblem", "mint", "1", "0xpilot", "--as", "0xadmin")

	var pulse ir.Pulse
	env.ok(&pulse, "pulse", "view", "1")
	assert.True(t, pulse.Validated)
	assert.Equal(t, uint64(1), pulse.EmblemTokenID)
	assert.Equal(t, uint64(250), pulse.LatencyMs)
	assert.Equal(t, ir.Revealed, pulse.Exposure)

	var emblem ir.Emblem
	env.ok(&emblem, "emblem", "view", "1")
	assert.Equal(t, "0xpilot", emblem.Owner)
	assert.Equal(t, uint64(1), emblem.PulseID)

	var pulses []ir.Pulse
	env.ok(&pulses, "pulse", "list", "--pilot", "0xpilot")
	assert.Len(t, pulses, 1)
	env.ok(&pulses, "pulse", "list", "--pilot", "0xnobody")
	assert.Empty(t, pulses)

	var count map[string]uint64
	env.ok(&count, "pulse", "count")
	assert.Equal(t, uint64(1), count["count"])

	r = env.run("pulse", "view", "1")
	require.Equal(t, ExitSuccess, r.code)
	assert.Contains(t, r.stdout, "Latency:   250 ms")
	assert.Contains(t, r.stdout, "Emblem:    1")
}

func TestCLI_EventsAndVerify(t *testing.T) {
	env := newCLIEnv(t)
	env.ok(nil, "init", "0xadmin")
	env.ok(nil, "pulse", "record", "--latency", "120", "--as", "0xpilot")
	env.ok(nil, "pulse", "record", "--latency", "130", "--as", "0xpilot")

	var events EventsResult
	env.ok(&events, "events", "--kind", string(ir.EventPulseRecorded))
	assert.Len(t, events.Events, 2)
	assert.Equal(t, map[string]int{string(ir.EventPulseRecorded): 2}, events.Stats)

	env.ok(&events, "events", "--pulse", "2")
	require.Len(t, events.Events, 1)
	assert.Equal(t, uint64(2), events.Events[0].PulseID)

	env.ok(&events, "events", "--limit", "1")
	require.Len(t, events.Events, 1)
	first := events.Events[0].Seq
	env.ok(&events, "events", "--after", "0", "--limit", "1")
	require.Len(t, events.Events, 1)
	assert.Equal(t, first, events.Events[0].Seq)

	var verify VerifyResult
	env.ok(&verify, "verify")
	assert.True(t, verify.ChainIntact)
	assert.True(t, verify.ReplayChecked)
	assert.True(t, verify.ReplayConsistent)
	assert.Positive(t, verify.Events)
	assert.NotEmpty(t, verify.Head)

	env.ok(&verify, "verify", "--skip-replay")
	assert.False(t, verify.ReplayChecked)

	r := env.run("verify")
	require.Equal(t, ExitSuccess, r.code)
	assert.Contains(t, r.stdout, "ok   chain intact")
	assert.Contains(t, r.stdout, "ok   replay matches stored state")

	r = env.run("events")
	require.Equal(t, ExitSuccess, r.code)
	assert.Contains(t, r.stdout, "PulseRecorded by 0xpilot pulse=1")
}

func TestCLI_SealedPulse(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv(config.EnvOracleSecret, "cli-test-secret-0123456789")
	env.ok(nil, "init", "0xadmin")

	var sealed SealResult
	env.ok(&sealed, "seal", "420", "--as", "0xpilot")
	assert.Equal(t, "0xpilot", sealed.Submitter)
	assert.False(t, sealed.Handle.IsZero())
	assert.True(t, strings.HasPrefix(sealed.Proof, "0x"))

	env.fails("PROOF_VERIFICATION_FAILED", "pulse", "record", "--exposure", "encrypted",
		"--handle", sealed.Handle.Hex(), "--proof", sealed.Proof, "--as", "0xmallory")

	var rec map[string]uint64
	env.ok(&rec, "pulse", "record", "--exposure", "encrypted",
		"--handle", sealed.Handle.Hex(), "--proof", sealed.Proof, "--as", "0xpilot")
	id := rec["pulse_id"]
	require.Equal(t, uint64(1), id)

	var handle struct {
		Handle ir.Digest `json:"handle"`
	}
	env.ok(&handle, "pulse", "sealed", "1")
	assert.Equal(t, sealed.Handle, handle.Handle)

	var dec map[string]uint64
	env.ok(&dec, "pulse", "decrypt", "1", "--as", "0xpilot")
	assert.Equal(t, uint64(420), dec["latency_ms"])

	env.fails("ACCESS_DENIED", "pulse", "decrypt", "1", "--as", "0xanalyst")
	env.ok(nil, "pulse", "delegate", "1", "0xanalyst", "--as", "0xadmin")
	env.ok(&dec, "pulse", "decrypt", "1", "--as", "0xanalyst")
	assert.Equal(t, uint64(420), dec["latency_ms"])

	var grants struct {
		Grantees []string `json:"grantees"`
	}
	env.ok(&grants, "pulse", "grants", "1")
	assert.Equal(t, []string{"0xanalyst"}, grants.Grantees)

	env.ok(nil, "pulse", "expose", "1", "--latency", "420", "--cid", "bafy-clear", "--as", "0xadmin")
	env.fails("ALREADY_DISCLOSED", "pulse", "expose", "1", "--latency", "420", "--as", "0xadmin")

	r := env.run("pulse", "view", "1")
	require.Equal(t, ExitSuccess, r.code)
	assert.Contains(t, r.stdout, "Latency:   420 ms")
	assert.Contains(t, r.stdout, "Clear CID: bafy-clear")
}

func TestCLI_SealWithoutSecret(t *testing.T) {
	env := newCLIEnv(t)

	r := env.run("seal", "420", "--as", "0xpilot")
	assert.Equal(t, ExitCommandError, r.code)
	assert.Contains(t, r.stderr, "no oracle secret configured")
}

func TestCLI_ConfigFile(t *testing.T) {
	env := newCLIEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "pulseledger.yaml")
	cfgYAML := "admin: \"0xboss\"\nemblem:\n  name: Test Emblem\n  symbol: TEST\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0644))

	var initRes InitResult
	env.ok(&initRes, "init", "--config", cfgPath)
	assert.Equal(t, "0xboss", initRes.Admin)
	assert.Equal(t, "TEST", initRes.Collection.Symbol)

	var coll ir.Collection
	env.ok(&coll, "emblem", "collection", "--config", cfgPath)
	assert.Equal(t, "Test Emblem", coll.Name)

	env.ok(nil, "pulse", "record", "--latency", "75", "--config", cfgPath)
	var pulse ir.Pulse
	env.ok(&pulse, "pulse", "view", "1", "--config", cfgPath)
	assert.Equal(t, "0xboss", pulse.Pilot)

	r := env.run("pulse", "count", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, ExitCommandError, r.code)
	assert.Contains(t, r.stderr, "failed to load config")
}
