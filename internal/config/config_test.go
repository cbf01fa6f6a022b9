package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pulseledger/internal/ir"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
database: /var/lib/pulse/ledger.db
admin: "0xadmin"
confidential_protocol_id: 9
emblem:
  name: Reflex Badge
  symbol: RFX
oracle:
  secret: "0123456789abcdef0123"
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/pulse/ledger.db", cfg.Database)
	assert.Equal(t, "0xadmin", cfg.Admin)
	assert.Equal(t, uint64(9), cfg.ConfidentialProtocolID)
	assert.Equal(t, ir.Collection{Name: "Reflex Badge", Symbol: "RFX"}, cfg.Collection())
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("emblem:\n  symbol: ZAP\n"))
	require.NoError(t, err)
	assert.Equal(t, "ZAP", cfg.Emblem.Symbol)
	assert.Equal(t, "Pulse Emblem", cfg.Emblem.Name)
	assert.Equal(t, "pulseledger.db", cfg.Database)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "databse: x.db\n"},
		{"empty database", "database: \"\"\n"},
		{"zero protocol id", "confidential_protocol_id: 0\n"},
		{"negative protocol id", "confidential_protocol_id: -1\n"},
		{"lowercase symbol", "emblem:\n  symbol: pulse\n"},
		{"long symbol", "emblem:\n  symbol: ABCDEFGHIJKL\n"},
		{"short secret", "oracle:\n  secret: tooshort\n"},
		{"bad log level", "log_level: loud\n"},
		{"not a mapping", "- a\n- b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulseledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: ledger.db\nlog_level: warn\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ledger.db", cfg.Database)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
}

func TestLoad_SecretFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulseledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("oracle:\n  secret: file-secret-0123456789\n"), 0o644))
	t.Setenv(EnvOracleSecret, "env-secret-0123456789")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret-0123456789", cfg.Oracle.Secret)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLevel_FallsBackToInfo(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, Config{LogLevel: "verbose"}.Level())
}
