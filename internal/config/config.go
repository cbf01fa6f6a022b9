// Package config loads pulseledger settings from YAML.
//
// Files are decoded strictly (unknown keys are errors) on top of Default and
// the result is checked against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pulseledger/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// EnvOracleSecret overrides oracle.secret when set.
const EnvOracleSecret = "PULSELEDGER_ORACLE_SECRET"

// Config is the complete runtime configuration.
type Config struct {
	Database               string       `yaml:"database" json:"database"`
	Admin                  string       `yaml:"admin" json:"admin,omitempty"`
	ConfidentialProtocolID uint64       `yaml:"confidential_protocol_id" json:"confidential_protocol_id"`
	Emblem                 EmblemConfig `yaml:"emblem" json:"emblem"`
	Oracle                 OracleConfig `yaml:"oracle" json:"oracle"`
	LogLevel               string       `yaml:"log_level" json:"log_level"`
}

// EmblemConfig names the emblem collection fixed at genesis.
type EmblemConfig struct {
	Name   string `yaml:"name" json:"name"`
	Symbol string `yaml:"symbol" json:"symbol"`
}

// OracleConfig configures the local confidential engine. An empty secret
// disables it.
type OracleConfig struct {
	Secret string `yaml:"secret" json:"secret,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:               "pulseledger.db",
		ConfidentialProtocolID: 1,
		Emblem:                 EmblemConfig{Name: "Pulse Emblem", Symbol: "PULSE"},
		LogLevel:               "info",
	}
}

// Load reads and validates the file at path. The oracle secret may be
// supplied through EnvOracleSecret instead of the file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := decode(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if secret, ok := os.LookupEnv(EnvOracleSecret); ok {
		cfg.Oracle.Secret = secret
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates YAML. Empty input yields Default.
func Parse(data []byte) (Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks c against the schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Collection returns the emblem collection metadata.
func (c Config) Collection() ir.Collection {
	return ir.Collection{Name: c.Emblem.Name, Symbol: c.Emblem.Symbol}
}
