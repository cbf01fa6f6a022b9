package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/pulseledger/internal/config"
	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/ledger"
	"github.com/roach88/pulseledger/internal/oracle"
	"github.com/roach88/pulseledger/internal/store"
)

// session is one command's view of the ledger: resolved config, open
// store and the output formatter. Close releases the database.
type session struct {
	opts   *RootOptions
	cfg    config.Config
	store  *store.Store
	ledger *ledger.Ledger
	oracle *oracle.Local // nil when no oracle secret is configured
	logger *slog.Logger
	out    *OutputFormatter
}

// loadConfig resolves the effective configuration: the --config file (or
// defaults), then the --db override.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.Config != "" {
		loaded, err := config.Load(o.Config)
		if err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	} else if secret, ok := os.LookupEnv(config.EnvOracleSecret); ok {
		cfg.Oracle.Secret = secret
		if err := cfg.Validate(); err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, "invalid environment", err)
		}
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	return cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	s := &session{opts: opts, cfg: cfg, store: st, logger: logger, out: opts.formatter(cmd)}

	var orc oracle.Oracle
	if cfg.Oracle.Secret != "" {
		local, err := oracle.NewLocal([]byte(cfg.Oracle.Secret), cfg.ConfidentialProtocolID)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to create oracle", err)
		}
		s.oracle = local
		orc = local
	}

	s.ledger = ledger.New(st, orc,
		ledger.WithLogger(logger),
		ledger.WithProtocolID(cfg.ConfidentialProtocolID),
		ledger.WithCollection(cfg.Collection()),
	)
	if opts.Verbose {
		s.ledger.Subscribe(ledger.LogSubscriber(logger))
	}
	logger.Debug("session opened", "database", cfg.Database, "oracle", s.oracle != nil)
	return s, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// caller returns the acting account: --as, else the configured admin.
func (s *session) caller() (string, error) {
	if s.opts.As != "" {
		return s.opts.As, nil
	}
	if s.cfg.Admin != "" {
		return s.cfg.Admin, nil
	}
	return "", NewExitError(ExitCommandError, "no acting account: pass --as or set admin in the config")
}

// withSession opens a session, runs fn and closes the store.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(s *session) error) error {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func parseID(arg, name string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s %q", name, arg), err)
	}
	return id, nil
}

func parseRole(arg string) (ir.Role, error) {
	role := ir.Role(arg)
	if role == "" {
		return "", NewExitError(ExitCommandError, "role is required")
	}
	return role, nil
}

// parseDigest accepts 0x-prefixed hex or arbitrary text, which is hashed
// with Keccak-256.
func parseDigest(arg, name string) (ir.Digest, error) {
	d, err := ir.DigestOf(arg)
	if err != nil {
		return ir.Digest{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s", name), err)
	}
	return d, nil
}
