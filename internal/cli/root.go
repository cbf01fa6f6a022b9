package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/pulseledger/internal/ledger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // YAML config path; empty uses built-in defaults
	Database string // overrides the config database path
	As       string // acting account; defaults to the config admin
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the pulseledger CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pulseledger",
		Short: "Confidentiality-aware pulse ledger",
		Long: `pulseledger records latency pulses at three confidentiality levels,
validates them through analyst audits and issues one emblem per approved
pulse. Every mutation is appended to a hash-chained audit log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.As, "as", "", "acting account (defaults to config admin)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewRoleCommand(opts))
	cmd.AddCommand(NewProgramCommand(opts))
	cmd.AddCommand(NewPulseCommand(opts))
	cmd.AddCommand(NewEmblemCommand(opts))
	cmd.AddCommand(NewSealCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Failures are rendered once, as a JSON envelope on stdout or a text line
// on stderr, unless the command already reported them.
func Execute(args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || !exitErr.Reported {
		f := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}
		if !isValidFormat(f.Format) {
			f.Format = "text"
		}
		_ = f.Error(errorCode(err), err.Error(), errorDetails(err))
	}
	return GetExitCode(err)
}

// errorDetails exposes the structured parts of a ledger error.
func errorDetails(err error) any {
	var e *ledger.Error
	if !errors.As(err, &e) {
		return nil
	}
	switch {
	case e.Role != "":
		return map[string]any{"required_role": e.Role}
	case e.Entity != "":
		return map[string]any{"entity": e.Entity, "id": e.ID}
	}
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
