package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/pulseledger/internal/ir"
)

// SealResult is a sealed input ready for "pulse record".
type SealResult struct {
	Submitter string    `json:"submitter"`
	Handle    ir.Digest `json:"handle"`
	Proof     string    `json:"proof"`
}

// NewSealCommand creates the seal command.
func NewSealCommand(rootOpts *RootOptions) *cobra.Command {
	var submitter string
	cmd := &cobra.Command{
		Use:   "seal <latency-ms>",
		Short: "Encrypt a latency with the local engine",
		Long: `Encrypt a latency with the local engine and print the handle and input proof.

The proof binds the handle to the submitting account (--for, default the
acting account); only that account can record it. Requires oracle.secret in
the config or the PULSELEDGER_ORACLE_SECRET environment variable.

Examples:
  pulseledger seal 420 --as 0xpilot
  pulseledger seal 420 --for 0xpilot --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid latency %q", args[0]), err)
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				if s.oracle == nil {
					return NewExitError(ExitCommandError, "no oracle secret configured")
				}
				account := submitter
				if account == "" {
					if account, err = s.caller(); err != nil {
						return err
					}
				}

				handle, proof, err := s.oracle.Seal(value, account)
				if err != nil {
					return WrapExitError(ExitCommandError, "seal failed", err)
				}
				result := SealResult{Submitter: account, Handle: handle, Proof: "0x" + hex.EncodeToString(proof)}
				return s.out.Success(result, func(w io.Writer) {
					fmt.Fprintf(w, "handle: %s\n", handle.Hex())
					fmt.Fprintf(w, "proof:  %s\n", result.Proof)
				})
			})
		},
	}
	cmd.Flags().StringVar(&submitter, "for", "", "submitting account (defaults to the acting account)")
	return cmd
}
