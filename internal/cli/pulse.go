package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/ledger"
	"github.com/roach88/pulseledger/internal/store"
)

// NewPulseCommand creates the pulse command group.
func NewPulseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pulse",
		Short: "Record, audit and disclose pulses",
	}
	cmd.AddCommand(
		newPulseRecordCommand(rootOpts),
		newPulseAuditCommand(rootOpts),
		newPulseExposeCommand(rootOpts),
		newPulseDelegateCommand(rootOpts),
		newPulseViewCommand(rootOpts),
		newPulseSealedCommand(rootOpts),
		newPulseCountCommand(rootOpts),
		newPulseListCommand(rootOpts),
		newPulseGrantsCommand(rootOpts),
		newPulseDecryptCommand(rootOpts),
	)
	return cmd
}

type recordFlags struct {
	payload  string
	artifact string
	latency  uint64
	mode     uint8
	exposure string
	program  uint64
	device   string
	rounds   uint64
	handle   string
	proof    string
}

func (f recordFlags) params() (ledger.RecordParams, error) {
	exposure, err := ir.ParseExposure(f.exposure)
	if err != nil {
		return ledger.RecordParams{}, WrapExitError(ExitCommandError, "invalid --exposure", err)
	}
	payload, err := parseDigest(f.payload, "payload hash")
	if err != nil {
		return ledger.RecordParams{}, err
	}
	device, err := parseDigest(f.device, "device fingerprint")
	if err != nil {
		return ledger.RecordParams{}, err
	}

	p := ledger.RecordParams{
		PayloadHash:       payload,
		ArtifactCID:       f.artifact,
		LatencyMs:         f.latency,
		ProtocolMode:      f.mode,
		Exposure:          exposure,
		ProgramID:         f.program,
		DeviceFingerprint: device,
		Rounds:            f.rounds,
	}

	if f.handle != "" || f.proof != "" {
		handle, err := ir.ParseDigest(f.handle)
		if err != nil {
			return ledger.RecordParams{}, WrapExitError(ExitCommandError, "invalid --handle", err)
		}
		proof, err := hex.DecodeString(strings.TrimPrefix(f.proof, "0x"))
		if err != nil {
			return ledger.RecordParams{}, WrapExitError(ExitCommandError, "invalid --proof", err)
		}
		p.Sealed = &ledger.SealedInput{Handle: handle, Proof: proof}
	}
	return p, nil
}

func newPulseRecordCommand(rootOpts *RootOptions) *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a pulse as the acting account",
		Long: `Record a pulse. Any account may record; the acting account becomes the pilot.

Exposure levels:
  revealed   --latency is required and public
  encrypted  --latency must be omitted; --handle and --proof carry the sealed value
  shielded   no latency and no ciphertext

--payload and --device take 0x-prefixed 32-byte hex or any text, which is
hashed with Keccak-256. Use "pulseledger seal" to produce a handle and proof
with the local engine.

Examples:
  pulseledger pulse record --exposure revealed --latency 250 --rounds 5 --payload run-42 --as 0xpilot
  pulseledger pulse record --exposure encrypted --handle 0x... --proof 0x... --as 0xpilot`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := f.params()
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				caller, err := s.caller()
				if err != nil {
					return err
				}
				id, err := s.ledger.RecordPulse(cmd.Context(), caller, params)
				if err != nil {
					return err
				}
				return s.out.Success(map[string]uint64{"pulse_id": id}, func(w io.Writer) {
					fmt.Fprintf(w, "Recorded pulse %d (%s)\n", id, params.Exposure)
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.payload, "payload", "", "payload hash (0x hex or text to hash)")
	cmd.Flags().StringVar(&f.artifact, "artifact", "", "artifact content id")
	cmd.Flags().Uint64Var(&f.latency, "latency", 0, "latency in milliseconds (revealed only)")
	cmd.Flags().Uint8Var(&f.mode, "mode", 0, "protocol mode")
	cmd.Flags().StringVar(&f.exposure, "exposure", "revealed", "exposure level (revealed|encrypted|shielded)")
	cmd.Flags().Uint64Var(&f.program, "program", 0, "program id (0 = unassigned)")
	cmd.Flags().StringVar(&f.device, "device", "", "device fingerprint (0x hex or text to hash)")
	cmd.Flags().Uint64Var(&f.rounds, "rounds", 0, "number of rounds")
	cmd.Flags().StringVar(&f.handle, "handle", "", "sealed value handle (0x hex)")
	cmd.Flags().StringVar(&f.proof, "proof", "", "input proof for --handle (hex)")
	return cmd
}

func newPulseAuditCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		approved bool
		cid      string
	)
	cmd := &cobra.Command{
		Use:   "audit <pulse-id>",
		Short: "Record an analyst verdict (requires ANALYST)",
		Long: `Record an analyst verdict. The latest verdict wins.

Examples:
  pulseledger pulse audit 1 --approve --cid bafy-report --as 0xanalyst
  pulseledger pulse audit 1 --approve=false --as 0xanalyst`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "pulse id")
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				caller, err := s.caller()
				if err != nil {
					return err
				}
				if err := s.ledger.AuditPulse(cmd.Context(), caller, id, approved, cid); err != nil {
					return err
				}
				data := map[string]any{"pulse_id": id, "approved": approved}
				return s.out.Success(data, func(w io.Writer) {
					verdict := "rejected"
					if approved {
						verdict = "approved"
					}
					fmt.Fprintf(w, "Pulse %d %s\n", id, verdict)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&approved, "approve", false, "approve the pulse")
	cmd.Flags().StringVar(&cid, "cid", "", "verification report content id")
	return cmd
}

func newPulseExposeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		latency uint64
		cid     string
	)
	cmd := &cobra.Command{
		Use:           "expose <pulse-id>",
		Short:         "Publish the plaintext latency of a non-revealed pulse (requires CURATOR)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "pulse id")
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				caller, err := s.caller()
				if err != nil {
					return err
				}
				if err := s.ledger.ExposePulse(cmd.Context(), caller, id, latency, cid); err != nil {
					return err
				}
				data := map[string]any{"pulse_id": id, "latency_ms": latency, "clear_cid": cid}
				return s.out.Success(data, func(w io.Writer) {
					fmt.Fprintf(w, "Pulse %d exposed: %d ms\n", id, latency)
				})
			})
		},
	}
	cmd.Flags().Uint64Var(&latency, "latency", 0, "plaintext latency in milliseconds (required)")
	cmd.Flags().StringVar(&cid, "cid", "", "clear artifact content id")
	_ = cmd.MarkFlagRequired("latency")
	return cmd
}

func newPulseDelegateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delegate <pulse-id> <account>",
		Short:         "Allow account to decrypt a pulse's sealed value (requires CURATOR)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "pulse id")
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				caller, err := s.caller()
				if err != nil {
					return err
				}
				if err := s.ledger.DelegateDecrypt(cmd.Context(), caller, id, args[1]); err != nil {
					return err
				}
				return s.out.Success(map[string]any{"pulse_id": id, "to": args[1]}, func(w io.Writer) {
					fmt.Fprintf(w, "Delegated pulse %d to %s\n", id, args[1])
				})
			})
		},
	}
}

func newPulseViewCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "view <pulse-id>",
		Short:         "Show one pulse",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "pulse id")
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				p, err := s.ledger.ViewPulse(cmd.Context(), id)
				if err != nil {
					return err
				}
				return s.out.Success(p, func(w io.Writer) { writePulse(w, p) })
			})
		},
	}
}

func newPulseSealedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sealed <pulse-id>",
		Short:         "Print the sealed value handle of a pulse (zero when none)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "pulse id")
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				handle, err := s.ledger.SealedPulseValue(cmd.Context(), id)
				if err != nil {
					return err
				}
				return s.out.Success(map[string]any{"pulse_id": id, "handle": handle}, func(w io.Writer) {
					fmt.Fprintln(w, handle.Hex())
				})
			})
		},
	}
}

func newPulseCountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "count",
		Short:         "Print the number of recorded pulses",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *session) error {
				n, err := s.ledger.PulseCount(cmd.Context())
				if err != nil {
					return err
				}
				return s.out.Success(map[string]uint64{"count": n}, func(w io.Writer) { fmt.Fprintln(w, n) })
			})
		},
	}
}

func newPulseListCommand(rootOpts *RootOptions) *cobra.Command {
	var filter store.PulseFilter
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List pulses in id order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *session) error {
				pulses, err := s.ledger.ListPulses(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if pulses == nil {
					pulses = []ir.Pulse{}
				}
				return s.out.Success(pulses, func(w io.Writer) {
					if len(pulses) == 0 {
						fmt.Fprintln(w, "No pulses found.")
						return
					}
					for _, p := range pulses {
						fmt.Fprintf(w, "%-6d %-24s %-10s %s\n", p.ID, p.Pilot, p.Exposure, latencyText(p))
					}
				})
			})
		},
	}
	cmd.Flags().Uint64Var(&filter.ProgramID, "program", 0, "only pulses of this program")
	cmd.Flags().StringVar(&filter.Pilot, "pilot", "", "only pulses recorded by this account")
	cmd.Flags().Uint64Var(&filter.AfterID, "after", 0, "only pulses with a greater id")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of pulses (0 = all)")
	return cmd
}

func newPulseGrantsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "grants <pulse-id>",
		Short:         "List accounts delegated to decrypt a pulse",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "pulse id")
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				grantees, err := s.ledger.DecryptionGrants(cmd.Context(), id)
				if err != nil {
					return err
				}
				if grantees == nil {
					grantees = []string{}
				}
				return s.out.Success(map[string]any{"pulse_id": id, "grantees": grantees}, func(w io.Writer) {
					for _, g := range grantees {
						fmt.Fprintln(w, g)
					}
				})
			})
		},
	}
}

func newPulseDecryptCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <pulse-id>",
		Short: "Disclose a sealed latency to its pilot or a delegated grantee",
		Long: `Disclose a sealed latency through the configured engine.

Only the pilot and accounts delegated with "pulse delegate" may decrypt.
The result is returned to the caller and never written to the ledger.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "pulse id")
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				caller, err := s.caller()
				if err != nil {
					return err
				}
				latency, err := s.ledger.Decrypt(cmd.Context(), caller, id)
				if err != nil {
					return err
				}
				return s.out.Success(map[string]uint64{"pulse_id": id, "latency_ms": latency}, func(w io.Writer) {
					fmt.Fprintln(w, latency)
				})
			})
		},
	}
}

func latencyText(p ir.Pulse) string {
	switch {
	case p.HasLatency():
		return fmt.Sprintf("%d ms", p.LatencyMs)
	case p.HasSealedValue():
		return "sealed"
	default:
		return "-"
	}
}

func writePulse(w io.Writer, p ir.Pulse) {
	fmt.Fprintf(w, "Pulse %d\n", p.ID)
	fmt.Fprintf(w, "  Pilot:     %s\n", p.Pilot)
	fmt.Fprintf(w, "  Exposure:  %s\n", p.Exposure)
	fmt.Fprintf(w, "  Latency:   %s\n", latencyText(p))
	if p.ProgramID != 0 {
		fmt.Fprintf(w, "  Program:   %d\n", p.ProgramID)
	}
	fmt.Fprintf(w, "  Payload:   %s\n", p.PayloadHash.Hex())
	fmt.Fprintf(w, "  Artifact:  %s\n", p.ArtifactCID)
	fmt.Fprintf(w, "  Mode:      %d\n", p.ProtocolMode)
	fmt.Fprintf(w, "  Rounds:    %d\n", p.Rounds)
	fmt.Fprintf(w, "  Validated: %v\n", p.Validated)
	if p.EmblemTokenID != 0 {
		fmt.Fprintf(w, "  Emblem:    %d\n", p.EmblemTokenID)
	}
	if p.ClearCID != "" {
		fmt.Fprintf(w, "  Clear CID: %s\n", p.ClearCID)
	}
	fmt.Fprintf(w, "  Submitted: %d\n", p.SubmittedAt)
}
