package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/ledger"
	"github.com/roach88/pulseledger/internal/store"
)

// NewProgramCommand creates the program command group.
func NewProgramCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "program",
		Short: "Schedule and inspect measurement programs",
	}
	cmd.AddCommand(
		newProgramScheduleCommand(rootOpts),
		newProgramViewCommand(rootOpts),
		newProgramCountCommand(rootOpts),
		newProgramListCommand(rootOpts),
	)
	return cmd
}

func newProgramScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		manifest    string
		windowStart uint64
		windowEnd   uint64
		rules       string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a program (requires CURATOR)",
		Long: `Schedule a program owned by the acting account.

--rules takes a 0x-prefixed 32-byte hex digest or any text, which is hashed
with Keccak-256. A zero --end leaves the window open.

Examples:
  pulseledger program schedule --manifest bafy-manifest --start 1700000000 --end 1700086400 --as 0xcurator
  pulseledger program schedule --manifest bafy-manifest --rules rules-v2.json --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			digest, err := parseDigest(rules, "rules digest")
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				caller, err := s.caller()
				if err != nil {
					return err
				}
				id, err := s.ledger.ScheduleProgram(cmd.Context(), caller, ledger.ProgramParams{
					ManifestCID: manifest,
					WindowStart: windowStart,
					WindowEnd:   windowEnd,
					RulesDigest: digest,
				})
				if err != nil {
					return err
				}
				return s.out.Success(map[string]uint64{"program_id": id}, func(w io.Writer) {
					fmt.Fprintf(w, "Scheduled program %d\n", id)
				})
			})
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "manifest content id")
	cmd.Flags().Uint64Var(&windowStart, "start", 0, "window start (unix seconds)")
	cmd.Flags().Uint64Var(&windowEnd, "end", 0, "window end (unix seconds, 0 = open)")
	cmd.Flags().StringVar(&rules, "rules", "", "rules digest (0x hex or text to hash)")
	return cmd
}

func newProgramViewCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "view <program-id>",
		Short:         "Show one program",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "program id")
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				p, err := s.ledger.ViewProgram(cmd.Context(), id)
				if err != nil {
					return err
				}
				return s.out.Success(p, func(w io.Writer) { writeProgram(w, p) })
			})
		},
	}
}

func newProgramCountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "count",
		Short:         "Print the number of scheduled programs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *session) error {
				n, err := s.ledger.ProgramCount(cmd.Context())
				if err != nil {
					return err
				}
				return s.out.Success(map[string]uint64{"count": n}, func(w io.Writer) { fmt.Fprintln(w, n) })
			})
		},
	}
}

func newProgramListCommand(rootOpts *RootOptions) *cobra.Command {
	var filter store.ProgramFilter
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List programs in id order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *session) error {
				programs, err := s.ledger.ListPrograms(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if programs == nil {
					programs = []ir.Program{}
				}
				return s.out.Success(programs, func(w io.Writer) {
					if len(programs) == 0 {
						fmt.Fprintln(w, "No programs found.")
						return
					}
					for _, p := range programs {
						fmt.Fprintf(w, "%-6d %-24s %s\n", p.ID, p.Curator, p.ManifestCID)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&filter.Curator, "curator", "", "only programs scheduled by this account")
	cmd.Flags().Uint64Var(&filter.AfterID, "after", 0, "only programs with a greater id")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of programs (0 = all)")
	return cmd
}

func writeProgram(w io.Writer, p ir.Program) {
	end := "open"
	if p.WindowEnd != 0 {
		end = fmt.Sprint(p.WindowEnd)
	}
	fmt.Fprintf(w, "Program %d\n", p.ID)
	fmt.Fprintf(w, "  Curator:  %s\n", p.Curator)
	fmt.Fprintf(w, "  Manifest: %s\n", p.ManifestCID)
	fmt.Fprintf(w, "  Window:   %d .. %s\n", p.WindowStart, end)
	fmt.Fprintf(w, "  Rules:    %s\n", p.RulesDigest.Hex())
	fmt.Fprintf(w, "  Created:  %d\n", p.CreatedAt)
}
