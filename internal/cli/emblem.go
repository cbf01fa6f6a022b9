package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewEmblemCommand creates the emblem command group.
func NewEmblemCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emblem",
		Short: "Mint and inspect achievement emblems",
	}
	cmd.AddCommand(
		newEmblemMintCommand(rootOpts),
		newEmblemViewCommand(rootOpts),
		newEmblemCollectionCommand(rootOpts),
	)
	return cmd
}

func newEmblemMintCommand(rootOpts *RootOptions) *cobra.Command {
	var cid string
	cmd := &cobra.Command{
		Use:   "mint <pulse-id> <to>",
		Short: "Mint the emblem of an approved pulse (requires CURATOR)",
		Long: `Mint the emblem of an approved pulse to an account.

A pulse earns at most one emblem. Minting fails with NOT_VALIDATED until an
analyst approves the pulse and with ALREADY_MINTED afterwards.

Examples:
  pulseledger emblem mint 1 0xpilot --cid bafy-emblem --as 0xcurator`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pulseID, err := parseID(args[0], "pulse id")
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				caller, err := s.caller()
				if err != nil {
					return err
				}
				token, err := s.ledger.MintEmblemForPulse(cmd.Context(), caller, pulseID, args[1], cid)
				if err != nil {
					return err
				}
				return s.out.Success(map[string]uint64{"token_id": token, "pulse_id": pulseID}, func(w io.Writer) {
					fmt.Fprintf(w, "Minted emblem %d for pulse %d to %s\n", token, pulseID, args[1])
				})
			})
		},
	}
	cmd.Flags().StringVar(&cid, "cid", "", "emblem metadata content id")
	return cmd
}

func newEmblemViewCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "view <token-id>",
		Short:         "Show one emblem",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "token id")
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				e, err := s.ledger.ViewEmblem(cmd.Context(), id)
				if err != nil {
					return err
				}
				return s.out.Success(e, func(w io.Writer) {
					fmt.Fprintf(w, "Emblem %d\n", e.TokenID)
					fmt.Fprintf(w, "  Pulse:  %d\n", e.PulseID)
					fmt.Fprintf(w, "  Owner:  %s\n", e.Owner)
					fmt.Fprintf(w, "  CID:    %s\n", e.EmblemCID)
					fmt.Fprintf(w, "  Minted: %d\n", e.MintedAt)
				})
			})
		},
	}
}

func newEmblemCollectionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "collection",
		Short:         "Show the emblem collection name and symbol",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *session) error {
				c, err := s.ledger.EmblemCollection(cmd.Context())
				if err != nil {
					return err
				}
				return s.out.Success(c, func(w io.Writer) {
					fmt.Fprintf(w, "%s (%s)\n", c.Name, c.Symbol)
				})
			})
		},
	}
}
