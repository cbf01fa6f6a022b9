package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/pulseledger/internal/ir"
)

// InitResult is the data payload of the init command.
type InitResult struct {
	Admin      string        `json:"admin"`
	Database   string        `json:"database"`
	ProtocolID uint64        `json:"confidential_protocol_id"`
	Collection ir.Collection `json:"collection"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init [admin]",
		Short: "Create the ledger and grant every built-in role to admin",
		Long: `Create the ledger database and run genesis.

The admin account (argument, --as, or the config admin) receives ADMIN,
CURATOR and ANALYST. The confidential protocol id and emblem collection
come from the config and are fixed from then on.

Examples:
  pulseledger init 0xadmin --db ./ledger.db
  pulseledger init --config ./pulseledger.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *session) error {
				admin := ""
				if len(args) == 1 {
					admin = args[0]
				} else {
					var err error
					if admin, err = s.caller(); err != nil {
						return err
					}
				}

				if err := s.ledger.Initialize(cmd.Context(), admin); err != nil {
					return err
				}

				result := InitResult{
					Admin:      admin,
					Database:   s.cfg.Database,
					ProtocolID: s.cfg.ConfidentialProtocolID,
					Collection: s.cfg.Collection(),
				}
				return s.out.Success(result, func(w io.Writer) {
					fmt.Fprintf(w, "Initialized %s (admin %s, protocol %d, emblem %s/%s)\n",
						result.Database, admin, result.ProtocolID, result.Collection.Name, result.Collection.Symbol)
				})
			})
		},
	}
}
