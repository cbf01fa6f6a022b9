package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/pulseledger/internal/ir"
)

// RoleResult describes a role membership or administration change.
type RoleResult struct {
	Role      ir.Role  `json:"role"`
	Account   string   `json:"account,omitempty"`
	AdminRole ir.Role  `json:"admin_role,omitempty"`
	Has       *bool    `json:"has,omitempty"`
	Members   []string `json:"members,omitempty"`
}

// NewRoleCommand creates the role command group.
func NewRoleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage role membership and role administration",
	}
	cmd.AddCommand(
		newRoleMutation(rootOpts, "grant", "Grant role to account (requires the role's admin role)"),
		newRoleMutation(rootOpts, "revoke", "Revoke role from account (requires the role's admin role)"),
		newRoleRenounceCommand(rootOpts),
		newRoleHasCommand(rootOpts),
		newRoleAdminCommand(rootOpts),
		newRoleSetAdminCommand(rootOpts),
		newRoleMembersCommand(rootOpts),
	)
	return cmd
}

func newRoleMutation(rootOpts *RootOptions, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:           verb + " <role> <account>",
		Short:         short,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(args[0])
			if err != nil {
				return err
			}
			account := args[1]
			return withSession(cmd, rootOpts, func(s *session) error {
				caller, err := s.caller()
				if err != nil {
					return err
				}
				if verb == "grant" {
					err = s.ledger.GrantRole(cmd.Context(), caller, role, account)
				} else {
					err = s.ledger.RevokeRole(cmd.Context(), caller, role, account)
				}
				if err != nil {
					return err
				}
				return s.out.Success(RoleResult{Role: role, Account: account}, func(w io.Writer) {
					if verb == "grant" {
						fmt.Fprintf(w, "Granted %s to %s\n", role, account)
					} else {
						fmt.Fprintf(w, "Revoked %s from %s\n", role, account)
					}
				})
			})
		},
	}
}

func newRoleRenounceCommand(rootOpts *RootOptions) *cobra.Command {
	var confirmation string
	cmd := &cobra.Command{
		Use:   "renounce <role>",
		Short: "Give up a role held by the acting account",
		Long: `Give up a role held by the acting account.

--confirm must repeat the acting account.

Examples:
  pulseledger role renounce ANALYST --as 0xanalyst --confirm 0xanalyst`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				caller, err := s.caller()
				if err != nil {
					return err
				}
				if err := s.ledger.RenounceRole(cmd.Context(), caller, role, confirmation); err != nil {
					return err
				}
				return s.out.Success(RoleResult{Role: role, Account: caller}, func(w io.Writer) {
					fmt.Fprintf(w, "%s renounced %s\n", caller, role)
				})
			})
		},
	}
	cmd.Flags().StringVar(&confirmation, "confirm", "", "acting account, repeated as confirmation (required)")
	_ = cmd.MarkFlagRequired("confirm")
	return cmd
}

func newRoleHasCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "has <role> <account>",
		Short:         "Report whether account holds role",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				has, err := s.ledger.HasRole(cmd.Context(), role, args[1])
				if err != nil {
					return err
				}
				return s.out.Success(RoleResult{Role: role, Account: args[1], Has: &has}, func(w io.Writer) {
					fmt.Fprintln(w, has)
				})
			})
		},
	}
}

func newRoleAdminCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "admin <role>",
		Short:         "Show the role that administers role",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				admin, err := s.ledger.RoleAdmin(cmd.Context(), role)
				if err != nil {
					return err
				}
				return s.out.Success(RoleResult{Role: role, AdminRole: admin}, func(w io.Writer) {
					fmt.Fprintln(w, admin)
				})
			})
		},
	}
}

func newRoleSetAdminCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set-admin <role> <admin-role>",
		Short:         "Change the role that administers role (requires its current admin role)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(args[0])
			if err != nil {
				return err
			}
			adminRole, err := parseRole(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				caller, err := s.caller()
				if err != nil {
					return err
				}
				if err := s.ledger.SetRoleAdmin(cmd.Context(), caller, role, adminRole); err != nil {
					return err
				}
				return s.out.Success(RoleResult{Role: role, AdminRole: adminRole}, func(w io.Writer) {
					fmt.Fprintf(w, "%s is now administered by %s\n", role, adminRole)
				})
			})
		},
	}
}

func newRoleMembersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "members <role>",
		Short:         "List the accounts holding role",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				members, err := s.ledger.RoleMembers(cmd.Context(), role)
				if err != nil {
					return err
				}
				if members == nil {
					members = []string{}
				}
				return s.out.Success(RoleResult{Role: role, Members: members}, func(w io.Writer) {
					for _, m := range members {
						fmt.Fprintln(w, m)
					}
				})
			})
		},
	}
}
