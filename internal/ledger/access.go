package ledger

import (
	"context"

	"github.com/roach88/pulseledger/internal/ir"
)

// GrantRole gives role to account. The caller must hold role's admin role.
// Granting a role the account already holds succeeds without an event.
func (l *Ledger) GrantRole(ctx context.Context, caller string, role ir.Role, account string) error {
	if err := checkRoleArgs(role, account); err != nil {
		return err
	}
	return l.mutate(ctx, "grant_role", caller, func(o *op) error {
		if err := o.requireRoleAdmin(role); err != nil {
			return err
		}
		return o.grant(role, account)
	})
}

// RevokeRole removes role from account. The caller must hold role's admin
// role. Revoking a role the account does not hold succeeds without an event.
func (l *Ledger) RevokeRole(ctx context.Context, caller string, role ir.Role, account string) error {
	if err := checkRoleArgs(role, account); err != nil {
		return err
	}
	return l.mutate(ctx, "revoke_role", caller, func(o *op) error {
		if err := o.requireRoleAdmin(role); err != nil {
			return err
		}
		return o.revoke(role, account)
	})
}

// RenounceRole removes role from the caller. confirmation must equal the
// caller's own account.
func (l *Ledger) RenounceRole(ctx context.Context, caller string, role ir.Role, confirmation string) error {
	if err := checkRoleArgs(role, caller); err != nil {
		return err
	}
	return l.mutate(ctx, "renounce_role", caller, func(o *op) error {
		if confirmation != caller {
			return newError(CodeBadConfirmation, "confirmation %q does not match caller", confirmation)
		}
		return o.revoke(role, caller)
	})
}

// SetRoleAdmin makes adminRole the admin of role. The caller must hold
// role's current admin role.
func (l *Ledger) SetRoleAdmin(ctx context.Context, caller string, role, adminRole ir.Role) error {
	if role == "" || adminRole == "" {
		return invalidArgument("role and admin role are required")
	}
	return l.mutate(ctx, "set_role_admin", caller, func(o *op) error {
		previous, err := o.tx.RoleAdmin(ctx, role)
		if err != nil {
			return err
		}
		if err := o.requireRole(previous); err != nil {
			return err
		}
		if err := o.tx.SetRoleAdmin(ctx, role, adminRole); err != nil {
			return err
		}
		return o.emit(ir.EventRoleAdminChanged, eventRef{}, ir.Object{
			"role":                ir.String(role),
			"previous_admin_role": ir.String(previous),
			"new_admin_role":      ir.String(adminRole),
		})
	})
}

// HasRole reports whether account holds role.
func (l *Ledger) HasRole(ctx context.Context, role ir.Role, account string) (bool, error) {
	return l.store.HasRole(ctx, role, account)
}

// RoleAdmin returns the admin role of role.
func (l *Ledger) RoleAdmin(ctx context.Context, role ir.Role) (ir.Role, error) {
	return l.store.RoleAdmin(ctx, role)
}

// RoleMembers lists the accounts holding role.
func (l *Ledger) RoleMembers(ctx context.Context, role ir.Role) ([]string, error) {
	return l.store.RoleMembers(ctx, role)
}

func checkRoleArgs(role ir.Role, account string) error {
	if role == "" {
		return invalidArgument("role is required")
	}
	if account == "" {
		return invalidArgument("account is required")
	}
	return nil
}

func (o *op) requireRoleAdmin(role ir.Role) error {
	admin, err := o.tx.RoleAdmin(o.ctx, role)
	if err != nil {
		return err
	}
	return o.requireRole(admin)
}

func (o *op) grant(role ir.Role, account string) error {
	added, err := o.tx.AddRoleMember(o.ctx, role, account)
	if err != nil || !added {
		return err
	}
	return o.emit(ir.EventRoleGranted, eventRef{account: account}, ir.Object{
		"role":    ir.String(role),
		"account": ir.String(account),
		"sender":  ir.String(o.actor),
	})
}

func (o *op) revoke(role ir.Role, account string) error {
	removed, err := o.tx.RemoveRoleMember(o.ctx, role, account)
	if err != nil || !removed {
		return err
	}
	return o.emit(ir.EventRoleRevoked, eventRef{account: account}, ir.Object{
		"role":    ir.String(role),
		"account": ir.String(account),
		"sender":  ir.String(o.actor),
	})
}
