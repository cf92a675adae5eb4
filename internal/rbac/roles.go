package rbac

import (
	"context"
	"errors"

	"trunk-connector/internal/auth"
)

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner           = "owner"
	RoleViewer          = "viewer"
	RoleSuperAdmin      = "super_admin"
	RoleNetworkOperator = "network_operator" // hidden role
)

var ErrCrossAccount = errors.New("rbac: caller may not act on another account")

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleNetworkOperator }

// AuthorizeAccount checks that the caller in ctx may provision resources for accountID.
// super_admin may act on any account; everyone else only on their own.
func AuthorizeAccount(ctx context.Context, accountID string) error {
	role, err := auth.Role(ctx)
	if err != nil {
		return err
	}
	if IsSuperAdmin(role) {
		return nil
	}
	own, err := auth.AccountID(ctx)
	if err != nil {
		return err
	}
	if own != accountID {
		return ErrCrossAccount
	}
	return nil
}

// AuthorizeRead is AuthorizeAccount for read-only access. The hidden operator role
// (used by the voice runtime) may read any account.
func AuthorizeRead(ctx context.Context, accountID string) error {
	role, err := auth.Role(ctx)
	if err != nil {
		return err
	}
	if IsHiddenRole(role) {
		return nil
	}
	return AuthorizeAccount(ctx, accountID)
}
