package rbac

import (
	"context"

	"github.com/emporia/console/internal/access"
)

// Store persists role matrices and user overrides. Reads return values the
// caller may keep; implementations never hand out shared maps.
type Store interface {
	RolePermissions(ctx context.Context) (access.RoleMatrices, error)
	UserOverrides(ctx context.Context, userID int64) (access.Overrides, error)
	SetRolePermissions(ctx context.Context, role access.Role, matrix access.Matrix) error
	SetUserOverrides(ctx context.Context, userID int64, overrides access.Overrides) error
	ClearUserOverrides(ctx context.Context, userID int64) error
	// UpdateUserOverrides replaces the overrides of userID with what fn
	// derives from the current ones. Concurrent updates of the same user are
	// serialised; an error from fn aborts the write.
	UpdateUserOverrides(ctx context.Context, userID int64, fn func(current access.Overrides) (access.Overrides, error)) error
}
