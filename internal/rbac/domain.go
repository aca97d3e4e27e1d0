// Package rbac loads role matrices and per-user overrides, builds a permission
// resolver per request and enforces it on HTTP routes.
package rbac

import (
	"context"
	"errors"

	"github.com/emporia/console/internal/access"
)

var (
	// ErrNotFound indicates that the requested principal does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrRoleNotEditable is returned when writing a matrix for ADMIN or SUBSCRIBER.
	ErrRoleNotEditable = errors.New("rbac: role has no editable matrix")
	// ErrOverrideNotApplicable is returned when writing overrides for a user
	// whose role ignores them.
	ErrOverrideNotApplicable = errors.New("rbac: overrides do not apply to this role")
	// ErrUnknownPermission is returned for an unrecognised resource or action.
	ErrUnknownPermission = errors.New("rbac: unknown resource or action")
	// ErrSelfChange is returned when a non-admin edits their own overrides or
	// the matrix of their own role.
	ErrSelfChange = errors.New("rbac: cannot change own permissions")
	// ErrBeyondActor is returned when a non-admin would hand out a permission
	// they do not hold themselves.
	ErrBeyondActor = errors.New("rbac: cannot grant a permission the actor does not hold")
)

// Principal describes the authenticated actor.
type Principal struct {
	UserID int64
	Role   access.Role
}

// System is the actor of operator commands run outside a session.
var System = Principal{Role: access.RoleAdmin}

// IsAdmin reports whether p bypasses permission checks.
func (p Principal) IsAdmin() bool {
	return p.Role == access.RoleAdmin
}

// PrincipalSource resolves the signed-in user to a Principal. Inactive or
// missing users return ErrNotFound.
type PrincipalSource interface {
	Principal(ctx context.Context, userID int64) (Principal, error)
}

// UserPermissions is the administrative view of one user's access.
type UserPermissions struct {
	UserID    int64         `json:"user_id"`
	Role      access.Role   `json:"role"`
	Editable  bool          `json:"editable"`
	Overrides int           `json:"override_count"`
	Cells     []access.Cell `json:"cells"`
	Nav       []string      `json:"nav"`
}
