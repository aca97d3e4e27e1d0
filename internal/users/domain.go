package users

import (
	"errors"
	"time"

	"github.com/emporia/console/internal/access"
)

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrLastAdmin blocks changes that would leave no active administrator.
	ErrLastAdmin = errors.New("users: at least one active admin is required")
	// ErrSelfDeactivate blocks an operator from deactivating their own account.
	ErrSelfDeactivate = errors.New("users: cannot deactivate your own account")
	// ErrAdminOnly blocks non-admins from creating, promoting to, or changing
	// ADMIN accounts.
	ErrAdminOnly = errors.New("users: only an admin can manage admin accounts")
	// ErrSelfRoleChange blocks a non-admin from changing their own role.
	ErrSelfRoleChange = errors.New("users: cannot change your own role")
	// ErrInvalidRole indicates an unknown role name.
	ErrInvalidRole = errors.New("users: invalid role")
)

// User represents a console account.
type User struct {
	ID        int64       `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Role      access.Role `json:"role"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ListFilter narrows a user listing.
type ListFilter struct {
	Search string
	Role   access.Role
	Limit  int
	Offset int
}

// CreateInput carries a new account.
type CreateInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=120"`
	Role     string `json:"role" validate:"required,oneof=ADMIN EDITOR AUTHOR SUBSCRIBER"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// NewUser is the repository form of CreateInput.
type NewUser struct {
	Email        string
	Name         string
	Role         access.Role
	PasswordHash string
}
