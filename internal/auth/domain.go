package auth

import (
	"time"

	"github.com/emporia/console/internal/access"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	Role         access.Role
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
