package roles

import (
	"errors"

	"github.com/emporia/console/internal/access"
)

// ErrUnknownRole indicates a role name outside the fixed set.
var ErrUnknownRole = errors.New("roles: unknown role")

// Role describes one console role and, for editable roles, its matrix.
type Role struct {
	Name        access.Role    `json:"name"`
	Description string         `json:"description"`
	Editable    bool           `json:"editable"`
	Grants      []access.Grant `json:"grants"`
}

// Detail is a role together with its full permission grid.
type Detail struct {
	Role
	Matrix access.Matrix `json:"matrix,omitempty"`
	Cells  []access.Cell `json:"cells"`
}

var descriptions = map[access.Role]string{
	access.RoleAdmin:      "Full access to every console area. Not configurable.",
	access.RoleEditor:     "Manages catalogue, quotes and media. Configurable.",
	access.RoleAuthor:     "Contributes content and media. Configurable.",
	access.RoleSubscriber: "Storefront customer without console access. Not configurable.",
}
