// Package access evaluates console permissions from role defaults and
// per-user overrides. Every function in this package is pure: matrices are
// read, never mutated, and any ambiguity resolves to deny.
package access

import "strings"

// Role is the coarse actor classification attached to every console user.
type Role string

// Known roles. RoleUnknown is what ParseRole returns for anything else and is
// treated like RoleSubscriber.
const (
	RoleAdmin      Role = "ADMIN"
	RoleEditor     Role = "EDITOR"
	RoleAuthor     Role = "AUTHOR"
	RoleSubscriber Role = "SUBSCRIBER"
	RoleUnknown    Role = ""
)

// Roles lists the known roles from most to least privileged.
func Roles() []Role {
	return []Role{RoleAdmin, RoleEditor, RoleAuthor, RoleSubscriber}
}

// EditableRoles lists roles whose permission matrix is stored and editable.
func EditableRoles() []Role {
	return []Role{RoleEditor, RoleAuthor}
}

// ParseRole normalises raw role claims. Unrecognised values map to RoleUnknown.
func ParseRole(raw string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleEditor:
		return RoleEditor
	case RoleAuthor:
		return RoleAuthor
	case RoleSubscriber:
		return RoleSubscriber
	default:
		return RoleUnknown
	}
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	return ParseRole(string(r)) != RoleUnknown
}

// Editable reports whether the role carries a stored permission matrix.
func (r Role) Editable() bool {
	return r == RoleEditor || r == RoleAuthor
}

// AdminArea reports whether the role may enter the console at all.
func (r Role) AdminArea() bool {
	return r == RoleAdmin || r.Editable()
}

func (r Role) String() string {
	if r == RoleUnknown {
		return "UNKNOWN"
	}
	return string(r)
}

// Resource is a functional area of the console subject to access control.
type Resource string

// Known resources. ResourceUnknown always denies for non-admin roles.
const (
	ResourceProducts      Resource = "products"
	ResourceOrders        Resource = "orders"
	ResourceQuotes        Resource = "quotes"
	ResourceMedia         Resource = "media"
	ResourceNotifications Resource = "notifications"
	ResourceUsers         Resource = "users"
	ResourceRoles         Resource = "roles"
	ResourceAudit         Resource = "audit"
	ResourceUnknown       Resource = ""
)

var resources = []Resource{
	ResourceProducts,
	ResourceOrders,
	ResourceQuotes,
	ResourceMedia,
	ResourceNotifications,
	ResourceUsers,
	ResourceRoles,
	ResourceAudit,
}

// Resources returns the known resources in display order.
func Resources() []Resource {
	out := make([]Resource, len(resources))
	copy(out, resources)
	return out
}

// ParseResource maps a free-form name to a Resource.
func ParseResource(raw string) Resource {
	candidate := Resource(strings.ToLower(strings.TrimSpace(raw)))
	for _, r := range resources {
		if r == candidate {
			return r
		}
	}
	return ResourceUnknown
}

// Valid reports whether r is a known resource.
func (r Resource) Valid() bool {
	return r != ResourceUnknown && ParseResource(string(r)) == r
}

// Action is the unit of permission granularity.
type Action string

// Known actions.
const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionUnknown Action = ""
)

var actions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}

// Actions returns the known actions in display order.
func Actions() []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

// ParseAction maps a free-form name to an Action.
func ParseAction(raw string) Action {
	candidate := Action(strings.ToLower(strings.TrimSpace(raw)))
	for _, a := range actions {
		if a == candidate {
			return a
		}
	}
	return ActionUnknown
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a != ActionUnknown && ParseAction(string(a)) == a
}
