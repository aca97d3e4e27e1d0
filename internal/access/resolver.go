package access

// Can decides whether role may perform action on resource.
//
// ADMIN is always allowed and SUBSCRIBER (or any unknown role) is always
// denied; overrides never apply to either. For EDITOR and AUTHOR a present
// override wins over the role default, otherwise the default from matrices is
// used. Unknown resources or actions deny.
func Can(role Role, resource Resource, action Action, matrices RoleMatrices, overrides Overrides) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor, RoleAuthor:
	default:
		return false
	}
	if !resource.Valid() || !action.Valid() {
		return false
	}
	if allowed, ok := overrides.Lookup(resource, action); ok {
		return allowed
	}
	return matrices.For(role).Allows(resource, action)
}

// CanString is Can for untyped input such as route parameters or claims.
func CanString(role, resource, action string, matrices RoleMatrices, overrides Overrides) bool {
	return Can(ParseRole(role), ParseResource(resource), ParseAction(action), matrices, overrides)
}

// ToggleOverride flips one override entry and returns a new Overrides value;
// the input is never modified. A present entry is removed (back to inheriting
// the role default). An absent entry is set to the negation of roleDefault so
// the effective permission changes on the very next check.
func ToggleOverride(overrides Overrides, resource Resource, action Action, roleDefault bool) Overrides {
	if _, ok := overrides.Lookup(resource, action); ok {
		return overrides.With(resource, action, Inherited)
	}
	if roleDefault {
		return overrides.With(resource, action, Revoked)
	}
	return overrides.With(resource, action, Granted)
}

// Resolver binds one principal's role, the role matrices and the principal's
// overrides. Build one per request; the zero value denies everything.
type Resolver struct {
	role      Role
	matrices  RoleMatrices
	overrides Overrides
}

// NewResolver constructs a Resolver. Overrides are ignored for roles other
// than EDITOR and AUTHOR.
func NewResolver(role Role, matrices RoleMatrices, overrides Overrides) Resolver {
	if !role.Editable() {
		overrides = nil
	}
	return Resolver{role: role, matrices: matrices, overrides: overrides}
}

// Role returns the bound role.
func (r Resolver) Role() Role {
	return r.role
}

// Overrides returns a copy of the bound overrides.
func (r Resolver) Overrides() Overrides {
	return r.overrides.Clone()
}

// Can reports whether the bound principal may perform action on resource.
func (r Resolver) Can(resource Resource, action Action) bool {
	return Can(r.role, resource, action, r.matrices, r.overrides)
}

// VisibleNavItems returns the hrefs the bound principal may open.
func (r Resolver) VisibleNavItems() []string {
	return VisibleNavItems(r.role, r.matrices, r.overrides)
}

// Navigation returns the navigation items the bound principal may open.
func (r Resolver) Navigation() []NavItem {
	return VisibleNavigation(r.role, r.matrices, r.overrides)
}

// Grid returns the effective permission cells for the bound principal.
func (r Resolver) Grid() []Cell {
	return Grid(r.role, r.matrices, r.overrides)
}

// Cell describes one (resource, action) entry of a user's effective
// permissions together with where the value came from.
type Cell struct {
	Resource  Resource      `json:"resource"`
	Action    Action        `json:"action"`
	Default   bool          `json:"default"`
	State     OverrideState `json:"state"`
	Effective bool          `json:"effective"`
}

// Grid lists every known (resource, action) pair in display order.
func Grid(role Role, matrices RoleMatrices, overrides Overrides) []Cell {
	if !role.Editable() {
		overrides = nil
	}
	cells := make([]Cell, 0, len(resources)*len(actions))
	for _, res := range resources {
		for _, act := range actions {
			def := role == RoleAdmin || matrices.For(role).Allows(res, act)
			cells = append(cells, Cell{
				Resource:  res,
				Action:    act,
				Default:   def,
				State:     overrides.State(res, act),
				Effective: Can(role, res, act, matrices, overrides),
			})
		}
	}
	return cells
}
