package access

// Matrix holds the default permissions of one role. Missing entries deny.
type Matrix map[Resource]map[Action]bool

// RoleMatrices maps each editable role to its Matrix.
type RoleMatrices map[Role]Matrix

// Allows reports the stored value for (resource, action), false when absent.
func (m Matrix) Allows(resource Resource, action Action) bool {
	if m == nil {
		return false
	}
	return m[resource][action]
}

// Clone returns a deep copy of m.
func (m Matrix) Clone() Matrix {
	return Matrix(cloneGrid(m))
}

// Normalize returns a copy restricted to known resources and actions. Resource
// keys left without actions are dropped.
func (m Matrix) Normalize() Matrix {
	return Matrix(normalizeGrid(m))
}

// Grants lists the granted (resource, action) pairs in display order.
func (m Matrix) Grants() []Grant {
	var out []Grant
	for _, r := range resources {
		for _, a := range actions {
			if m.Allows(r, a) {
				out = append(out, Grant{Resource: r, Action: a})
			}
		}
	}
	return out
}

// Grant names one (resource, action) pair.
type Grant struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// For returns the matrix stored for role, nil when the role has none.
func (rm RoleMatrices) For(role Role) Matrix {
	if rm == nil || !role.Editable() {
		return nil
	}
	return rm[role]
}

// Clone returns a deep copy containing editable roles only.
func (rm RoleMatrices) Clone() RoleMatrices {
	out := make(RoleMatrices, len(rm))
	for role, m := range rm {
		if !role.Editable() {
			continue
		}
		out[role] = m.Clone()
	}
	return out
}

// Overrides is the sparse per-user exception set. A present entry replaces
// the role default in both directions; an absent entry inherits it. A resource
// key is never kept with an empty action map.
type Overrides map[Resource]map[Action]bool

// Lookup returns the override for (resource, action) and whether one exists.
func (o Overrides) Lookup(resource Resource, action Action) (allowed bool, ok bool) {
	if o == nil {
		return false, false
	}
	byAction, found := o[resource]
	if !found {
		return false, false
	}
	allowed, ok = byAction[action]
	return allowed, ok
}

// State reports the three-valued override state for (resource, action).
func (o Overrides) State(resource Resource, action Action) OverrideState {
	allowed, ok := o.Lookup(resource, action)
	switch {
	case !ok:
		return Inherited
	case allowed:
		return Granted
	default:
		return Revoked
	}
}

// With returns a copy of o with (resource, action) set to state. Setting
// Inherited removes the entry and prunes the resource key when it empties.
// Unknown resources or actions leave the copy unchanged.
func (o Overrides) With(resource Resource, action Action, state OverrideState) Overrides {
	out := o.Clone()
	if !resource.Valid() || !action.Valid() {
		return out
	}
	switch state {
	case Granted, Revoked:
		if out[resource] == nil {
			out[resource] = make(map[Action]bool, 1)
		}
		out[resource][action] = state == Granted
	default:
		delete(out[resource], action)
		if len(out[resource]) == 0 {
			delete(out, resource)
		}
	}
	return out
}

// Clone returns a deep copy of o. The result is never nil.
func (o Overrides) Clone() Overrides {
	return Overrides(cloneGrid(o))
}

// Normalize returns a copy restricted to known resources and actions.
func (o Overrides) Normalize() Overrides {
	return Overrides(normalizeGrid(o))
}

// Empty reports whether no override is present.
func (o Overrides) Empty() bool {
	for _, byAction := range o {
		if len(byAction) > 0 {
			return false
		}
	}
	return true
}

// Count returns the number of (resource, action) overrides.
func (o Overrides) Count() int {
	n := 0
	for _, byAction := range o {
		n += len(byAction)
	}
	return n
}

// OverrideState is the explicit three-valued form of an override entry.
type OverrideState int

// Override states.
const (
	Inherited OverrideState = iota
	Granted
	Revoked
)

// ParseOverrideState maps a name to a state. Unknown names map to Inherited.
func ParseOverrideState(raw string) OverrideState {
	switch raw {
	case "granted":
		return Granted
	case "revoked":
		return Revoked
	default:
		return Inherited
	}
}

func (s OverrideState) String() string {
	switch s {
	case Granted:
		return "granted"
	case Revoked:
		return "revoked"
	default:
		return "inherited"
	}
}

// MarshalText renders the state name.
func (s OverrideState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name; unknown names decode as Inherited.
func (s *OverrideState) UnmarshalText(text []byte) error {
	*s = ParseOverrideState(string(text))
	return nil
}

// Next advances the console's three-state control:
// inherited -> granted -> revoked -> inherited.
func (s OverrideState) Next() OverrideState {
	switch s {
	case Inherited:
		return Granted
	case Granted:
		return Revoked
	default:
		return Inherited
	}
}

func cloneGrid[M ~map[Resource]map[Action]bool](in M) map[Resource]map[Action]bool {
	out := make(map[Resource]map[Action]bool, len(in))
	for r, byAction := range in {
		if len(byAction) == 0 {
			continue
		}
		copied := make(map[Action]bool, len(byAction))
		for a, v := range byAction {
			copied[a] = v
		}
		out[r] = copied
	}
	return out
}

func normalizeGrid[M ~map[Resource]map[Action]bool](in M) map[Resource]map[Action]bool {
	out := make(map[Resource]map[Action]bool, len(in))
	for r, byAction := range in {
		if !r.Valid() {
			continue
		}
		kept := make(map[Action]bool, len(byAction))
		for a, v := range byAction {
			if a.Valid() {
				kept[a] = v
			}
		}
		if len(kept) > 0 {
			out[r] = kept
		}
	}
	return out
}
