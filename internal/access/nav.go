package access

// NavItem is one console navigation destination. An empty Resource means the
// destination is open to every console role.
type NavItem struct {
	Href     string
	Label    string
	Resource Resource
}

var navigation = []NavItem{
	{Href: "/", Label: "Dashboard"},
	{Href: "/products", Label: "Products", Resource: ResourceProducts},
	{Href: "/orders", Label: "Orders", Resource: ResourceOrders},
	{Href: "/quotes", Label: "Quotes", Resource: ResourceQuotes},
	{Href: "/media", Label: "Media", Resource: ResourceMedia},
	{Href: "/notifications", Label: "Notifications", Resource: ResourceNotifications},
	{Href: "/users", Label: "Users", Resource: ResourceUsers},
	{Href: "/roles", Label: "Roles", Resource: ResourceRoles},
	{Href: "/audit", Label: "Audit Log", Resource: ResourceAudit},
}

// Navigation returns every destination in declared order.
func Navigation() []NavItem {
	out := make([]NavItem, len(navigation))
	copy(out, navigation)
	return out
}

// VisibleNavItems returns the hrefs role may view, in declared order
// regardless of how the matrices were stored. Roles without console access get
// an empty list.
func VisibleNavItems(role Role, matrices RoleMatrices, overrides Overrides) []string {
	items := VisibleNavigation(role, matrices, overrides)
	hrefs := make([]string, 0, len(items))
	for _, item := range items {
		hrefs = append(hrefs, item.Href)
	}
	return hrefs
}

// VisibleNavigation is VisibleNavItems returning the full items.
func VisibleNavigation(role Role, matrices RoleMatrices, overrides Overrides) []NavItem {
	if !role.AdminArea() {
		return []NavItem{}
	}
	if !role.Editable() {
		overrides = nil
	}
	out := make([]NavItem, 0, len(navigation))
	for _, item := range navigation {
		if item.Resource == ResourceUnknown || Can(role, item.Resource, ActionView, matrices, overrides) {
			out = append(out, item)
		}
	}
	return out
}
