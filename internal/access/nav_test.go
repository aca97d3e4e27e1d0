package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisibleNavItemsAdminSeesEverything(t *testing.T) {
	want := make([]string, 0, len(Navigation()))
	for _, item := range Navigation() {
		want = append(want, item.Href)
	}
	assert.Equal(t, want, VisibleNavItems(RoleAdmin, nil, nil))
}

func TestVisibleNavItemsFollowsDeclaredOrder(t *testing.T) {
	// Insertion order of the matrix must not leak into menu order.
	matrices := RoleMatrices{RoleEditor: Matrix{}}
	matrices[RoleEditor][ResourceAudit] = map[Action]bool{ActionView: true}
	matrices[RoleEditor][ResourceMedia] = map[Action]bool{ActionView: true}
	matrices[RoleEditor][ResourceProducts] = map[Action]bool{ActionView: true, ActionEdit: true}

	for i := 0; i < 20; i++ {
		assert.Equal(t, []string{"/", "/products", "/media", "/audit"}, VisibleNavItems(RoleEditor, matrices, nil))
	}
}

func TestVisibleNavItemsAppliesOverrides(t *testing.T) {
	matrices := RoleMatrices{RoleAuthor: Matrix{ResourceProducts: {ActionView: true}}}
	overrides := Overrides{
		ResourceProducts: {ActionView: false},
		ResourceQuotes:   {ActionView: true},
	}
	assert.Equal(t, []string{"/", "/quotes"}, VisibleNavItems(RoleAuthor, matrices, overrides))
}

func TestVisibleNavItemsOnlyConsidersView(t *testing.T) {
	matrices := RoleMatrices{RoleEditor: Matrix{ResourceUsers: {ActionEdit: true}}}
	assert.Equal(t, []string{"/"}, VisibleNavItems(RoleEditor, matrices, nil))
}

func TestVisibleNavItemsDeniedRoles(t *testing.T) {
	grantAll := Overrides{ResourceProducts: {ActionView: true}}
	assert.Empty(t, VisibleNavItems(RoleSubscriber, DefaultMatrices(), grantAll))
	assert.Empty(t, VisibleNavItems(ParseRole("SUPERUSER"), DefaultMatrices(), grantAll))
}

func TestDefaultMatricesAreFreshAndEditableOnly(t *testing.T) {
	a := DefaultMatrices()
	a[RoleEditor][ResourceProducts][ActionDelete] = true
	b := DefaultMatrices()
	assert.False(t, b[RoleEditor].Allows(ResourceProducts, ActionDelete))

	for role := range b {
		assert.True(t, role.Editable(), "default matrix stored for %s", role)
	}
	assert.NotContains(t, b, RoleAdmin)
}
