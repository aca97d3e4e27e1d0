package access

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := map[string]Role{
		"ADMIN":      RoleAdmin,
		" editor ":   RoleEditor,
		"Author":     RoleAuthor,
		"subscriber": RoleSubscriber,
		"SUPERUSER":  RoleUnknown,
		"":           RoleUnknown,
	}
	for raw, want := range tests {
		assert.Equal(t, want, ParseRole(raw), raw)
	}
	assert.False(t, RoleUnknown.AdminArea())
	assert.False(t, RoleSubscriber.AdminArea())
	assert.True(t, RoleAuthor.AdminArea())
	assert.False(t, RoleAdmin.Editable())
}

func TestNormalizeDropsUnknownKeys(t *testing.T) {
	raw := Matrix{
		ResourceProducts:      {ActionView: true, Action("publish"): true},
		Resource("ghost"):     {ActionView: true},
		ResourceMedia:         {Action("bogus"): true},
		ResourceNotifications: {},
	}
	assert.Equal(t, Matrix{ResourceProducts: {ActionView: true}}, raw.Normalize())

	overrides := Overrides{Resource("ghost"): {ActionView: true}, ResourceAudit: {ActionView: false}}
	assert.Equal(t, Overrides{ResourceAudit: {ActionView: false}}, overrides.Normalize())
}

func TestOverridesJSONRoundTripKeepsSparseShape(t *testing.T) {
	overrides := Overrides{}.With(ResourceProducts, ActionDelete, Granted).With(ResourceOrders, ActionView, Revoked)
	raw, err := json.Marshal(overrides)
	require.NoError(t, err)
	assert.JSONEq(t, `{"products":{"delete":true},"orders":{"view":false}}`, string(raw))

	var decoded Overrides
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, overrides, decoded)
	assert.Equal(t, 2, decoded.Count())
}

func TestRoleMatricesForIgnoresFixedRoles(t *testing.T) {
	matrices := RoleMatrices{
		RoleAdmin:  Matrix{ResourceProducts: {ActionView: false}},
		RoleEditor: Matrix{ResourceProducts: {ActionView: true}},
	}
	assert.Nil(t, matrices.For(RoleAdmin))
	assert.NotContains(t, matrices.Clone(), RoleAdmin)
	assert.Equal(t, []Grant{{Resource: ResourceProducts, Action: ActionView}}, matrices.For(RoleEditor).Grants())
}
