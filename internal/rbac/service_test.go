package rbac

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emporia/console/internal/access"
)

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeAudit, *fakeFallbacks) {
	t.Helper()
	store := newFakeStore()
	audit := &fakeAudit{}
	fallbacks := &fakeFallbacks{}
	return NewService(store, testPrincipals(), audit, fallbacks, nil), store, audit, fallbacks
}

func TestResolverUsesStoredMatricesAndOverrides(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	store.overrides[editorID] = access.Overrides{access.ResourceProducts: {access.ActionDelete: true}}

	r := svc.Resolver(context.Background(), Principal{UserID: editorID, Role: access.RoleEditor})
	assert.True(t, r.Can(access.ResourceProducts, access.ActionEdit))
	assert.True(t, r.Can(access.ResourceProducts, access.ActionDelete))
	assert.False(t, r.Can(access.ResourceOrders, access.ActionView))
}

func TestResolverSkipsStoreForFixedRoles(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	admin := svc.Resolver(context.Background(), Principal{UserID: adminID, Role: access.RoleAdmin})
	sub := svc.Resolver(context.Background(), Principal{UserID: subscriberID, Role: access.RoleSubscriber})

	assert.True(t, admin.Can(access.ResourceAudit, access.ActionDelete))
	assert.False(t, sub.Can(access.ResourceProducts, access.ActionView))
	assert.Zero(t, store.reads)
}

func TestResolverFallsBackToDefaultsWhenStoreFails(t *testing.T) {
	svc, store, _, fallbacks := newTestService(t)
	store.failRead = true
	store.overrides[editorID] = access.Overrides{access.ResourceUsers: {access.ActionView: true}}

	r := svc.Resolver(context.Background(), Principal{UserID: editorID, Role: access.RoleEditor})

	defaults := access.DefaultMatrices()
	for _, res := range access.Resources() {
		for _, act := range access.Actions() {
			assert.Equal(t, defaults[access.RoleEditor].Allows(res, act), r.Can(res, act), "%s.%s", res, act)
		}
	}
	assert.Empty(t, r.Overrides())
	assert.Equal(t, 1, fallbacks.counts["store"])
}

func TestUpdateRoleMatrixRejectsFixedRoles(t *testing.T) {
	svc, store, audit, _ := newTestService(t)

	for _, role := range []access.Role{access.RoleAdmin, access.RoleSubscriber, access.RoleUnknown} {
		err := svc.UpdateRoleMatrix(context.Background(), System, role, access.Matrix{access.ResourceProducts: {access.ActionView: true}})
		assert.ErrorIs(t, err, ErrRoleNotEditable, role.String())
	}
	assert.Zero(t, store.writes)
	assert.Empty(t, audit.entries)
}

func TestUpdateRoleMatrixNormalizesAndAudits(t *testing.T) {
	svc, store, audit, _ := newTestService(t)

	err := svc.UpdateRoleMatrix(context.Background(), System, access.RoleAuthor, access.Matrix{
		access.ResourceQuotes:      {access.ActionView: true},
		access.Resource("reports"): {access.ActionView: true},
	})
	require.NoError(t, err)
	assert.Equal(t, access.Matrix{access.ResourceQuotes: {access.ActionView: true}}, store.matrices[access.RoleAuthor])

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "rbac.role_matrix.update", audit.entries[0].Action)
	assert.Equal(t, "AUTHOR", audit.entries[0].EntityID)
	assert.Zero(t, audit.entries[0].ActorID)
}

func TestToggleUserOverrideCyclesAgainstRoleDefault(t *testing.T) {
	svc, store, audit, _ := newTestService(t)
	ctx := context.Background()

	got, err := svc.ToggleUserOverride(ctx, System, editorID, access.ResourceProducts, access.ActionDelete)
	require.NoError(t, err)
	assert.Equal(t, access.Overrides{access.ResourceProducts: {access.ActionDelete: true}}, got)
	assert.Equal(t, got, store.overrides[editorID])

	got, err = svc.ToggleUserOverride(ctx, System, editorID, access.ResourceProducts, access.ActionDelete)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = svc.ToggleUserOverride(ctx, System, editorID, access.ResourceProducts, access.ActionEdit)
	require.NoError(t, err)
	assert.Equal(t, access.Revoked, got.State(access.ResourceProducts, access.ActionEdit))

	require.Len(t, audit.entries, 3)
	assert.Equal(t, true, audit.entries[0].Meta["above_role_default"])
	assert.Equal(t, "granted", audit.entries[0].Meta["to"])
	assert.NotContains(t, audit.entries[2].Meta, "above_role_default")
}

func TestSetUserOverrideStateFollowsThreeStateCycle(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	state := access.Inherited
	for _, want := range []access.OverrideState{access.Granted, access.Revoked, access.Inherited} {
		state = state.Next()
		got, err := svc.SetUserOverrideState(ctx, System, authorID, access.ResourceOrders, access.ActionView, state)
		require.NoError(t, err)
		assert.Equal(t, want, got.State(access.ResourceOrders, access.ActionView))
	}
	perms, err := svc.UserPermissions(ctx, authorID)
	require.NoError(t, err)
	assert.Zero(t, perms.Overrides)
}

func TestOverridesRefusedForFixedRoles(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []int64{adminID, subscriberID} {
		_, err := svc.ToggleUserOverride(ctx, System, id, access.ResourceProducts, access.ActionView)
		assert.ErrorIs(t, err, ErrOverrideNotApplicable)
		_, err = svc.SetUserOverrideState(ctx, System, id, access.ResourceProducts, access.ActionView, access.Granted)
		assert.ErrorIs(t, err, ErrOverrideNotApplicable)
	}
	assert.Zero(t, store.writes)
}

func TestOverrideErrors(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ToggleUserOverride(ctx, System, 99, access.ResourceProducts, access.ActionView)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ToggleUserOverride(ctx, System, editorID, access.ParseResource("reports"), access.ActionView)
	assert.ErrorIs(t, err, ErrUnknownPermission)
}

func TestResetUserOverrides(t *testing.T) {
	svc, store, audit, _ := newTestService(t)
	store.overrides[editorID] = access.Overrides{access.ResourceProducts: {access.ActionDelete: true}}

	require.NoError(t, svc.ResetUserOverrides(context.Background(), System, editorID))
	assert.NotContains(t, store.overrides, editorID)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "rbac.override.reset", audit.entries[0].Action)
}

func TestUserPermissionsReportsGrid(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	store.overrides[editorID] = access.Overrides{access.ResourceAudit: {access.ActionView: true}}

	perms, err := svc.UserPermissions(context.Background(), editorID)
	require.NoError(t, err)
	assert.True(t, perms.Editable)
	assert.Equal(t, 1, perms.Overrides)
	assert.Equal(t, []string{"/", "/products", "/audit"}, perms.Nav)
	assert.Len(t, perms.Cells, len(access.Resources())*len(access.Actions()))

	admin, err := svc.UserPermissions(context.Background(), adminID)
	require.NoError(t, err)
	assert.False(t, admin.Editable)
	for _, c := range admin.Cells {
		assert.True(t, c.Effective)
	}
}

func TestRoleMatricesFillsMissingRoles(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	delete(store.matrices, access.RoleAuthor)

	got, err := svc.RoleMatrices(context.Background())
	require.NoError(t, err)
	assert.Contains(t, got, access.RoleAuthor)
	assert.Len(t, got, 2)
}

func TestNonAdminCannotChangeOwnPermissions(t *testing.T) {
	svc, store, audit, _ := newTestService(t)
	ctx := context.Background()
	editor := Principal{UserID: editorID, Role: access.RoleEditor}
	store.overrides[editorID] = access.Overrides{access.ResourceUsers: {access.ActionView: true}}

	_, err := svc.ToggleUserOverride(ctx, editor, editorID, access.ResourceProducts, access.ActionDelete)
	assert.ErrorIs(t, err, ErrSelfChange)
	_, err = svc.SetUserOverrideState(ctx, editor, editorID, access.ResourceAudit, access.ActionView, access.Granted)
	assert.ErrorIs(t, err, ErrSelfChange)
	assert.ErrorIs(t, svc.ResetUserOverrides(ctx, editor, editorID), ErrSelfChange)
	assert.ErrorIs(t, svc.UpdateRoleMatrix(ctx, editor, access.RoleEditor, access.Matrix{access.ResourceUsers: {access.ActionEdit: true}}), ErrSelfChange)

	assert.Equal(t, access.Overrides{access.ResourceUsers: {access.ActionView: true}}, store.overrides[editorID])
	assert.Zero(t, store.writes)
	assert.Empty(t, audit.entries)
}

func TestNonAdminGrantsLimitedToHeldPermissions(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	editor := Principal{UserID: editorID, Role: access.RoleEditor}

	_, err := svc.SetUserOverrideState(ctx, editor, authorID, access.ResourceProducts, access.ActionDelete, access.Granted)
	assert.ErrorIs(t, err, ErrBeyondActor)
	assert.Empty(t, store.overrides[authorID])

	got, err := svc.SetUserOverrideState(ctx, editor, authorID, access.ResourceProducts, access.ActionEdit, access.Granted)
	require.NoError(t, err)
	assert.Equal(t, access.Granted, got.State(access.ResourceProducts, access.ActionEdit))

	// Revoking never widens access.
	got, err = svc.ToggleUserOverride(ctx, editor, authorID, access.ResourceMedia, access.ActionView)
	require.NoError(t, err)
	assert.Equal(t, access.Revoked, got.State(access.ResourceMedia, access.ActionView))

	// Clearing the revocation would restore media.view, which the editor lacks.
	assert.ErrorIs(t, svc.ResetUserOverrides(ctx, editor, authorID), ErrBeyondActor)
	assert.Equal(t, access.Revoked, store.overrides[authorID].State(access.ResourceMedia, access.ActionView))

	// A granted override on the actor counts as held.
	store.overrides[editorID] = access.Overrides{access.ResourceMedia: {access.ActionView: true}}
	require.NoError(t, svc.ResetUserOverrides(ctx, editor, authorID))
	assert.Empty(t, store.overrides[authorID])
}

func TestNonAdminMatrixEditsLimitedToHeldPermissions(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	editor := Principal{UserID: editorID, Role: access.RoleEditor}

	err := svc.UpdateRoleMatrix(ctx, editor, access.RoleAuthor, access.Matrix{access.ResourceProducts: {access.ActionDelete: true}})
	assert.ErrorIs(t, err, ErrBeyondActor)
	assert.Equal(t, access.Matrix{access.ResourceMedia: {access.ActionView: true}}, store.matrices[access.RoleAuthor])

	// Keeping an existing cell the editor lacks is not a grant.
	err = svc.UpdateRoleMatrix(ctx, editor, access.RoleAuthor, access.Matrix{
		access.ResourceMedia:    {access.ActionView: true},
		access.ResourceProducts: {access.ActionView: true},
	})
	require.NoError(t, err)
	assert.True(t, store.matrices[access.RoleAuthor].Allows(access.ResourceProducts, access.ActionView))
}

func TestConcurrentOverrideWritesAreNotLost(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, res := range access.Resources() {
		wg.Add(1)
		go func(res access.Resource) {
			defer wg.Done()
			_, err := svc.SetUserOverrideState(ctx, System, authorID, res, access.ActionCreate, access.Granted)
			assert.NoError(t, err)
		}(res)
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, len(access.Resources()), store.overrides[authorID].Count())
}
