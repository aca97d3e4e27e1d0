package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emporia/console/internal/access"
)

func newCachedStore(t *testing.T) (*CachedStore, *fakeStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	base := newFakeStore()
	return NewCachedStore(base, client, time.Minute, nil), base, mr
}

func TestCachedStoreServesRepeatReadsFromRedis(t *testing.T) {
	cache, base, _ := newCachedStore(t)
	ctx := context.Background()

	first, err := cache.RolePermissions(ctx)
	require.NoError(t, err)
	second, err := cache.RolePermissions(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, base.reads)
	assert.True(t, second[access.RoleEditor].Allows(access.ResourceProducts, access.ActionEdit))
}

func TestCachedStoreWritesInvalidate(t *testing.T) {
	cache, base, mr := newCachedStore(t)
	ctx := context.Background()

	_, err := cache.UserOverrides(ctx, editorID)
	require.NoError(t, err)

	want := access.Overrides{access.ResourceProducts: {access.ActionDelete: true}}
	require.NoError(t, cache.SetUserOverrides(ctx, editorID, want))
	ver, err := mr.Get(cacheVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "1", ver)

	got, err := cache.UserOverrides(ctx, editorID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 2, base.reads)

	require.NoError(t, cache.ClearUserOverrides(ctx, editorID))
	got, err = cache.UserOverrides(ctx, editorID)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, cache.UpdateUserOverrides(ctx, editorID, func(current access.Overrides) (access.Overrides, error) {
		return current.With(access.ResourceOrders, access.ActionView, access.Granted), nil
	}))
	got, err = cache.UserOverrides(ctx, editorID)
	require.NoError(t, err)
	assert.Equal(t, access.Granted, got.State(access.ResourceOrders, access.ActionView))

	// A refused update leaves the cached version alone.
	before, err := mr.Get(cacheVersionKey)
	require.NoError(t, err)
	err = cache.UpdateUserOverrides(ctx, editorID, func(access.Overrides) (access.Overrides, error) {
		return nil, ErrBeyondActor
	})
	assert.ErrorIs(t, err, ErrBeyondActor)
	after, err := mr.Get(cacheVersionKey)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCachedStoreExpiresEntries(t *testing.T) {
	cache, base, mr := newCachedStore(t)
	ctx := context.Background()

	_, err := cache.RolePermissions(ctx)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = cache.RolePermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, base.reads)
}

func TestCachedStoreFallsThroughWhenRedisIsDown(t *testing.T) {
	cache, base, mr := newCachedStore(t)
	mr.Close()

	got, err := cache.RolePermissions(context.Background())
	require.NoError(t, err)
	assert.True(t, got[access.RoleAuthor].Allows(access.ResourceMedia, access.ActionView))

	require.NoError(t, cache.SetRolePermissions(context.Background(), access.RoleAuthor, access.Matrix{}))
	assert.Equal(t, 1, base.writes)
}

func TestCachedStorePropagatesStoreErrors(t *testing.T) {
	cache, base, mr := newCachedStore(t)
	base.failRead = true

	_, err := cache.UserOverrides(context.Background(), editorID)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Empty(t, mr.Keys())
}
