package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/emporia/console/internal/access"
)

const cacheVersionKey = "rbac:version"

// CachedStore is a Redis read-through cache in front of a Store. Keys carry a
// global version; every write bumps it, orphaning all cached entries at once.
// Redis failures fall through to the underlying store.
type CachedStore struct {
	base   Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedStore wraps base. A nil client disables caching.
func NewCachedStore(base Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{base: base, client: client, ttl: ttl, logger: logger}
}

// RolePermissions returns the cached matrices or loads them from the store.
func (c *CachedStore) RolePermissions(ctx context.Context) (access.RoleMatrices, error) {
	var out access.RoleMatrices
	err := c.fetch(ctx, "roles", &out, func(ctx context.Context) (any, error) {
		return c.base.RolePermissions(ctx)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = access.RoleMatrices{}
	}
	return out, nil
}

// UserOverrides returns the cached overrides of userID or loads them.
func (c *CachedStore) UserOverrides(ctx context.Context, userID int64) (access.Overrides, error) {
	var out access.Overrides
	err := c.fetch(ctx, "overrides:"+strconv.FormatInt(userID, 10), &out, func(ctx context.Context) (any, error) {
		return c.base.UserOverrides(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return out.Normalize(), nil
}

// SetRolePermissions writes through and invalidates.
func (c *CachedStore) SetRolePermissions(ctx context.Context, role access.Role, matrix access.Matrix) error {
	if err := c.base.SetRolePermissions(ctx, role, matrix); err != nil {
		return err
	}
	c.bump(ctx)
	return nil
}

// SetUserOverrides writes through and invalidates.
func (c *CachedStore) SetUserOverrides(ctx context.Context, userID int64, overrides access.Overrides) error {
	if err := c.base.SetUserOverrides(ctx, userID, overrides); err != nil {
		return err
	}
	c.bump(ctx)
	return nil
}

// UpdateUserOverrides writes through and invalidates.
func (c *CachedStore) UpdateUserOverrides(ctx context.Context, userID int64, fn func(access.Overrides) (access.Overrides, error)) error {
	if err := c.base.UpdateUserOverrides(ctx, userID, fn); err != nil {
		return err
	}
	c.bump(ctx)
	return nil
}

// ClearUserOverrides writes through and invalidates.
func (c *CachedStore) ClearUserOverrides(ctx context.Context, userID int64) error {
	if err := c.base.ClearUserOverrides(ctx, userID); err != nil {
		return err
	}
	c.bump(ctx)
	return nil
}

func (c *CachedStore) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func (c *CachedStore) fetch(ctx context.Context, suffix string, dest any, loader func(context.Context) (any, error)) error {
	if c.client == nil {
		return c.load(ctx, dest, loader)
	}
	ver, err := c.version(ctx)
	if err != nil {
		c.logger.Warn("rbac cache version", slog.Any("error", err))
		return c.load(ctx, dest, loader)
	}
	key := fmt.Sprintf("rbac:v%d:%s", ver, suffix)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if jsonErr := json.Unmarshal(payload, dest); jsonErr == nil {
			return nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("rbac cache read", slog.String("key", key), slog.Any("error", err))
		return c.load(ctx, dest, loader)
	}

	raw, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.Warn("rbac cache write", slog.String("key", key), slog.Any("error", err))
		}
		return encoded, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

func (c *CachedStore) load(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (c *CachedStore) bump(ctx context.Context) {
	if c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		c.logger.Warn("rbac cache bump", slog.Any("error", err))
	}
}

var _ Store = (*CachedStore)(nil)
