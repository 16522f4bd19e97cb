package access

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKeyPrefix = "authz:perms"
	cacheEpochKey  = "authz:perms:epoch"
)

// Invalidator bumps the resolution epoch so every cached closure is orphaned
// at once. Role and hierarchy mutations call it after their commit.
type Invalidator struct {
	client *redis.Client
}

// NewInvalidator builds an Invalidator on the shared Redis client.
func NewInvalidator(client *redis.Client) *Invalidator {
	return &Invalidator{client: client}
}

// InvalidateResolution increments the epoch key. Orphaned entries expire by TTL.
func (i *Invalidator) InvalidateResolution(ctx context.Context) error {
	if i == nil || i.client == nil {
		return nil
	}
	return i.client.Incr(ctx, cacheEpochKey).Err()
}

// ResolverCache memoises permission closures in Redis in front of the
// hierarchy resolver. Keys embed the current epoch, so invalidation is a
// single INCR rather than a scan. Redis trouble degrades to the inner
// resolver; resolution errors are never stored.
type ResolverCache struct {
	client  *redis.Client
	inner   ResolverPort
	ttl     time.Duration
	metrics *Metrics
	logger  *slog.Logger
	group   singleflight.Group
}

// NewResolverCache wraps the inner resolver with epoch-keyed caching.
func NewResolverCache(client *redis.Client, inner ResolverPort, ttl time.Duration, metrics *Metrics, logger *slog.Logger) *ResolverCache {
	return &ResolverCache{client: client, inner: inner, ttl: ttl, metrics: metrics, logger: logger}
}

// EffectivePermissions returns the cached closure for the role, computing and
// storing it on a miss. Concurrent misses for the same key share one
// computation.
func (c *ResolverCache) EffectivePermissions(ctx context.Context, roleID int64) ([]string, error) {
	if c.client == nil {
		return c.inner.EffectivePermissions(ctx, roleID)
	}
	key, err := c.entryKey(ctx, roleID)
	if err != nil {
		c.warn("resolve cache epoch", err)
		return c.inner.EffectivePermissions(ctx, roleID)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var perms []string
		if err := json.Unmarshal(payload, &perms); err == nil {
			c.metrics.CacheHit()
			return perms, nil
		}
		c.warn("decode cached resolution", err)
	} else if err != redis.Nil {
		c.warn("read resolution cache", err)
		return c.inner.EffectivePermissions(ctx, roleID)
	}
	c.metrics.CacheMiss()
	ch := c.group.DoChan(key, func() (interface{}, error) {
		perms, err := c.inner.EffectivePermissions(ctx, roleID)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(perms); err == nil {
			if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				c.warn("store resolution cache", err)
			}
		}
		return perms, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

// entryKey composes the cache key for a role under the current epoch. A
// missing epoch counts as zero so a fresh Redis starts serving immediately.
func (c *ResolverCache) entryKey(ctx context.Context, roleID int64) (string, error) {
	epoch, err := c.client.Get(ctx, cacheEpochKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%d", cacheKeyPrefix, epoch, roleID), nil
}

func (c *ResolverCache) warn(msg string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(msg, slog.Any("error", err))
}
