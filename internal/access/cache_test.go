package access

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridianops/meridian/internal/hierarchy"
)

func newCacheFixture(t *testing.T, inner ResolverPort) (*ResolverCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewResolverCache(client, inner, time.Minute, nil, nil), mr
}

func TestResolverCacheServesRepeatLookups(t *testing.T) {
	inner := &fakeResolver{perms: map[int64][]string{10: {"tickets.read"}}}
	cache, _ := newCacheFixture(t, inner)

	perms, err := cache.EffectivePermissions(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"tickets.read"}, perms)

	perms, err = cache.EffectivePermissions(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"tickets.read"}, perms)
	require.Equal(t, 1, inner.calls[10])
}

func TestInvalidatorOrphansCachedEntries(t *testing.T) {
	inner := &fakeResolver{perms: map[int64][]string{10: {"tickets.read"}}}
	cache, mr := newCacheFixture(t, inner)

	_, err := cache.EffectivePermissions(context.Background(), 10)
	require.NoError(t, err)

	// A stale entry keeps serving until the epoch moves.
	inner.perms[10] = []string{"tickets.read", "tickets.close"}
	perms, err := cache.EffectivePermissions(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"tickets.read"}, perms)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, NewInvalidator(client).InvalidateResolution(context.Background()))

	perms, err = cache.EffectivePermissions(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"tickets.read", "tickets.close"}, perms)
	require.Equal(t, 2, inner.calls[10])
}

func TestResolverCacheNeverStoresFailures(t *testing.T) {
	inner := &fakeResolver{errs: map[int64]error{10: hierarchy.ErrIntegrity}}
	cache, _ := newCacheFixture(t, inner)

	_, err := cache.EffectivePermissions(context.Background(), 10)
	require.ErrorIs(t, err, hierarchy.ErrIntegrity)

	// The failure must be recomputed, not replayed from Redis.
	_, err = cache.EffectivePermissions(context.Background(), 10)
	require.ErrorIs(t, err, hierarchy.ErrIntegrity)
	require.Equal(t, 2, inner.calls[10])

	inner.errs = nil
	inner.perms = map[int64][]string{10: {"tickets.read"}}
	perms, err := cache.EffectivePermissions(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"tickets.read"}, perms)
}

func TestResolverCacheDegradesWithoutRedis(t *testing.T) {
	inner := &fakeResolver{perms: map[int64][]string{10: {"tickets.read"}}}
	cache, mr := newCacheFixture(t, inner)
	mr.Close()

	perms, err := cache.EffectivePermissions(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"tickets.read"}, perms)

	_, err = cache.EffectivePermissions(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls[10])
}

func TestInvalidatorToleratesMissingClient(t *testing.T) {
	require.NoError(t, NewInvalidator(nil).InvalidateResolution(context.Background()))
}
