package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResolver struct {
	next  Resolver
	calls int
}

func (c *countingResolver) Resolve(ctx context.Context, token string) (string, error) {
	c.calls++
	return c.next.Resolve(ctx, token)
}

func newCachedResolver(t *testing.T) (*CachedResolver, *countingResolver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	backing := &countingResolver{next: NewStaticResolver(map[string]string{"good-token": "server-1"})}
	cached, err := NewCachedResolver(backing, "redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { cached.Close() })

	return cached, backing, mr
}

func TestCachedResolver_Hit(t *testing.T) {
	cached, backing, _ := newCachedResolver(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		serverID, err := cached.Resolve(ctx, "good-token")
		require.NoError(t, err)
		assert.Equal(t, "server-1", serverID)
	}

	assert.Equal(t, 1, backing.calls, "backing resolver consulted once, then served from cache")
}

func TestCachedResolver_NegativeCaching(t *testing.T) {
	cached, backing, _ := newCachedResolver(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cached.Resolve(ctx, "bad-token")
		assert.ErrorIs(t, err, ErrUnknownToken)
	}

	assert.Equal(t, 1, backing.calls, "unknown tokens are cached too")
}

func TestCachedResolver_Expiry(t *testing.T) {
	cached, backing, mr := newCachedResolver(t)
	ctx := context.Background()

	_, err := cached.Resolve(ctx, "good-token")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = cached.Resolve(ctx, "good-token")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)
}

func TestCachedResolver_FallsThroughWhenCacheDown(t *testing.T) {
	cached, backing, mr := newCachedResolver(t)
	ctx := context.Background()

	mr.Close()

	serverID, err := cached.Resolve(ctx, "good-token")
	require.NoError(t, err)
	assert.Equal(t, "server-1", serverID)
	assert.Equal(t, 1, backing.calls)
}

func TestCachedResolver_KeyedByDigest(t *testing.T) {
	cached, _, mr := newCachedResolver(t)

	_, err := cached.Resolve(context.Background(), "good-token")
	require.NoError(t, err)

	// The raw token never appears in a cache key.
	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "good-token")
	}
}
