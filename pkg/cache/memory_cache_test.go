package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(&MemoryConfig{}) // no janitor in tests
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMemoryCacheSetGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("value"), 0))

	got, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)
}

func TestMemoryCacheGetMiss(t *testing.T) {
	c := newTestCache(t)

	_, err := c.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("value"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := c.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheRejectsEmptyKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, c.Set(ctx, "", nil, 0), ErrInvalidKey)

	_, err = c.SetNX(ctx, "", nil, 0)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestMemoryCacheSetNXClaimSemantics(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	claimed, err := c.SetNX(ctx, "lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = c.SetNX(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)

	// The original claim survives the losing attempt.
	got, err := c.Get(ctx, "lock")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
}

func TestMemoryCacheSetNXReclaimsExpiredKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	claimed, err := c.SetNX(ctx, "lock", []byte("a"), 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, claimed)

	time.Sleep(30 * time.Millisecond)

	claimed, err = c.SetNX(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemoryCacheExpireReanchors(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("value"), 20*time.Millisecond))
	require.NoError(t, c.Expire(ctx, "key", time.Minute))

	time.Sleep(40 * time.Millisecond)

	_, err := c.Get(ctx, "key")
	assert.NoError(t, err)
}

func TestMemoryCacheExpireMissingKey(t *testing.T) {
	c := newTestCache(t)
	assert.ErrorIs(t, c.Expire(context.Background(), "absent", time.Minute), ErrCacheMiss)
}

func TestMemoryCacheDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Delete(ctx, "a", "b", "never-existed"))

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheStats(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("value"), 0))

	_, _ = c.Get(ctx, "key")    // hit
	_, _ = c.Get(ctx, "key")    // hit
	_, _ = c.Get(ctx, "absent") // miss

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", stats.Provider)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRatio, 0.001)
	assert.Equal(t, int64(1), stats.Keys)
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	original := []byte("value")
	require.NoError(t, c.Set(ctx, "key", original, 0))
	original[0] = 'X'

	got, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	got[0] = 'Y'
	again, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}

func TestNewSelectsProvider(t *testing.T) {
	c, err := New(&Config{Provider: "memory", Memory: &MemoryConfig{}})
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.(*MemoryCache)
	assert.True(t, ok)
	assert.NoError(t, c.HealthCheck(context.Background()))
}
