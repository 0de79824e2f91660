package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", `{"a":1}`, time.Minute))
	var s string
	require.NoError(t, mc.Get(ctx, "k", &s))
	assert.Equal(t, `{"a":1}`, s)

	var m map[string]int
	require.NoError(t, mc.Get(ctx, "k", &m))
	assert.Equal(t, 1, m["a"])

	assert.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "window:v1:a", "1", 0)
	_ = mc.Set(ctx, "window:v1:b", "2", 0)
	_ = mc.Set(ctx, "report:x", "3", 0)

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("window:")))
	ok, _ := mc.Exists(ctx, "window:v1:a", "window:v1:b")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "report:x")
	assert.True(t, ok)
}

func TestMemoryCacheTryLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	token, ok, err := mc.TryLock(ctx, "lock:a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)
	_, ok, _ = mc.TryLock(ctx, "lock:a", time.Minute)
	assert.False(t, ok)

	assert.ErrorIs(t, mc.Unlock(ctx, "lock:a", "someone-else"), ErrLockNotHeld)
	_, ok, _ = mc.TryLock(ctx, "lock:a", time.Minute)
	assert.False(t, ok, "a foreign token does not release the lock")

	require.NoError(t, mc.Unlock(ctx, "lock:a", token))
	_, ok, _ = mc.TryLock(ctx, "lock:a", time.Minute)
	assert.True(t, ok)

	short, ok, _ := mc.TryLock(ctx, "lock:short", time.Millisecond)
	assert.True(t, ok)
	time.Sleep(5 * time.Millisecond)
	next, ok, _ := mc.TryLock(ctx, "lock:short", time.Minute)
	assert.True(t, ok, "expired lock is reclaimable")

	// the first holder's late unlock leaves the new holder's lock in place
	assert.ErrorIs(t, mc.Unlock(ctx, "lock:short", short), ErrLockNotHeld)
	require.NoError(t, mc.Unlock(ctx, "lock:short", next))
}

func TestGenerateKeyWithParams(t *testing.T) {
	assert.Equal(t, "window:v1:snap:42", GenerateKeyWithParams("window", "v1", "snap", 42))
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryLimits(2, time.Minute))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	time.Sleep(time.Millisecond)
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", "3", time.Minute))

	ok, _ := mc.Exists(ctx, "b")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "a", "c")
	assert.True(t, ok)
}
