package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	pkgcache "InvSight/pkg/cache"
)

func TestWindowCacheLoadStore(t *testing.T) {
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	wc := NewWindowCache(mc)
	ctx := context.Background()
	key := WindowKey("v1", "snap", "42")
	assert.Equal(t, "window:v1:snap:42", key)

	_, ok, err := wc.Load(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	w := models.NewWindowState("42", 3)
	for i := 1; i <= 4; i++ {
		require.NoError(t, w.Push([]float64{float64(i), 0}))
	}
	require.NoError(t, wc.Store(ctx, key, w))

	got, ok, err := wc.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, w.Vectors(), got.Vectors())
	assert.Equal(t, 3, got.Cap())

	require.NoError(t, wc.Invalidate(ctx))
	_, ok, _ = wc.Load(ctx, key)
	assert.False(t, ok)
}

func TestWindowCacheLockSerializesSubject(t *testing.T) {
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	wc := NewWindowCache(mc, WithPollInterval(time.Millisecond))
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := wc.Lock(ctx, "window:v1:s:1")
			if err != nil {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestWindowCacheLockTimeout(t *testing.T) {
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	wc := NewWindowCache(mc, WithPollInterval(time.Millisecond))

	unlock, err := wc.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = wc.Lock(ctx, "k")
	assert.True(t, errs.Is(err, errs.KindStoreTimeout))
}

func TestTTLCache(t *testing.T) {
	c := NewTTLCache[int]()
	c.Set("a", 1, 0)
	c.Set("b", 2, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = c.Get("b")
	assert.False(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
