package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(ttl time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := New(ttl)
	c.now = clock.Now
	return c, clock
}

func TestCache_GetSet(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", 42)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(time.Minute)

	c.Set("k", "v")
	clock.Advance(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries, "expired entry is dropped on read")
}

func TestCache_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, New(0).TTL())
	assert.Equal(t, time.Second, New(time.Second).TTL())
}

func TestCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Set(KeyAllPrompts, []string{"a"})
	c.Set(KeyCategories, []string{"x"})
	c.Invalidate()

	_, ok := c.Get(KeyAllPrompts)
	assert.False(t, ok)
	_, ok = c.Get(KeyCategories)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Invalidations)
}

func TestCache_Delete(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestRemember(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"v", string(rune('0' + calls))}, nil
	}

	first, err := Remember(ctx, c, "key", load)
	require.NoError(t, err)
	second, err := Remember(ctx, c, "key", load)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	// After invalidation the next read re-queries
	c.Invalidate()
	third, err := Remember(ctx, c, "key", load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NotEqual(t, first, third)

	clock.Advance(2 * time.Minute)
	_, err = Remember(ctx, c, "key", load)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRemember_ErrorNotCached(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	ctx := context.Background()
	boom := errors.New("store down")

	_, err := Remember(ctx, c, "key", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	v, err := Remember(ctx, c, "key", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestRemember_WrongTypeIsMiss(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set("key", "a string")

	v, err := Remember(context.Background(), c, "key", func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("k", i*j)
				c.Get("k")
				if j%25 == 0 {
					c.Invalidate()
				}
			}
		}(i)
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, uint64(800), stats.Hits+stats.Misses)
}

func TestRemember_LoadAcrossInvalidate(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string, 1)

	go func() {
		v, err := Remember(ctx, c, "key", func(context.Context) (string, error) {
			close(started)
			<-release
			return "old", nil
		})
		assert.NoError(t, err)
		done <- v
	}()

	<-started
	c.Invalidate()
	close(release)

	// The in-flight caller still gets its result
	assert.Equal(t, "old", <-done)

	_, ok := c.Get("key")
	assert.False(t, ok, "value loaded before the flush must not be cached")

	fresh, err := Remember(ctx, c, "key", func(context.Context) (string, error) { return "new", nil })
	require.NoError(t, err)
	assert.Equal(t, "new", fresh)

	v, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}
