package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock safe for concurrent reads.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTTL_GetBeforeAndAfterExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := New[string, string](10*time.Second, WithClock(clock.Now))

	c.Set("/docs", "D1")

	v, ok := c.Get("/docs")
	require.True(t, ok)
	assert.Equal(t, "D1", v)

	clock.Advance(9 * time.Second)
	_, ok = c.Get("/docs")
	assert.True(t, ok, "entry must live until its ttl elapses")

	clock.Advance(time.Second)
	_, ok = c.Get("/docs")
	assert.False(t, ok, "entry must read as absent once ttl has elapsed")
	assert.Equal(t, 1, c.Len(), "expired entries are not swept on read")
}

func TestTTL_SetRefreshesLifetime(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := New[string, int](time.Second, WithClock(clock.Now))

	c.Set("k", 1)
	clock.Advance(900 * time.Millisecond)
	c.Set("k", 2)
	clock.Advance(900 * time.Millisecond)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTL_SetIfAbsent(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := New[string, string](time.Second, WithClock(clock.Now))

	assert.True(t, c.SetIfAbsent("a", "first"))
	assert.False(t, c.SetIfAbsent("a", "second"))
	v, _ := c.Get("a")
	assert.Equal(t, "first", v)

	clock.Advance(time.Second)
	assert.True(t, c.SetIfAbsent("a", "third"), "expired entries count as absent")
	v, _ = c.Get("a")
	assert.Equal(t, "third", v)
}

func TestTTL_MaxEntriesEvictsExpiredFirst(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := New[string, int](10*time.Second, WithClock(clock.Now), WithMaxEntries(3))

	c.Set("old", 0)
	clock.Advance(11 * time.Second)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	assert.Equal(t, 3, c.Len())
	for _, k := range []string{"a", "b", "c"} {
		_, ok := c.Get(k)
		assert.True(t, ok, "live entry %s must survive eviction of expired ones", k)
	}
}

func TestTTL_MaxEntriesEvictsClosestToExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := New[string, int](10*time.Second, WithClock(clock.Now), WithMaxEntries(2))

	c.Set("a", 1)
	clock.Advance(time.Second)
	c.Set("b", 2)
	clock.Advance(time.Second)
	c.Set("c", 3)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry must be evicted")
	_, ok = c.Get("c")
	assert.True(t, ok)

	// Overwriting an existing key never evicts
	c.Set("b", 20)
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestTTL_Observer(t *testing.T) {
	t.Parallel()

	var hits, misses atomic.Int32
	c := New[string, int](time.Minute, WithObserver(
		func() { hits.Add(1) },
		func() { misses.Add(1) },
	))

	c.Get("missing")
	c.Set("k", 1)
	c.Get("k")
	c.Get("k")

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), misses.Load())
}

func TestTTL_DeleteAndPurge(t *testing.T) {
	t.Parallel()

	c := New[string, int](time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestTTL_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := New[string, int](time.Minute, WithMaxEntries(64))
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("k%d", i%100)
				c.Set(key, g)
				if v, ok := c.Get(key); ok {
					assert.GreaterOrEqual(t, v, 0)
				}
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64+8, "cap may only be exceeded by in-flight racing writers")
}
