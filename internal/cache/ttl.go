// Package cache provides the short-lived identifier caches used during path resolution.
package cache

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

type entry[V any] struct {
	value  V
	expiry time.Time
}

type options struct {
	now        Clock
	maxEntries int
	onHit      func()
	onMiss     func()
}

// Option configures a [TTL] cache.
type Option func(*options)

// WithClock replaces time.Now as the expiry clock.
func WithClock(now Clock) Option {
	return func(o *options) { o.now = now }
}

// WithMaxEntries caps the number of stored entries; n <= 0 means no cap.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// WithObserver registers callbacks invoked on every hit and miss.
func WithObserver(onHit, onMiss func()) Option {
	return func(o *options) {
		o.onHit = onHit
		o.onMiss = onMiss
	}
}

// TTL is a concurrent map whose entries read as absent once their lifetime
// has elapsed. Expiry is pull-based: nothing sweeps in the background, and an
// expired entry stays stored until it is overwritten or evicted by the cap.
// Concurrent writers of the same key race with last-write-wins.
type TTL[K comparable, V any] struct {
	items *xsync.Map[K, entry[V]]
	ttl   time.Duration
	opts  options
}

// New creates a cache whose entries live for ttl.
func New[K comparable, V any](ttl time.Duration, opts ...Option) *TTL[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[K, V]{
		items: xsync.NewMap[K, entry[V]](),
		ttl:   ttl,
		opts:  o,
	}
}

// Get returns the value for key if present and not yet expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	e, ok := c.items.Load(key)
	if !ok || !c.opts.now().Before(e.expiry) {
		c.observe(c.opts.onMiss)
		var zero V
		return zero, false
	}
	c.observe(c.opts.onHit)
	return e.value, true
}

// Set stores value for key with a fresh lifetime.
func (c *TTL[K, V]) Set(key K, value V) {
	now := c.opts.now()
	if c.opts.maxEntries > 0 && c.items.Size() >= c.opts.maxEntries {
		if _, exists := c.items.Load(key); !exists {
			c.evict(now)
		}
	}
	c.items.Store(key, entry[V]{value: value, expiry: now.Add(c.ttl)})
}

// SetIfAbsent stores value only when key has no live entry. It reports whether
// the value was stored.
func (c *TTL[K, V]) SetIfAbsent(key K, value V) bool {
	if e, ok := c.items.Load(key); ok && c.opts.now().Before(e.expiry) {
		return false
	}
	c.Set(key, value)
	return true
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	c.items.Delete(key)
}

// Len returns the number of stored entries, expired ones included.
func (c *TTL[K, V]) Len() int {
	return c.items.Size()
}

// Purge drops every entry.
func (c *TTL[K, V]) Purge() {
	c.items.Clear()
}

// evict drops expired entries, then the entry closest to expiry if the cache
// is still full.
func (c *TTL[K, V]) evict(now time.Time) {
	var (
		oldestKey K
		oldest    time.Time
		found     bool
	)
	c.items.Range(func(k K, e entry[V]) bool {
		if !now.Before(e.expiry) {
			c.items.Delete(k)
			return true
		}
		if !found || e.expiry.Before(oldest) {
			oldestKey, oldest, found = k, e.expiry, true
		}
		return true
	})
	if found && c.items.Size() >= c.opts.maxEntries {
		c.items.Delete(oldestKey)
	}
}

func (c *TTL[K, V]) observe(fn func()) {
	if fn != nil {
		fn()
	}
}
