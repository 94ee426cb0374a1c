// Package ttlcache provides a thread-safe, size-bounded TTL cache
// with singleflight deduplication for concurrent loads of the same key.
package ttlcache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Cache is a thread-safe TTL cache keyed by string.
// Concurrent loads for the same key are deduplicated:
// only one load runs, and all waiters receive its result.
// Errors are cached like values.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*entry[V]
	ttl        time.Duration
	maxEntries int
	seq        uint64
	// now is injectable for testing
	now func() time.Time
}

type entry[V any] struct {
	value   V
	err     error
	expires time.Time
	seq     uint64        // insertion order, used for oldest-first eviction
	done    chan struct{} // closed when the load is complete
}

// New creates a cache with the given TTL.
// maxEntries <= 0 disables the size bound.
func New[V any](ttl time.Duration, maxEntries int) *Cache[V] {
	return &Cache[V]{
		entries:    make(map[string]*entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// SetClock overrides the time source (for testing).
func (c *Cache[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached value for key, calling load when the key is
// missing or expired. While a load is in flight, other callers for the
// same key wait for it instead of starting their own.
func (c *Cache[V]) Get(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	c.mu.Lock()

	if e, ok := c.entries[key]; ok {
		select {
		case <-e.done:
			if c.now().Before(e.expires) {
				c.mu.Unlock()
				return e.value, e.err
			}
			// Expired, fall through to refresh
		default:
			c.mu.Unlock()
			select {
			case <-e.done:
				return e.value, e.err
			case <-ctx.Done():
				var zero V
				return zero, ctx.Err()
			}
		}
	}

	c.seq++
	e := &entry[V]{done: make(chan struct{}), seq: c.seq}
	c.entries[key] = e
	c.evictLocked()
	c.mu.Unlock()

	c.fill(ctx, key, e, load)
	return e.value, e.err
}

// fill runs load and publishes its result. A panicking load is turned
// into an error and the entry is dropped so the next caller retries.
func (c *Cache[V]) fill(ctx context.Context, key string, e *entry[V], load func(ctx context.Context) (V, error)) {
	defer func() {
		if r := recover(); r != nil {
			e.err = fmt.Errorf("ttlcache: load %q panicked: %v", key, r)
			c.mu.Lock()
			if c.entries[key] == e {
				delete(c.entries, key)
			}
			c.mu.Unlock()
		}
		c.mu.Lock()
		e.expires = c.now().Add(c.ttl)
		c.mu.Unlock()
		close(e.done)
	}()
	e.value, e.err = load(ctx)
}

// evictLocked enforces the size bound: expired entries go first,
// then the oldest completed entries. In-flight loads are never evicted.
// Must be called with c.mu held.
func (c *Cache[V]) evictLocked() {
	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return
	}

	now := c.now()
	type candidate struct {
		key string
		seq uint64
	}
	var done []candidate
	for k, e := range c.entries {
		if !isDone(e.done) {
			continue
		}
		if !now.Before(e.expires) {
			delete(c.entries, k)
			continue
		}
		done = append(done, candidate{key: k, seq: e.seq})
	}

	excess := len(c.entries) - c.maxEntries
	if excess <= 0 {
		return
	}
	sort.Slice(done, func(i, j int) bool { return done[i].seq < done[j].seq })
	for i := 0; i < excess && i < len(done); i++ {
		delete(c.entries, done[i].key)
	}
}

// Len returns the number of entries in the cache (for diagnostics).
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func isDone(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
