package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a typed TTL cache with explicit invalidation and a read-through
// Resolve that degrades to serving a stale value when the origin errors.
type Cache[V any] struct {
	mtx     sync.RWMutex
	ttl     time.Duration
	entries map[string]entry[V]
}

// New returns an empty cache whose entries stay fresh for the given ttl
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:     ttl,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the value for key if present and still fresh
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Since(e.storedAt) > c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores the value for key, resetting its freshness window
func (c *Cache[V]) Set(key string, value V) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.entries[key] = entry[V]{value: value, storedAt: time.Now()}
}

// Invalidate drops the entry for key, if any
func (c *Cache[V]) Invalidate(key string) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	delete(c.entries, key)
}

// Resolve serves key through the cache. A fresh entry is returned directly
// unless bypass is set. On a miss (or bypass) the origin is queried and the
// result cached. If the origin errors while any previously cached value
// exists, that value is returned flagged as stale instead of failing hard.
func (c *Cache[V]) Resolve(
	ctx context.Context, key string, bypass bool,
	fetch func(ctx context.Context) (V, error),
) (value V, stale bool, err error) {
	if !bypass {
		if cached, ok := c.Get(key); ok {
			return cached, false, nil
		}
	}

	fetched, fetchErr := fetch(ctx)
	if fetchErr == nil {
		c.Set(key, fetched)
		return fetched, false, nil
	}

	c.mtx.RLock()
	e, ok := c.entries[key]
	c.mtx.RUnlock()
	if ok {
		return e.value, true, nil
	}

	var zero V
	return zero, false, fetchErr
}
