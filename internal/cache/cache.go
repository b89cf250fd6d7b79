package cache

import (
	"sync"
	"time"
)

// Cache is a concurrency-safe key/value store with per-entry expiry.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	// Update applies fn to the live value under the cache lock. fn is not called on a miss.
	Update(key K, fn func(V) V) bool
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type ttlCache[K comparable, V any] struct {
	mu    sync.Mutex
	items map[K]entry[V]
	now   func() time.Time
}

// NewTTLCache returns an in-memory cache. A zero ttl on Set means the entry never expires.
func NewTTLCache[K comparable, V any]() Cache[K, V] {
	return &ttlCache[K, V]{
		items: make(map[K]entry[V]),
		now:   time.Now,
	}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.live(key)
	if !ok {
		var zero V
		return zero, false
	}
	return item.value, true
}

func (c *ttlCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := entry[V]{value: value}
	if ttl > 0 {
		item.expiresAt = c.now().Add(ttl)
	}
	c.items[key] = item
}

func (c *ttlCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *ttlCache[K, V]) Update(key K, fn func(V) V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.live(key)
	if !ok {
		return false
	}
	item.value = fn(item.value)
	c.items[key] = item
	return true
}

// live must be called with mu held.
func (c *ttlCache[K, V]) live(key K) (entry[V], bool) {
	item, ok := c.items[key]
	if !ok {
		return item, false
	}
	if !item.expiresAt.IsZero() && !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		return item, false
	}
	return item, true
}
