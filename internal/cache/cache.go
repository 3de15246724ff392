package cache

import (
	"sync"
	"time"
)

// Recorder receives hit and miss notifications. *monitoring.Metrics satisfies it.
type Recorder interface {
	IncrementCacheHit()
	IncrementCacheMiss()
}

// Item represents a cached value with expiration
type Item[V any] struct {
	Value     V
	StoredAt  time.Time
	ExpiresAt time.Time
}

// IsExpired checks if the cache item has expired
func (i *Item[V]) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Cache provides thread-safe caching with TTL
type Cache[V any] struct {
	mu       sync.RWMutex
	items    map[string]*Item[V]
	ttl      time.Duration
	recorder Recorder
	now      func() time.Time

	cleanupEvery time.Duration

	hits   int64
	misses int64

	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithRecorder reports hits and misses to r
func WithRecorder[V any](r Recorder) Option[V] {
	return func(c *Cache[V]) { c.recorder = r }
}

// WithCleanupInterval overrides how often the janitor sweeps expired items
func WithCleanupInterval[V any](d time.Duration) Option[V] {
	return func(c *Cache[V]) {
		if d > 0 {
			c.cleanupEvery = d
		}
	}
}

// New creates a cache with the specified TTL and starts its janitor.
// Call Close to stop the janitor.
func New[V any](ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		items:        make(map[string]*Item[V]),
		ttl:          ttl,
		now:          time.Now,
		stop:         make(chan struct{}),
		cleanupEvery: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanup()

	return c
}

// cleanup removes expired items periodically
func (c *Cache[V]) cleanup() {
	ticker := time.NewTicker(c.cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}

// Purge drops every expired item and returns how many were removed
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if item.IsExpired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Get retrieves an item from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if exists && item.IsExpired(c.now()) {
		delete(c.items, key)
		exists = false
	}
	if !exists {
		c.misses++
		if c.recorder != nil {
			c.recorder.IncrementCacheMiss()
		}
		var zero V
		return zero, false
	}

	c.hits++
	if c.recorder != nil {
		c.recorder.IncrementCacheHit()
	}
	return item.Value, true
}

// Peek is Get without touching hit and miss counters
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || item.IsExpired(c.now()) {
		var zero V
		return zero, false
	}
	return item.Value, true
}

// Set stores an item in the cache
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.items[key] = &Item[V]{
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
}

// Delete removes an item from the cache
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[key]
	delete(c.items, key)
	return ok
}

// Clear removes all items from the cache
func (c *Cache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.items)
	c.items = make(map[string]*Item[V])
	return n
}

// Size returns the number of items in the cache
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Close stops the janitor. It is safe to call more than once.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Stats returns cache statistics
func (c *Cache[V]) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	totalItems := len(c.items)
	expiredItems := 0
	for _, item := range c.items {
		if item.IsExpired(now) {
			expiredItems++
		}
	}

	return map[string]interface{}{
		"total_items":   totalItems,
		"expired_items": expiredItems,
		"active_items":  totalItems - expiredItems,
		"ttl_seconds":   c.ttl.Seconds(),
		"hits":          c.hits,
		"misses":        c.misses,
	}
}
