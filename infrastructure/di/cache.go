package di

import (
	"context"
	"sync"
	"time"
)

// cacheSweepInterval is how often expired entries are swept out
const cacheSweepInterval = time.Minute

// InMemoryCache backs the mind-map read-through cache. Entries expire by
// TTL; expired entries are dropped eagerly on read and swept periodically
// so an idle process does not hold stale payloads.
type InMemoryCache struct {
	mu    sync.RWMutex
	items map[string]cacheEntry
}

type cacheEntry struct {
	value    interface{}
	deadline int64 // unix nanoseconds
}

// NewInMemoryCache creates a new in-memory cache
func NewInMemoryCache() *InMemoryCache {
	cache := &InMemoryCache{
		items: make(map[string]cacheEntry),
	}

	go cache.sweep()

	return cache
}

// Get retrieves a value from cache
func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if time.Now().UnixNano() > entry.deadline {
		c.mu.Lock()
		// Re-check under the write lock; a Set may have raced the expiry
		if current, ok := c.items[key]; ok && current.deadline == entry.deadline {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.value, true
}

// Set stores a value in cache with TTL in seconds
func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}, ttl int) error {
	deadline := time.Now().Add(time.Duration(ttl) * time.Second).UnixNano()

	c.mu.Lock()
	c.items[key] = cacheEntry{value: value, deadline: deadline}
	c.mu.Unlock()

	return nil
}

// Delete removes a value from cache
func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Clear removes all values from cache
func (c *InMemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.items = make(map[string]cacheEntry)
	c.mu.Unlock()
	return nil
}

func (c *InMemoryCache) sweep() {
	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now().UnixNano()
		c.mu.Lock()
		for key, entry := range c.items {
			if now > entry.deadline {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}
