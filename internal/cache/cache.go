package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/user-lookup-service/internal/models"
)

// Cache stores user records by id. Get returns (zero, false, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, id int64) (models.User, bool, error)
	Set(ctx context.Context, id int64, value models.User, ttl time.Duration) error
	Delete(ctx context.Context, id int64) error
}

// InMemoryCache is a map-backed Cache with per-entry TTL. Expired entries are
// dropped on access. Safe for concurrent use.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[int64]cacheEntry
}

type cacheEntry struct {
	value     models.User
	expiresAt time.Time
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[int64]cacheEntry),
	}
}

// Get returns the cached user for id if present and not expired.
func (c *InMemoryCache) Get(ctx context.Context, id int64) (models.User, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[id]
	if !ok {
		return models.User{}, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		delete(c.data, id)
		return models.User{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores value under id until ttl elapses.
func (c *InMemoryCache) Set(ctx context.Context, id int64, value models.User, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Delete removes id. Deleting a missing id is not an error.
func (c *InMemoryCache) Delete(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, id)
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
