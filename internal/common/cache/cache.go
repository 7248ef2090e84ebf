// Package cache provides in-memory caching with expiry
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Default expiry settings
const (
	DefaultTTL             = 10 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// Cache defines the interface for cache operations
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// LocalCache wraps patrickmn/go-cache. Expired items are never returned and
// are evicted every cleanup interval.
type LocalCache struct {
	cache *gocache.Cache
}

// NewLocalCache creates a local cache. A non-positive defaultTTL uses DefaultTTL,
// a non-positive cleanupInterval uses DefaultCleanupInterval.
func NewLocalCache(defaultTTL, cleanupInterval time.Duration) *LocalCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &LocalCache{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves an unexpired value
func (l *LocalCache) Get(ctx context.Context, key string) (interface{}, bool) {
	return l.cache.Get(key)
}

// Set stores a value. A zero ttl uses the cache default.
func (l *LocalCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	l.cache.Set(key, value, ttl)
	return nil
}

// Delete removes a value
func (l *LocalCache) Delete(ctx context.Context, key string) error {
	l.cache.Delete(key)
	return nil
}

// Clear removes all items
func (l *LocalCache) Clear(ctx context.Context) error {
	l.cache.Flush()
	return nil
}

// Len returns the number of items held, including expired items not yet evicted
func (l *LocalCache) Len() int {
	return l.cache.ItemCount()
}

// DeleteExpired evicts expired items now instead of waiting for the cleanup interval
func (l *LocalCache) DeleteExpired() {
	l.cache.DeleteExpired()
}
