// Package memory provides in-process implementations of the domain cache,
// bus and rate-limit ports for single-instance deployments without Redis.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Cache is a map-backed domain.ReadCache. Expired entries are dropped lazily
// on read.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]entry), now: time.Now}
}

// Get returns a copy of the value stored under key, or domain.ErrNotFound.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores value for ttl. A non-positive ttl is a no-op.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.entries[key] = entry{value: append([]byte(nil), value...), expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Flush drops every entry.
func (c *Cache) Flush(context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var _ domain.ReadCache = (*Cache)(nil)
