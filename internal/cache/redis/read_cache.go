package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

const flushBatch = 500

// ReadCache implements domain.ReadCache with plain string keys under
// {namespace}:cache:. Values are opaque bytes; callers choose the encoding.
type ReadCache struct {
	c *Client
}

// NewReadCache creates a ReadCache backed by the given Client.
func NewReadCache(c *Client) *ReadCache {
	return &ReadCache{c: c}
}

// Get returns the cached value for key, or domain.ErrNotFound.
func (rc *ReadCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := rc.c.rdb.Get(ctx, rc.c.key("cache", key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: cache get %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key for ttl. A non-positive ttl is a no-op so that
// callers can disable caching through configuration.
func (rc *ReadCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := rc.c.rdb.Set(ctx, rc.c.key("cache", key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: cache set %s: %w", key, err)
	}
	return nil
}

// Flush deletes every cached entry in the namespace.
func (rc *ReadCache) Flush(ctx context.Context) error {
	pattern := rc.c.key("cache", "*")
	var cursor uint64
	for {
		keys, next, err := rc.c.rdb.Scan(ctx, cursor, pattern, flushBatch).Result()
		if err != nil {
			return fmt.Errorf("redis: cache flush scan: %w", err)
		}
		if len(keys) > 0 {
			pipe := rc.c.rdb.TxPipeline()
			pipe.Unlink(ctx, keys...)
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("redis: cache flush delete: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Compile-time interface check.
var _ domain.ReadCache = (*ReadCache)(nil)
