package domain

import (
	"context"
	"time"
)

// Bus channels.
const (
	ChannelSession   = "ch:session"
	ChannelOperation = "ch:operation"
	ChannelAuction   = "ch:auction"
)

// ReadCache memoises ledger reads for a short time. Flush drops everything,
// which hosts do whenever the session's network changes.
type ReadCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Flush(ctx context.Context) error
}

// RateLimiter provides rate limiting keyed by caller.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// EventBus provides pub/sub fan-out of session and operation events.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
