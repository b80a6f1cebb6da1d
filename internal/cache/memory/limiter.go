package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

type limiterKey struct {
	key    string
	limit  int
	window time.Duration
}

// Limiter implements domain.RateLimiter with one token bucket per key. A
// bucket admits limit requests in a burst and refills at limit per window.
type Limiter struct {
	mu       sync.Mutex
	limiters map[limiterKey]*rate.Limiter
	now      func() time.Time
}

// NewLimiter creates an empty Limiter.
func NewLimiter() *Limiter {
	return &Limiter{limiters: make(map[limiterKey]*rate.Limiter), now: time.Now}
}

// Allow reports whether one more request for key is permitted.
func (l *Limiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	return l.get(limiterKey{key: key, limit: limit, window: window}).AllowN(l.now(), 1), nil
}

func (l *Limiter) get(k limiterKey) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[k]
	if !ok {
		lim = rate.NewLimiter(rate.Every(k.window/time.Duration(k.limit)), k.limit)
		l.limiters[k] = lim
	}
	return lim
}

var _ domain.RateLimiter = (*Limiter)(nil)
