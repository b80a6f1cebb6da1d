package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

// PendingOperation is an operation holding its key.
type PendingOperation struct {
	Key   domain.OpKey `json:"key"`
	Since time.Time    `json:"since"`
}

// Serializer admits at most one in-flight operation per key. A second
// caller is turned away with domain.ErrOperationInProgress rather than
// queued. It is safe for concurrent use.
type Serializer struct {
	mu      sync.Mutex
	pending map[domain.OpKey]time.Time
	locks   domain.LockManager
	lockTTL time.Duration
	now     func() time.Time
}

// NewSerializer creates an in-process Serializer.
func NewSerializer() *Serializer {
	return &Serializer{
		pending: make(map[domain.OpKey]time.Time),
		now:     time.Now,
	}
}

// SetLockManager additionally takes a distributed lock per key, so several
// processes sharing one wallet cannot double-submit either. ttl bounds how
// long a crashed holder can block the key.
func (s *Serializer) SetLockManager(lm domain.LockManager, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = lm
	s.lockTTL = ttl
}

// Acquire claims key. The returned release must be called exactly once;
// extra calls are no-ops.
func (s *Serializer) Acquire(ctx context.Context, key domain.OpKey) (release func(), err error) {
	s.mu.Lock()
	if _, busy := s.pending[key]; busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("executor: %s: %w", key, domain.ErrOperationInProgress)
	}
	s.pending[key] = s.now()
	locks, ttl := s.locks, s.lockTTL
	s.mu.Unlock()

	drop := func() {
		s.mu.Lock()
		delete(s.pending, key)
		s.mu.Unlock()
	}

	unlock := func() {}
	if locks != nil {
		u, err := locks.Acquire(ctx, "op:"+key.String(), ttl)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			drop()
			return nil, fmt.Errorf("executor: %s: %w", key, domain.ErrOperationInProgress)
		case err != nil:
			drop()
			return nil, fmt.Errorf("executor: %s: distributed lock: %w", key, err)
		}
		unlock = u
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlock()
			drop()
		})
	}, nil
}

// InFlight lists the keys currently held, oldest first.
func (s *Serializer) InFlight() []PendingOperation {
	s.mu.Lock()
	out := make([]PendingOperation, 0, len(s.pending))
	for k, since := range s.pending {
		out = append(out, PendingOperation{Key: k, Since: since})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].Key.String() < out[j].Key.String()
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}

// Run executes fn while holding key. The key is released before Run
// returns, so a follow-up call with the same key is always admitted.
func Run[T any](ctx context.Context, s *Serializer, key domain.OpKey, fn func(context.Context) (T, error)) (T, error) {
	release, err := s.Acquire(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return fn(ctx)
}
