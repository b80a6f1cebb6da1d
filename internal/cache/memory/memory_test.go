package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

func TestCache_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	c := NewCache()
	c.now = func() time.Time { return now }

	_, err := c.Get(ctx, "items")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.Set(ctx, "items", []byte("a"), time.Minute))
	got, err := c.Get(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "items")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, c.Len())
}

func TestCache_ZeroTTLAndFlush(t *testing.T) {
	ctx := context.Background()
	c := NewCache()

	require.NoError(t, c.Set(ctx, "skip", []byte("x"), 0))
	assert.Zero(t, c.Len())

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, c.Flush(ctx))
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBus_PatternDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewBus()

	all, err := b.Subscribe(ctx, "ch:*")
	require.NoError(t, err)
	ops, err := b.Subscribe(ctx, domain.ChannelOperation)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, domain.ChannelSession, []byte("s")))
	require.NoError(t, b.Publish(ctx, domain.ChannelOperation, []byte("o")))

	assert.Equal(t, []byte("s"), <-all)
	assert.Equal(t, []byte("o"), <-all)
	assert.Equal(t, []byte("o"), <-ops)
	select {
	case msg := <-ops:
		t.Fatalf("unexpected message %q", msg)
	default:
	}
}

func TestBus_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBus()
	ch, err := b.Subscribe(ctx, domain.ChannelSession)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	l := NewLimiter()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := l.Allow(ctx, "1.2.3.4", 3, time.Second)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "5.6.7.8", 3, time.Second)
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "1.2.3.4", 3, time.Second)
	assert.True(t, ok, "bucket refills")

	ok, _ = l.Allow(ctx, "any", 0, time.Second)
	assert.True(t, ok, "zero limit disables throttling")
}
