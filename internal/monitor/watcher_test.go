package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/cache/memory"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

type fakeReader struct {
	mu       sync.Mutex
	auctions []domain.Auction
	items    []domain.MarketItem
	err      error
}

func (f *fakeReader) FetchMarketItems(context.Context) ([]domain.MarketItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items, nil
}

func (f *fakeReader) FetchActiveAuctions(context.Context) ([]domain.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auctions, f.err
}

type fakeEnder struct {
	calls []string
	err   error
}

func (f *fakeEnder) EndAuction(_ context.Context, id *big.Int) (*types.Receipt, error) {
	f.calls = append(f.calls, id.String())
	if f.err != nil {
		return nil, f.err
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

type fakeNotifier struct {
	events   []string
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, message string) error {
	f.events = append(f.events, event)
	f.messages = append(f.messages, message)
	return nil
}

type fakeArchiver struct {
	calls int
	err   error
}

func (f *fakeArchiver) ArchiveSnapshot(context.Context, []domain.MarketItem, []domain.Auction, time.Time) (string, error) {
	f.calls++
	return "snapshots/1/x.json", f.err
}

type fakeGauges struct {
	active    int
	snapshots []error
}

func (f *fakeGauges) SetActiveAuctions(n int)   { f.active = n }
func (f *fakeGauges) ObserveSnapshot(err error) { f.snapshots = append(f.snapshots, err) }

var epoch = time.Unix(1_700_000_000, 0)

func auction(id int64, end time.Time, bid int64) domain.Auction {
	a := domain.Auction{
		TokenID:       big.NewInt(id),
		Seller:        common.HexToAddress("0x0a"),
		StartingPrice: big.NewInt(100),
		HighestBid:    big.NewInt(bid),
		EndTime:       big.NewInt(end.Unix()),
		Active:        true,
	}
	if bid > 0 {
		a.HighestBidder = common.HexToAddress("0x0b")
	}
	return a
}

func newWatcher(r Reader, cfg Config) *Watcher {
	w := New(r, cfg, nil)
	w.now = func() time.Time { return epoch }
	return w
}

func TestTick_NotifiesEndedAuctionOnce(t *testing.T) {
	r := &fakeReader{auctions: []domain.Auction{
		auction(1, epoch.Add(-time.Minute), 150),
		auction(2, epoch.Add(time.Hour), 0),
	}}
	n := &fakeNotifier{}
	g := &fakeGauges{}
	w := newWatcher(r, Config{})
	w.SetNotifier(n)
	w.SetMetrics(g)

	require.NoError(t, w.Tick(context.Background()))
	require.NoError(t, w.Tick(context.Background()))

	assert.Equal(t, []string{EventAuctionEnded}, n.events)
	assert.Contains(t, n.messages[0], "token #1")
	assert.Contains(t, n.messages[0], "0.00000000000000015 ETH")
	assert.Equal(t, 2, g.active)
}

func TestTick_ReannouncesAfterAuctionLeavesActiveSet(t *testing.T) {
	r := &fakeReader{auctions: []domain.Auction{auction(1, epoch.Add(-time.Second), 0)}}
	n := &fakeNotifier{}
	w := newWatcher(r, Config{})
	w.SetNotifier(n)

	require.NoError(t, w.Tick(context.Background()))
	r.auctions = nil
	require.NoError(t, w.Tick(context.Background()))
	r.auctions = []domain.Auction{auction(1, epoch.Add(-time.Second), 0)}
	require.NoError(t, w.Tick(context.Background()))

	assert.Len(t, n.events, 2)
	assert.Contains(t, n.messages[0], "no bids")
}

func TestTick_AutoEnd(t *testing.T) {
	r := &fakeReader{auctions: []domain.Auction{
		auction(1, epoch.Add(-time.Minute), 0),
		auction(2, epoch.Add(time.Minute), 0),
	}}
	e := &fakeEnder{}
	w := newWatcher(r, Config{AutoEnd: true})
	w.SetEnder(e)

	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, []string{"1"}, e.calls)

	e.err = domain.ErrOperationInProgress
	require.NoError(t, w.Tick(context.Background()), "in-flight ends are skipped")

	disabled := newWatcher(r, Config{AutoEnd: false})
	other := &fakeEnder{}
	disabled.SetEnder(other)
	require.NoError(t, disabled.Tick(context.Background()))
	assert.Empty(t, other.calls)
}

func TestTick_PublishesAuctionEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := memory.NewBus()
	ch, err := bus.Subscribe(ctx, domain.ChannelAuction)
	require.NoError(t, err)

	w := newWatcher(&fakeReader{auctions: []domain.Auction{auction(9, epoch, 200)}}, Config{})
	w.SetEventBus(bus)
	require.NoError(t, w.Tick(ctx))

	var ev AuctionEndedEvent
	require.NoError(t, json.Unmarshal(<-ch, &ev))
	assert.Equal(t, "9", ev.TokenID)
	assert.Equal(t, "200", ev.HighestBid)
	assert.Equal(t, "0x000000000000000000000000000000000000000b", ev.HighestBidder)
}

func TestTick_SnapshotsEveryN(t *testing.T) {
	a := &fakeArchiver{}
	g := &fakeGauges{}
	w := newWatcher(&fakeReader{}, Config{SnapshotEvery: 2})
	w.SetArchiver(a)
	w.SetMetrics(g)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Tick(context.Background()))
	}
	assert.Equal(t, 2, a.calls)
	assert.Len(t, g.snapshots, 2)

	a.err = errors.New("bucket missing")
	require.NoError(t, w.Tick(context.Background()))
	require.Len(t, g.snapshots, 3)
	assert.Error(t, g.snapshots[2])
}

func TestTick_FetchError(t *testing.T) {
	w := newWatcher(&fakeReader{err: domain.ErrNetworkError}, Config{})
	err := w.Tick(context.Background())
	assert.ErrorIs(t, err, domain.ErrNetworkError)
}

func TestRun_StopsOnCancel(t *testing.T) {
	r := &fakeReader{}
	w := newWatcher(r, Config{Interval: time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
