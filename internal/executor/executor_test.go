package executor

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/wallet"
)

var bidder = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

// fakeLedger answers every write with a receipt, optionally blocking bids
// until released.
type fakeLedger struct {
	bidStarted chan struct{}
	bidRelease chan struct{}
	err        error
}

func (f *fakeLedger) receipt() (*types.Receipt, error) {
	r := &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0xabc")}
	return r, f.err
}

func (f *fakeLedger) MintNFT(context.Context, marketplace.Signer, string) (*big.Int, *types.Receipt, error) {
	r, err := f.receipt()
	return big.NewInt(9), r, err
}

func (f *fakeLedger) ListItemForSale(context.Context, marketplace.Signer, *big.Int, *big.Int) (*types.Receipt, error) {
	return f.receipt()
}

func (f *fakeLedger) CancelListing(context.Context, marketplace.Signer, *big.Int) (*types.Receipt, error) {
	return f.receipt()
}

func (f *fakeLedger) BuyItem(context.Context, marketplace.Signer, *big.Int, *big.Int) (*types.Receipt, error) {
	return f.receipt()
}

func (f *fakeLedger) CreateAuction(context.Context, marketplace.Signer, *big.Int, *big.Int, uint64) (*types.Receipt, error) {
	return f.receipt()
}

func (f *fakeLedger) PlaceBid(context.Context, marketplace.Signer, *big.Int, *big.Int) (*types.Receipt, error) {
	if f.bidStarted != nil {
		f.bidStarted <- struct{}{}
		<-f.bidRelease
	}
	return f.receipt()
}

func (f *fakeLedger) EndAuction(context.Context, marketplace.Signer, *big.Int) (*types.Receipt, error) {
	return f.receipt()
}

func (f *fakeLedger) TransferNFT(context.Context, marketplace.Signer, common.Address, *big.Int) (*types.Receipt, error) {
	return f.receipt()
}

type fakeIdentity struct{ connected bool }

func (f fakeIdentity) Session() domain.WalletSession {
	if !f.connected {
		return domain.WalletSession{}
	}
	return domain.WalletSession{Account: "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", ChainID: 31337}
}

func (f fakeIdentity) Signer() (*wallet.ProviderSigner, error) {
	if !f.connected {
		return nil, domain.ErrNotConnected
	}
	return wallet.NewProviderSigner(nil, bidder), nil
}

type memJournal struct {
	mu      sync.Mutex
	records map[string]domain.OperationRecord
}

func (j *memJournal) Create(_ context.Context, rec domain.OperationRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records[rec.ID] = rec
	return nil
}

func (j *memJournal) Finish(_ context.Context, id string, status domain.OperationStatus, txHash, errKind, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec := j.records[id]
	rec.Status, rec.TxHash, rec.ErrorKind, rec.Error = status, txHash, errKind, errMsg
	j.records[id] = rec
	return nil
}

func (j *memJournal) GetByID(_ context.Context, id string) (domain.OperationRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records[id], nil
}

func (j *memJournal) ListRecent(context.Context, domain.ListOpts) ([]domain.OperationRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.OperationRecord, 0, len(j.records))
	for _, r := range j.records {
		out = append(out, r)
	}
	return out, nil
}

func (j *memJournal) ListByAccount(ctx context.Context, _ string, opts domain.ListOpts) ([]domain.OperationRecord, error) {
	return j.ListRecent(ctx, opts)
}

type memBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *memBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

type memNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *memNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type memMetrics struct {
	mu       sync.Mutex
	outcomes []string
	rejected int
}

func (m *memMetrics) ObserveOperation(kind domain.OpKind, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, string(kind)+":"+outcome)
}

func (m *memMetrics) RejectOperation(domain.OpKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

func TestConcurrentBidRejected(t *testing.T) {
	ledger := &fakeLedger{bidStarted: make(chan struct{}), bidRelease: make(chan struct{})}
	e := New(ledger, fakeIdentity{connected: true}, nil)
	journal := &memJournal{records: map[string]domain.OperationRecord{}}
	metrics := &memMetrics{}
	e.SetJournal(journal)
	e.SetMetrics(metrics)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := e.PlaceBid(ctx, big.NewInt(5), big.NewInt(1000))
		done <- err
	}()
	<-ledger.bidStarted

	_, err := e.PlaceBid(ctx, big.NewInt(5), big.NewInt(2000))
	assert.ErrorIs(t, err, domain.ErrOperationInProgress)

	// A different token is not blocked.
	_, err = e.Buy(ctx, big.NewInt(6), big.NewInt(1))
	require.NoError(t, err)

	ledger.bidRelease <- struct{}{}
	require.NoError(t, <-done)

	go func() { <-ledger.bidStarted; ledger.bidRelease <- struct{}{} }()
	_, err = e.PlaceBid(ctx, big.NewInt(5), big.NewInt(3000))
	require.NoError(t, err, "accepted again once the first bid completed")

	assert.Equal(t, 1, metrics.rejected)
	assert.Len(t, metrics.outcomes, 3)
	recs, err := journal.ListRecent(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, recs, 3, "rejected attempts are not journaled")
	for _, r := range recs {
		assert.Equal(t, domain.OperationConfirmed, r.Status)
		assert.Equal(t, uint64(31337), r.ChainID)
	}
}

func TestFailuresAreJournaledAndAnnounced(t *testing.T) {
	ledger := &fakeLedger{err: domain.NewRevertError("Auction has ended")}
	e := New(ledger, fakeIdentity{connected: true}, nil)
	journal := &memJournal{records: map[string]domain.OperationRecord{}}
	bus := &memBus{}
	notifier := &memNotifier{}
	e.SetJournal(journal)
	e.SetEventBus(bus)
	e.SetNotifier(notifier)

	_, err := e.PlaceBid(context.Background(), big.NewInt(2), big.NewInt(10))
	require.ErrorIs(t, err, domain.ErrContractReverted)

	recs, _ := journal.ListRecent(context.Background(), domain.ListOpts{})
	require.Len(t, recs, 1)
	assert.Equal(t, domain.OperationFailed, recs[0].Status)
	assert.Equal(t, "contract_reverted", recs[0].ErrorKind)
	assert.Equal(t, common.HexToHash("0xabc").Hex(), recs[0].TxHash)

	require.Len(t, bus.payloads, 1)
	var published domain.OperationRecord
	require.NoError(t, json.Unmarshal(bus.payloads[0], &published))
	assert.Equal(t, domain.OpPlaceBid, published.Kind)
	assert.Equal(t, "2", published.Entity)

	assert.Equal(t, []string{EventOperationFailed}, notifier.events)
}

func TestConfirmationsNotify(t *testing.T) {
	e := New(&fakeLedger{}, fakeIdentity{connected: true}, nil)
	notifier := &memNotifier{}
	e.SetNotifier(notifier)
	ctx := context.Background()

	id, _, err := e.Mint(ctx, "ipfs://QmX")
	require.NoError(t, err)
	assert.Equal(t, int64(9), id.Int64())
	_, err = e.Buy(ctx, big.NewInt(1), big.NewInt(1))
	require.NoError(t, err)
	_, err = e.PlaceBid(ctx, big.NewInt(1), big.NewInt(1))
	require.NoError(t, err)
	_, err = e.EndAuction(ctx, big.NewInt(1))
	require.NoError(t, err)
	_, err = e.List(ctx, big.NewInt(1), big.NewInt(1))
	require.NoError(t, err)

	assert.Equal(t, []string{EventNFTMinted, EventPurchaseConfirmed, EventBidPlaced, EventAuctionEnded}, notifier.events)
}

func TestUserRejectionIsQuiet(t *testing.T) {
	e := New(&fakeLedger{err: domain.ErrUserRejected}, fakeIdentity{connected: true}, nil)
	notifier := &memNotifier{}
	e.SetNotifier(notifier)

	_, err := e.CancelListing(context.Background(), big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrUserRejected)
	assert.Empty(t, notifier.events)
}

func TestRequiresConnectedWallet(t *testing.T) {
	e := New(&fakeLedger{}, fakeIdentity{}, nil)
	_, err := e.Transfer(context.Background(), bidder, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Empty(t, e.Serializer().InFlight())
}

func TestMissingTokenID(t *testing.T) {
	e := New(&fakeLedger{}, fakeIdentity{connected: true}, nil)
	_, err := e.EndAuction(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrMalformedValue)
}
