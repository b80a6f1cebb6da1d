package marketplace_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/ledgerstub"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
)

var (
	alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	carol = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
)

func ether(s string) *big.Int {
	n, err := marketplace.ParseEther(s)
	if err != nil {
		panic(err)
	}
	return n
}

type fixture struct {
	ledger *ledgerstub.Ledger
	client *marketplace.Client
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Unix(1_700_000_000, 0)}
	f.ledger = ledgerstub.New(ledgerstub.WithClock(func() time.Time { return f.now }))
	for _, a := range []common.Address{alice, bob, carol} {
		f.ledger.Fund(a, ether("100"))
	}
	f.client = marketplace.New(f.ledger.Address(), f.ledger,
		marketplace.WithConfirmation(time.Millisecond, time.Second),
	)
	return f
}

func (f *fixture) mint(t *testing.T, owner common.Address, uri string) *big.Int {
	t.Helper()
	id, receipt, err := f.client.MintNFT(context.Background(), f.ledger.Account(owner), uri)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	return id
}

// gasSigner sets an explicit gas limit so reverts surface in the receipt
// rather than at submission.
type gasSigner struct {
	*ledgerstub.Account
}

func (s gasSigner) SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	msg.Gas = 300_000
	return s.Account.SendTransaction(ctx, msg)
}

func TestMintAssignsTokenIDsFromTransferLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.mint(t, alice, "ipfs://first")
	second := f.mint(t, alice, "ipfs://second")
	assert.Equal(t, int64(1), first.Int64())
	assert.Equal(t, int64(2), second.Int64())

	uri, err := f.client.GetTokenURI(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://second", uri)

	minted, err := f.client.GetMarketItem(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, alice, minted.Owner)

	mine, err := f.client.FetchMyNFTs(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "1", mine[0].TokenID.String())

	fee, err := f.client.GetMintingPrice(ctx)
	require.NoError(t, err)
	want := new(big.Int).Sub(ether("100"), new(big.Int).Mul(fee, big.NewInt(2)))
	assert.Equal(t, want.String(), f.ledger.BalanceOf(alice).String())
}

func TestBuyItemRemovesListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, alice, "ipfs://item")

	price := ether("1.5")
	_, err := f.client.ListItemForSale(ctx, f.ledger.Account(alice), id, price)
	require.NoError(t, err)

	items, err := f.client.FetchMarketItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsListed)
	assert.Equal(t, price.String(), items[0].Price.String())

	listed, err := f.client.FetchItemsListed(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	receipt, err := f.client.BuyItem(ctx, f.ledger.Account(bob), id, items[0].Price)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	items, err = f.client.FetchMarketItems(ctx)
	require.NoError(t, err)
	for _, it := range items {
		assert.NotEqual(t, id.String(), it.TokenID.String())
	}

	item, err := f.client.GetMarketItem(ctx, id)
	require.NoError(t, err)
	assert.True(t, item.Sold)
	assert.False(t, item.IsListed)
	assert.Equal(t, bob, item.Owner)
	require.NoError(t, item.Validate())
}

func TestCancelListingReturnsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, alice, "ipfs://item")

	_, err := f.client.ListItemForSale(ctx, f.ledger.Account(alice), id, ether("1"))
	require.NoError(t, err)

	_, err = f.client.CancelListing(ctx, f.ledger.Account(bob), id)
	var revert *domain.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, "Only seller can cancel listing", revert.Reason)

	_, err = f.client.CancelListing(ctx, f.ledger.Account(alice), id)
	require.NoError(t, err)

	item, err := f.client.GetMarketItem(ctx, id)
	require.NoError(t, err)
	assert.False(t, item.IsListed)
	assert.Equal(t, alice, item.Owner)
}

func TestBidBelowStartingPriceReverts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, alice, "ipfs://auction")

	_, err := f.client.CreateAuction(ctx, f.ledger.Account(alice), id, big.NewInt(500), 3600)
	require.NoError(t, err)

	auction, err := f.client.GetAuction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "500", auction.MinimumNextBid(nil).String())

	_, err = f.client.PlaceBid(ctx, f.ledger.Account(bob), id, big.NewInt(499))
	require.ErrorIs(t, err, domain.ErrContractReverted)
	var revert *domain.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, "Bid must be at least the starting price", revert.Reason)

	_, err = f.client.PlaceBid(ctx, f.ledger.Account(bob), id, big.NewInt(500))
	require.NoError(t, err)
}

func TestRevertReasonRecoveredFromFailedReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, alice, "ipfs://auction")
	_, err := f.client.CreateAuction(ctx, f.ledger.Account(alice), id, big.NewInt(500), 3600)
	require.NoError(t, err)

	receipt, err := f.client.PlaceBid(ctx, gasSigner{f.ledger.Account(bob)}, id, big.NewInt(10))
	require.ErrorIs(t, err, domain.ErrContractReverted)
	require.NotNil(t, receipt)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)

	var revert *domain.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, "Bid must be at least the starting price", revert.Reason)
}

func TestAuctionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, alice, "ipfs://auction")

	_, err := f.client.CreateAuction(ctx, f.ledger.Account(alice), id, ether("1"), 3600)
	require.NoError(t, err)

	_, err = f.client.PlaceBid(ctx, f.ledger.Account(bob), id, ether("1"))
	require.NoError(t, err)
	_, err = f.client.PlaceBid(ctx, f.ledger.Account(carol), id, ether("1"))
	require.ErrorIs(t, err, domain.ErrContractReverted)
	_, err = f.client.PlaceBid(ctx, f.ledger.Account(carol), id, ether("1.2"))
	require.NoError(t, err)

	// Outbid bidders are refunded.
	assert.Equal(t, ether("100").String(), f.ledger.BalanceOf(bob).String())

	active, err := f.client.FetchActiveAuctions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, carol, active[0].HighestBidder)
	require.NoError(t, active[0].Validate())

	_, err = f.client.EndAuction(ctx, f.ledger.Account(bob), id)
	var revert *domain.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, "Auction has not ended yet", revert.Reason)

	f.now = f.now.Add(time.Hour)
	_, err = f.client.EndAuction(ctx, f.ledger.Account(bob), id)
	require.NoError(t, err)

	auction, err := f.client.GetAuction(ctx, id)
	require.NoError(t, err)
	assert.True(t, auction.Ended)
	assert.False(t, auction.Active)
	require.NoError(t, auction.Validate())

	won, err := f.client.GetMarketItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, carol, won.Owner)

	active, err = f.client.FetchActiveAuctions(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestTransferNFT(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, alice, "ipfs://gift")

	_, err := f.client.TransferNFT(ctx, f.ledger.Account(bob), carol, id)
	require.ErrorIs(t, err, domain.ErrContractReverted)

	_, err = f.client.TransferNFT(ctx, f.ledger.Account(alice), carol, id)
	require.NoError(t, err)

	mine, err := f.client.FetchMyNFTs(ctx, carol)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, id.String(), mine[0].TokenID.String())
}

func TestMissingEntities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.GetMarketItem(ctx, big.NewInt(42))
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)

	_, err = f.client.GetAuction(ctx, big.NewInt(42))
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)

	_, err = f.client.GetTokenURI(ctx, big.NewInt(42))
	assert.ErrorIs(t, err, domain.ErrContractReverted)
}

func TestInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mint(t, alice, "ipfs://pricey")
	_, err := f.client.ListItemForSale(ctx, f.ledger.Account(alice), id, ether("1000"))
	require.NoError(t, err)

	_, err = f.client.BuyItem(ctx, f.ledger.Account(bob), id, ether("1000"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestWritesRequireSigner(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.CancelListing(context.Background(), nil, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

// countingSigner records submissions without sending them anywhere.
type countingSigner struct{ sent int }

func (s *countingSigner) Address() common.Address { return alice }

func (s *countingSigner) SendTransaction(context.Context, ethereum.CallMsg) (common.Hash, error) {
	s.sent++
	return common.HexToHash("0x01"), nil
}

func TestOutOfRangeIntegersRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tooWide := new(big.Int).Lsh(big.NewInt(1), 256)

	_, err := f.client.GetMarketItem(ctx, big.NewInt(-1))
	assert.ErrorIs(t, err, domain.ErrMalformedValue)
	_, err = f.client.GetAuction(ctx, tooWide)
	assert.ErrorIs(t, err, domain.ErrMalformedValue)

	s := &countingSigner{}
	writes := map[string]func() error{
		"cancel id": func() error {
			_, err := f.client.CancelListing(ctx, s, tooWide)
			return err
		},
		"auction start": func() error {
			_, err := f.client.CreateAuction(ctx, s, big.NewInt(1), tooWide, 60)
			return err
		},
		"buy value": func() error {
			_, err := f.client.BuyItem(ctx, s, big.NewInt(1), tooWide)
			return err
		},
		"bid value": func() error {
			_, err := f.client.PlaceBid(ctx, s, big.NewInt(1), new(big.Int).Neg(big.NewInt(5)))
			return err
		},
	}
	for name, write := range writes {
		assert.ErrorIs(t, write(), domain.ErrMalformedValue, name)
	}
	assert.Zero(t, s.sent)
}

// stubBackend serves fixed answers for confirmation edge cases.
type stubBackend struct {
	fee     *big.Int
	receipt *types.Receipt
}

func (b *stubBackend) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return marketplace.ABI().Methods["getMintingPrice"].Outputs.Pack(b.fee)
}

func (b *stubBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	if b.receipt == nil {
		return nil, ethereum.NotFound
	}
	return b.receipt, nil
}

type hashSigner struct{}

func (hashSigner) Address() common.Address { return alice }

func (hashSigner) SendTransaction(context.Context, ethereum.CallMsg) (common.Hash, error) {
	return common.HexToHash("0x01"), nil
}

func TestMintWithoutTransferLog(t *testing.T) {
	backend := &stubBackend{
		fee:     big.NewInt(1),
		receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)},
	}
	client := marketplace.New(ledgerstub.DefaultAddress, backend, marketplace.WithConfirmation(time.Millisecond, time.Second))

	_, receipt, err := client.MintNFT(context.Background(), hashSigner{}, "ipfs://x")
	assert.ErrorIs(t, err, domain.ErrTokenIDNotFound)
	assert.NotNil(t, receipt)
}

func TestConfirmTimeout(t *testing.T) {
	backend := &stubBackend{fee: big.NewInt(1)}
	client := marketplace.New(ledgerstub.DefaultAddress, backend, marketplace.WithConfirmation(time.Millisecond, 20*time.Millisecond))

	_, err := client.CancelListing(context.Background(), hashSigner{}, big.NewInt(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// tupleBackend answers each read with fixed contract tuples.
type tupleBackend struct {
	items    []marketplace.MarketItemTuple
	auctions []marketplace.AuctionTuple
}

func (b *tupleBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	parsed := marketplace.ABI()
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "fetchMarketItems":
		return method.Outputs.Pack(b.items)
	case "getMarketItem":
		return method.Outputs.Pack(b.items[0])
	case "fetchActiveAuctions":
		return method.Outputs.Pack(b.auctions)
	case "getAuction":
		return method.Outputs.Pack(b.auctions[0])
	}
	return nil, ethereum.NotFound
}

func (b *tupleBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func TestInconsistentRecordsAreRejected(t *testing.T) {
	ctx := context.Background()
	soldAndListed := marketplace.MarketItemTuple{
		TokenId: big.NewInt(1), Seller: alice, Owner: bob, Price: big.NewInt(10), Sold: true, IsListed: true,
	}
	listed := marketplace.MarketItemTuple{
		TokenId: big.NewInt(2), Seller: alice, Owner: alice, Price: big.NewInt(10), IsListed: true,
	}
	endedAndActive := marketplace.AuctionTuple{
		TokenId: big.NewInt(3), Seller: alice, StartingPrice: big.NewInt(5), HighestBid: new(big.Int),
		EndTime: big.NewInt(1), Active: true, Ended: true,
	}
	running := marketplace.AuctionTuple{
		TokenId: big.NewInt(4), Seller: alice, StartingPrice: big.NewInt(5), HighestBid: big.NewInt(6),
		HighestBidder: bob, EndTime: big.NewInt(1), Active: true,
	}
	client := marketplace.New(common.HexToAddress("0x01"), &tupleBackend{
		items:    []marketplace.MarketItemTuple{soldAndListed, listed},
		auctions: []marketplace.AuctionTuple{endedAndActive, running},
	})

	_, err := client.GetMarketItem(ctx, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrMalformedValue)
	_, err = client.GetAuction(ctx, big.NewInt(3))
	assert.ErrorIs(t, err, domain.ErrMalformedValue)

	items, err := client.FetchMarketItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].TokenID.Int64())

	auctions, err := client.FetchActiveAuctions(ctx)
	require.NoError(t, err)
	require.Len(t, auctions, 1)
	assert.Equal(t, int64(4), auctions[0].TokenID.Int64())
}
