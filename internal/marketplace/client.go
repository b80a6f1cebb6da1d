package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
)

// Backend is the read-only ledger connection. *ethclient.Client satisfies it.
type Backend interface {
	ethereum.ContractCaller
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Signer is the identity that submits writes. It must sign with the key of
// Address().
type Signer interface {
	Address() common.Address
	SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error)
}

// Client talks to one deployed marketplace contract.
type Client struct {
	address        common.Address
	backend        Backend
	logger         *slog.Logger
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithConfirmation sets how often receipts are polled and how long a write
// waits for one before giving up.
func WithConfirmation(pollInterval, timeout time.Duration) Option {
	return func(c *Client) {
		if pollInterval > 0 {
			c.pollInterval = pollInterval
		}
		if timeout > 0 {
			c.confirmTimeout = timeout
		}
	}
}

// New creates a Client for the contract at address.
func New(address common.Address, backend Backend, opts ...Option) *Client {
	c := &Client{
		address:        address,
		backend:        backend,
		logger:         slog.Default(),
		pollInterval:   time.Second,
		confirmTimeout: 3 * time.Minute,
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With(slog.String("component", "marketplace"))
	return c
}

// Address returns the contract address.
func (c *Client) Address() common.Address { return c.address }

// ---------- reads ----------

// FetchMarketItems returns every item currently listed for sale.
func (c *Client) FetchMarketItems(ctx context.Context) ([]domain.MarketItem, error) {
	return c.fetchItems(ctx, common.Address{}, "fetchMarketItems")
}

// FetchMyNFTs returns the items owned by identity.
func (c *Client) FetchMyNFTs(ctx context.Context, identity common.Address) ([]domain.MarketItem, error) {
	return c.fetchItems(ctx, identity, "fetchMyNFTs")
}

// FetchItemsListed returns the items identity has listed.
func (c *Client) FetchItemsListed(ctx context.Context, identity common.Address) ([]domain.MarketItem, error) {
	return c.fetchItems(ctx, identity, "fetchItemsListed")
}

func (c *Client) fetchItems(ctx context.Context, from common.Address, method string) ([]domain.MarketItem, error) {
	out, err := c.call(ctx, from, method)
	if err != nil {
		return nil, err
	}
	tuples := *abi.ConvertType(out[0], new([]MarketItemTuple)).(*[]MarketItemTuple)
	items := make([]domain.MarketItem, 0, len(tuples))
	for _, t := range tuples {
		item, err := t.toDomain()
		if err != nil {
			c.skipRecord(ctx, method, err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// FetchActiveAuctions returns every auction still accepting bids.
func (c *Client) FetchActiveAuctions(ctx context.Context) ([]domain.Auction, error) {
	out, err := c.call(ctx, common.Address{}, "fetchActiveAuctions")
	if err != nil {
		return nil, err
	}
	tuples := *abi.ConvertType(out[0], new([]AuctionTuple)).(*[]AuctionTuple)
	auctions := make([]domain.Auction, 0, len(tuples))
	for _, t := range tuples {
		a, err := t.toDomain()
		if err != nil {
			c.skipRecord(ctx, "fetchActiveAuctions", err)
			continue
		}
		auctions = append(auctions, a)
	}
	return auctions, nil
}

// GetMarketItem looks up one token's sale record.
func (c *Client) GetMarketItem(ctx context.Context, tokenID *big.Int) (domain.MarketItem, error) {
	out, err := c.call(ctx, common.Address{}, "getMarketItem", tokenID)
	if err != nil {
		return domain.MarketItem{}, err
	}
	item, err := abi.ConvertType(out[0], new(MarketItemTuple)).(*MarketItemTuple).toDomain()
	if err != nil {
		return domain.MarketItem{}, fmt.Errorf("marketplace: getMarketItem: %w", err)
	}
	if !item.Exists() {
		return domain.MarketItem{}, fmt.Errorf("marketplace: market item %s: %w", tokenID, domain.ErrEntityNotFound)
	}
	return item, nil
}

// GetAuction looks up one token's auction.
func (c *Client) GetAuction(ctx context.Context, tokenID *big.Int) (domain.Auction, error) {
	out, err := c.call(ctx, common.Address{}, "getAuction", tokenID)
	if err != nil {
		return domain.Auction{}, err
	}
	a, err := abi.ConvertType(out[0], new(AuctionTuple)).(*AuctionTuple).toDomain()
	if err != nil {
		return domain.Auction{}, fmt.Errorf("marketplace: getAuction: %w", err)
	}
	if !a.Exists() {
		return domain.Auction{}, fmt.Errorf("marketplace: auction %s: %w", tokenID, domain.ErrEntityNotFound)
	}
	return a, nil
}

// skipRecord drops a listed record that does not decode or breaks its
// invariants, so one bad entry does not hide the rest of the market.
func (c *Client) skipRecord(ctx context.Context, method string, err error) {
	c.logger.WarnContext(ctx, "skipping inconsistent ledger record",
		slog.String("method", method),
		slog.String("error", err.Error()),
	)
}

// GetTokenURI returns the metadata pointer of a token.
func (c *Client) GetTokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	out, err := c.call(ctx, common.Address{}, "tokenURI", tokenID)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// GetListingPrice returns the fee charged to list an item.
func (c *Client) GetListingPrice(ctx context.Context) (*big.Int, error) {
	return c.callInt(ctx, "getListingPrice")
}

// GetMintingPrice returns the fee charged to mint.
func (c *Client) GetMintingPrice(ctx context.Context) (*big.Int, error) {
	return c.callInt(ctx, "getMintingPrice")
}

func (c *Client) callInt(ctx context.Context, method string) (*big.Int, error) {
	out, err := c.call(ctx, common.Address{}, method)
	if err != nil {
		return nil, err
	}
	n, err := normalize.WideInt(out[0])
	if err != nil {
		return nil, fmt.Errorf("marketplace: %s: %w", method, err)
	}
	return n, nil
}

func (c *Client) call(ctx context.Context, from common.Address, method string, args ...any) ([]any, error) {
	data, err := pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("marketplace: pack %s: %w: %w", method, domain.ErrMalformedValue, err)
	}
	msg := ethereum.CallMsg{From: from, To: &c.address, Data: data}
	raw, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("marketplace: %s: %w", method, classify(err))
	}
	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("marketplace: unpack %s: %w: %w", method, domain.ErrMalformedValue, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("marketplace: %s returned no values: %w", method, domain.ErrMalformedValue)
	}
	return out, nil
}

// pack encodes a call. Integer arguments must fit a uint256 word; the ABI
// encoder would otherwise truncate them silently.
func pack(method string, args ...any) ([]byte, error) {
	for i, a := range args {
		if n, ok := a.(*big.Int); ok {
			if _, err := normalize.Uint256(n); err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
		}
	}
	return contractABI.Pack(method, args...)
}

// ---------- writes ----------

// MintNFT mints a token pointing at tokenURI, paying the minting fee, and
// returns the id the ledger assigned.
func (c *Client) MintNFT(ctx context.Context, s Signer, tokenURI string) (*big.Int, *types.Receipt, error) {
	fee, err := c.GetMintingPrice(ctx)
	if err != nil {
		return nil, nil, err
	}
	receipt, err := c.transact(ctx, s, fee, "mintNFT", tokenURI)
	if err != nil {
		return nil, receipt, err
	}
	id, err := c.mintedTokenID(receipt, s.Address())
	if err != nil {
		return nil, receipt, err
	}
	return id, receipt, nil
}

// ListItemForSale lists a token at price wei, paying the listing fee.
func (c *Client) ListItemForSale(ctx context.Context, s Signer, tokenID, price *big.Int) (*types.Receipt, error) {
	fee, err := c.GetListingPrice(ctx)
	if err != nil {
		return nil, err
	}
	return c.transact(ctx, s, fee, "listItemForSale", tokenID, price)
}

// CancelListing withdraws a listing.
func (c *Client) CancelListing(ctx context.Context, s Signer, tokenID *big.Int) (*types.Receipt, error) {
	return c.transact(ctx, s, nil, "cancelListing", tokenID)
}

// BuyItem buys a listed token, sending price wei.
func (c *Client) BuyItem(ctx context.Context, s Signer, tokenID, price *big.Int) (*types.Receipt, error) {
	return c.transact(ctx, s, price, "buyItem", tokenID)
}

// CreateAuction starts an auction lasting durationSeconds.
func (c *Client) CreateAuction(ctx context.Context, s Signer, tokenID, startingPrice *big.Int, durationSeconds uint64) (*types.Receipt, error) {
	return c.transact(ctx, s, nil, "createAuction", tokenID, startingPrice, new(big.Int).SetUint64(durationSeconds))
}

// PlaceBid bids amount wei. The ledger alone decides whether the bid is
// high enough.
func (c *Client) PlaceBid(ctx context.Context, s Signer, tokenID, amount *big.Int) (*types.Receipt, error) {
	return c.transact(ctx, s, amount, "placeBid", tokenID)
}

// EndAuction settles an auction whose end time has passed.
func (c *Client) EndAuction(ctx context.Context, s Signer, tokenID *big.Int) (*types.Receipt, error) {
	return c.transact(ctx, s, nil, "endAuction", tokenID)
}

// TransferNFT moves a token to another account.
func (c *Client) TransferNFT(ctx context.Context, s Signer, to common.Address, tokenID *big.Int) (*types.Receipt, error) {
	return c.transact(ctx, s, nil, "transferNFT", to, tokenID)
}

// transact submits a write and waits for its receipt. A reverted receipt is
// returned alongside a *domain.RevertError.
func (c *Client) transact(ctx context.Context, s Signer, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	if s == nil {
		return nil, fmt.Errorf("marketplace: %s: %w", method, domain.ErrNotConnected)
	}
	data, err := pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("marketplace: pack %s: %w: %w", method, domain.ErrMalformedValue, err)
	}
	if value != nil {
		if _, err := normalize.Uint256(value); err != nil {
			return nil, fmt.Errorf("marketplace: %s: value: %w", method, err)
		}
	}
	msg := ethereum.CallMsg{From: s.Address(), To: &c.address, Value: value, Data: data}

	hash, err := s.SendTransaction(ctx, msg)
	if err != nil {
		err = classify(err)
		c.logger.WarnContext(ctx, "transaction rejected",
			slog.String("method", method),
			slog.String("from", s.Address().Hex()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("marketplace: %s: %w", method, err)
	}
	c.logger.InfoContext(ctx, "transaction submitted",
		slog.String("method", method),
		slog.String("hash", hash.Hex()),
	)

	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("marketplace: %s: wait for %s: %w", method, hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := c.replay(ctx, msg, receipt.BlockNumber)
		c.logger.WarnContext(ctx, "transaction reverted",
			slog.String("method", method),
			slog.String("hash", hash.Hex()),
			slog.String("reason", reason),
		)
		return receipt, fmt.Errorf("marketplace: %s: %w", method, domain.NewRevertError(reason))
	}
	c.logger.InfoContext(ctx, "transaction confirmed",
		slog.String("method", method),
		slog.String("hash", hash.Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return receipt, nil
}

// waitMined polls for the receipt of hash until it appears, the confirm
// timeout elapses, or ctx is done. The transaction itself is not cancelled.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, classify(err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// replay re-executes a failed write as a call at its block to recover the
// revert reason. An empty string means none was available.
func (c *Client) replay(ctx context.Context, msg ethereum.CallMsg, block *big.Int) string {
	_, err := c.backend.CallContract(ctx, msg, block)
	if err == nil {
		return ""
	}
	reason, _ := RevertReason(err)
	return reason
}

// mintedTokenID scans the receipt for the contract's Transfer event,
// preferring the mint (from the zero address) to minter.
func (c *Client) mintedTokenID(receipt *types.Receipt, minter common.Address) (*big.Int, error) {
	transferID := contractABI.Events["Transfer"].ID
	var fallback *big.Int
	for _, lg := range receipt.Logs {
		if lg.Address != c.address || len(lg.Topics) != 4 || lg.Topics[0] != transferID {
			continue
		}
		id, err := normalize.WideInt(lg.Topics[3])
		if err != nil {
			continue
		}
		from := common.BytesToAddress(lg.Topics[1].Bytes())
		to := common.BytesToAddress(lg.Topics[2].Bytes())
		if from == (common.Address{}) && (to == minter || to == c.address) {
			return id, nil
		}
		if fallback == nil {
			fallback = id
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("marketplace: mint receipt %s: %w", receipt.TxHash.Hex(), domain.ErrTokenIDNotFound)
}
