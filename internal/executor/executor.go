// Package executor guards marketplace writes: each one is serialised per
// entity, journaled, announced on the event bus, and counted.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/wallet"
)

// Notification event names.
const (
	EventNFTMinted         = "nft_minted"
	EventPurchaseConfirmed = "purchase_confirmed"
	EventBidPlaced         = "bid_placed"
	EventAuctionEnded      = "auction_ended"
	EventOperationFailed   = "operation_failed"
)

// Ledger is the write surface of the marketplace client.
type Ledger interface {
	MintNFT(ctx context.Context, s marketplace.Signer, tokenURI string) (*big.Int, *types.Receipt, error)
	ListItemForSale(ctx context.Context, s marketplace.Signer, tokenID, price *big.Int) (*types.Receipt, error)
	CancelListing(ctx context.Context, s marketplace.Signer, tokenID *big.Int) (*types.Receipt, error)
	BuyItem(ctx context.Context, s marketplace.Signer, tokenID, price *big.Int) (*types.Receipt, error)
	CreateAuction(ctx context.Context, s marketplace.Signer, tokenID, startingPrice *big.Int, durationSeconds uint64) (*types.Receipt, error)
	PlaceBid(ctx context.Context, s marketplace.Signer, tokenID, amount *big.Int) (*types.Receipt, error)
	EndAuction(ctx context.Context, s marketplace.Signer, tokenID *big.Int) (*types.Receipt, error)
	TransferNFT(ctx context.Context, s marketplace.Signer, to common.Address, tokenID *big.Int) (*types.Receipt, error)
}

// Identity supplies the session and signer for writes. *wallet.Manager
// satisfies it.
type Identity interface {
	Session() domain.WalletSession
	Signer() (*wallet.ProviderSigner, error)
}

// Notifier forwards operator notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Recorder receives operation metrics.
type Recorder interface {
	ObserveOperation(kind domain.OpKind, outcome string, elapsed time.Duration)
	RejectOperation(kind domain.OpKind)
}

// Executor runs marketplace writes for the connected wallet.
type Executor struct {
	ledger     Ledger
	identity   Identity
	serializer *Serializer
	logger     *slog.Logger
	now        func() time.Time

	journal  domain.OperationStore
	bus      domain.EventBus
	notifier Notifier
	metrics  Recorder
}

// New creates an Executor with its own in-process Serializer.
func New(ledger Ledger, identity Identity, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		ledger:     ledger,
		identity:   identity,
		serializer: NewSerializer(),
		logger:     logger.With(slog.String("component", "executor")),
		now:        time.Now,
	}
}

// SetJournal records every admitted write in store.
func (e *Executor) SetJournal(store domain.OperationStore) { e.journal = store }

// SetEventBus publishes finished operations on domain.ChannelOperation.
func (e *Executor) SetEventBus(bus domain.EventBus) { e.bus = bus }

// SetNotifier sends confirmations and failures to operators.
func (e *Executor) SetNotifier(n Notifier) { e.notifier = n }

// SetMetrics reports operation outcomes.
func (e *Executor) SetMetrics(r Recorder) { e.metrics = r }

// Serializer exposes the per-entity guard, e.g. to back it with a
// distributed lock or list in-flight keys.
func (e *Executor) Serializer() *Serializer { return e.serializer }

// Mint mints a token for tokenURI. Concurrent mints of the same URI are
// rejected.
func (e *Executor) Mint(ctx context.Context, tokenURI string) (*big.Int, *types.Receipt, error) {
	var id *big.Int
	key := domain.OpKey{Kind: domain.OpMint, Entity: tokenURI}
	receipt, err := e.do(ctx, key, map[string]any{"tokenURI": tokenURI}, func(ctx context.Context, s marketplace.Signer) (*types.Receipt, error) {
		var (
			receipt *types.Receipt
			err     error
		)
		id, receipt, err = e.ledger.MintNFT(ctx, s, tokenURI)
		return receipt, err
	})
	return id, receipt, err
}

// List lists tokenID for sale at price wei.
func (e *Executor) List(ctx context.Context, tokenID, price *big.Int) (*types.Receipt, error) {
	detail := map[string]any{"price": marketplace.FormatEther(price)}
	return e.do(ctx, tokenKey(domain.OpList, tokenID), detail, func(ctx context.Context, s marketplace.Signer) (*types.Receipt, error) {
		return e.ledger.ListItemForSale(ctx, s, tokenID, price)
	})
}

// CancelListing withdraws the listing of tokenID.
func (e *Executor) CancelListing(ctx context.Context, tokenID *big.Int) (*types.Receipt, error) {
	return e.do(ctx, tokenKey(domain.OpCancelListing, tokenID), nil, func(ctx context.Context, s marketplace.Signer) (*types.Receipt, error) {
		return e.ledger.CancelListing(ctx, s, tokenID)
	})
}

// Buy purchases tokenID for price wei.
func (e *Executor) Buy(ctx context.Context, tokenID, price *big.Int) (*types.Receipt, error) {
	detail := map[string]any{"price": marketplace.FormatEther(price)}
	return e.do(ctx, tokenKey(domain.OpBuy, tokenID), detail, func(ctx context.Context, s marketplace.Signer) (*types.Receipt, error) {
		return e.ledger.BuyItem(ctx, s, tokenID, price)
	})
}

// CreateAuction auctions tokenID from startingPrice wei for durationSeconds.
func (e *Executor) CreateAuction(ctx context.Context, tokenID, startingPrice *big.Int, durationSeconds uint64) (*types.Receipt, error) {
	detail := map[string]any{
		"startingPrice": marketplace.FormatEther(startingPrice),
		"duration":      durationSeconds,
	}
	return e.do(ctx, tokenKey(domain.OpCreateAuction, tokenID), detail, func(ctx context.Context, s marketplace.Signer) (*types.Receipt, error) {
		return e.ledger.CreateAuction(ctx, s, tokenID, startingPrice, durationSeconds)
	})
}

// PlaceBid bids amount wei on tokenID.
func (e *Executor) PlaceBid(ctx context.Context, tokenID, amount *big.Int) (*types.Receipt, error) {
	detail := map[string]any{"amount": marketplace.FormatEther(amount)}
	return e.do(ctx, tokenKey(domain.OpPlaceBid, tokenID), detail, func(ctx context.Context, s marketplace.Signer) (*types.Receipt, error) {
		return e.ledger.PlaceBid(ctx, s, tokenID, amount)
	})
}

// EndAuction settles the auction of tokenID.
func (e *Executor) EndAuction(ctx context.Context, tokenID *big.Int) (*types.Receipt, error) {
	return e.do(ctx, tokenKey(domain.OpEndAuction, tokenID), nil, func(ctx context.Context, s marketplace.Signer) (*types.Receipt, error) {
		return e.ledger.EndAuction(ctx, s, tokenID)
	})
}

// Transfer sends tokenID to another account.
func (e *Executor) Transfer(ctx context.Context, to common.Address, tokenID *big.Int) (*types.Receipt, error) {
	detail := map[string]any{"to": to.Hex()}
	return e.do(ctx, tokenKey(domain.OpTransfer, tokenID), detail, func(ctx context.Context, s marketplace.Signer) (*types.Receipt, error) {
		return e.ledger.TransferNFT(ctx, s, to, tokenID)
	})
}

func tokenKey(kind domain.OpKind, tokenID *big.Int) domain.OpKey {
	if tokenID == nil {
		return domain.OpKey{Kind: kind}
	}
	return domain.TokenOp(kind, tokenID)
}

type writeFunc func(ctx context.Context, s marketplace.Signer) (*types.Receipt, error)

func (e *Executor) do(ctx context.Context, key domain.OpKey, detail map[string]any, fn writeFunc) (*types.Receipt, error) {
	if key.Entity == "" {
		return nil, fmt.Errorf("executor: %s: missing entity: %w", key.Kind, domain.ErrMalformedValue)
	}
	log := e.logger.With(slog.String("op", key.String()))

	receipt, err := Run(ctx, e.serializer, key, func(ctx context.Context) (*types.Receipt, error) {
		return e.execute(ctx, key, detail, fn, log)
	})
	if errors.Is(err, domain.ErrOperationInProgress) {
		log.InfoContext(ctx, "operation already in progress, not resubmitting")
		if e.metrics != nil {
			e.metrics.RejectOperation(key.Kind)
		}
	}
	return receipt, err
}

func (e *Executor) execute(ctx context.Context, key domain.OpKey, detail map[string]any, fn writeFunc, log *slog.Logger) (*types.Receipt, error) {
	start := e.now()
	signer, err := e.identity.Signer()
	if err != nil {
		return nil, fmt.Errorf("executor: %s: %w", key, err)
	}
	session := e.identity.Session()

	rec := domain.OperationRecord{
		ID:        uuid.New().String(),
		Kind:      key.Kind,
		Entity:    key.Entity,
		Account:   session.Account,
		ChainID:   session.ChainID,
		Status:    domain.OperationSubmitted,
		Detail:    detail,
		CreatedAt: start.UTC(),
		UpdatedAt: start.UTC(),
	}
	if e.journal != nil {
		if jerr := e.journal.Create(ctx, rec); jerr != nil {
			log.WarnContext(ctx, "journal create failed", slog.String("error", jerr.Error()))
		}
	}

	receipt, err := fn(ctx, signer)

	rec.UpdatedAt = e.now().UTC()
	if receipt != nil {
		rec.TxHash = receipt.TxHash.Hex()
	}
	outcome := "confirmed"
	if err != nil {
		outcome = "failed"
		rec.Status = domain.OperationFailed
		rec.ErrorKind = domain.ErrorKind(err)
		rec.Error = err.Error()
		log.WarnContext(ctx, "operation failed",
			slog.String("account", normalize.ShortAddress(session.Account)),
			slog.String("kind", rec.ErrorKind),
			slog.String("error", err.Error()),
		)
	} else {
		rec.Status = domain.OperationConfirmed
		log.InfoContext(ctx, "operation confirmed",
			slog.String("account", normalize.ShortAddress(session.Account)),
			slog.String("tx", rec.TxHash),
		)
	}

	// Bookkeeping must outlive a caller that gave up waiting.
	bg := context.WithoutCancel(ctx)
	if e.journal != nil {
		if jerr := e.journal.Finish(bg, rec.ID, rec.Status, rec.TxHash, rec.ErrorKind, rec.Error); jerr != nil {
			log.WarnContext(ctx, "journal finish failed", slog.String("error", jerr.Error()))
		}
	}
	e.publish(bg, rec, log)
	e.notify(bg, rec, err)
	if e.metrics != nil {
		e.metrics.ObserveOperation(key.Kind, outcome, e.now().Sub(start))
	}
	return receipt, err
}

func (e *Executor) publish(ctx context.Context, rec domain.OperationRecord, log *slog.Logger) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.ChannelOperation, payload); err != nil {
		log.WarnContext(ctx, "publish operation failed", slog.String("error", err.Error()))
	}
}

func (e *Executor) notify(ctx context.Context, rec domain.OperationRecord, opErr error) {
	if e.notifier == nil {
		return
	}
	var event, title, msg string
	switch {
	case opErr != nil && errors.Is(opErr, domain.ErrUserRejected):
		return
	case opErr != nil:
		event = EventOperationFailed
		title = "Operation failed"
		msg = fmt.Sprintf("%s on %s by %s: %s", rec.Kind, rec.Entity, normalize.ShortAddress(rec.Account), rec.ErrorKind)
		var revert *domain.RevertError
		if errors.As(opErr, &revert) {
			msg += " (" + revert.Reason + ")"
		}
	case rec.Kind == domain.OpMint:
		event, title = EventNFTMinted, "NFT minted"
		msg = fmt.Sprintf("%s minted %s (tx %s)", normalize.ShortAddress(rec.Account), rec.Entity, rec.TxHash)
	case rec.Kind == domain.OpBuy:
		event, title = EventPurchaseConfirmed, "Purchase confirmed"
		msg = fmt.Sprintf("Token #%s bought by %s for %v ETH", rec.Entity, normalize.ShortAddress(rec.Account), rec.Detail["price"])
	case rec.Kind == domain.OpPlaceBid:
		event, title = EventBidPlaced, "Bid placed"
		msg = fmt.Sprintf("%s bid %v ETH on token #%s", normalize.ShortAddress(rec.Account), rec.Detail["amount"], rec.Entity)
	case rec.Kind == domain.OpEndAuction:
		event, title = EventAuctionEnded, "Auction ended"
		msg = fmt.Sprintf("Auction for token #%s settled (tx %s)", rec.Entity, rec.TxHash)
	default:
		return
	}
	if err := e.notifier.Notify(ctx, event, title, msg); err != nil {
		e.logger.WarnContext(ctx, "notify failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
