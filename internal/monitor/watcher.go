// Package monitor watches the marketplace's auctions: it announces each
// auction once its end time passes, can submit endAuction on the operator's
// behalf, and periodically archives a snapshot of listings and auctions.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
)

// EventAuctionEnded is the notification sent when an auction's end time
// passes.
const EventAuctionEnded = "auction_ended"

// Reader is the read surface the watcher polls.
type Reader interface {
	FetchMarketItems(ctx context.Context) ([]domain.MarketItem, error)
	FetchActiveAuctions(ctx context.Context) ([]domain.Auction, error)
}

// Ender submits endAuction. *executor.Executor satisfies it.
type Ender interface {
	EndAuction(ctx context.Context, tokenID *big.Int) (*types.Receipt, error)
}

// Archiver stores marketplace snapshots. *s3blob.Archiver satisfies it.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, items []domain.MarketItem, auctions []domain.Auction, now time.Time) (string, error)
}

// Notifier forwards operator notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Gauges receives watcher metrics.
type Gauges interface {
	SetActiveAuctions(n int)
	ObserveSnapshot(err error)
}

// Config controls the watcher.
type Config struct {
	Interval      time.Duration
	AutoEnd       bool
	SnapshotEvery int
}

// AuctionEndedEvent is published on domain.ChannelAuction.
type AuctionEndedEvent struct {
	TokenID       string    `json:"tokenId"`
	Seller        string    `json:"seller"`
	HighestBid    string    `json:"highestBid"`
	HighestBidder string    `json:"highestBidder,omitempty"`
	EndTime       int64     `json:"endTime"`
	At            time.Time `json:"at"`
}

// Watcher polls active auctions on a fixed interval.
type Watcher struct {
	reader Reader
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	ender    Ender
	archiver Archiver
	notifier Notifier
	bus      domain.EventBus
	gauges   Gauges

	ticks    int
	notified map[string]bool
}

// New creates a Watcher. A non-positive interval defaults to 30s.
func New(reader Reader, cfg Config, logger *slog.Logger) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		reader:   reader,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "auction_monitor")),
		now:      time.Now,
		notified: make(map[string]bool),
	}
}

// SetEnder enables auto-ending when Config.AutoEnd is set.
func (w *Watcher) SetEnder(e Ender) { w.ender = e }

// SetArchiver enables periodic snapshots.
func (w *Watcher) SetArchiver(a Archiver) { w.archiver = a }

// SetNotifier sends auction_ended notifications.
func (w *Watcher) SetNotifier(n Notifier) { w.notifier = n }

// SetEventBus publishes AuctionEndedEvent on domain.ChannelAuction.
func (w *Watcher) SetEventBus(b domain.EventBus) { w.bus = b }

// SetMetrics reports active auctions and snapshot outcomes.
func (w *Watcher) SetMetrics(g Gauges) { w.gauges = g }

// Run checks immediately and then on every interval until ctx is done. Tick
// failures are logged, never fatal.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "auction monitor started",
		slog.Duration("interval", w.cfg.Interval),
		slog.Bool("auto_end", w.cfg.AutoEnd && w.ender != nil),
		slog.Int("snapshot_every", w.cfg.SnapshotEvery),
	)

	if err := w.Tick(ctx); err != nil {
		w.logger.ErrorContext(ctx, "auction monitor tick failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.ErrorContext(ctx, "auction monitor tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick runs one poll. It is not safe for concurrent use.
func (w *Watcher) Tick(ctx context.Context) error {
	now := w.now()
	auctions, err := w.reader.FetchActiveAuctions(ctx)
	if err != nil {
		return fmt.Errorf("monitor: fetch active auctions: %w", err)
	}
	if w.gauges != nil {
		w.gauges.SetActiveAuctions(len(auctions))
	}

	seen := make(map[string]bool, len(auctions))
	for _, a := range auctions {
		id := a.TokenID.String()
		seen[id] = true
		if a.Ended || !a.IsEnded(now) {
			continue
		}
		if !w.notified[id] {
			w.announce(ctx, a, now)
			w.notified[id] = true
		}
		if w.cfg.AutoEnd && w.ender != nil {
			w.end(ctx, a)
		}
	}
	// A token can be auctioned again once its auction leaves the active set.
	for id := range w.notified {
		if !seen[id] {
			delete(w.notified, id)
		}
	}

	w.ticks++
	if w.archiver != nil && w.cfg.SnapshotEvery > 0 && w.ticks%w.cfg.SnapshotEvery == 0 {
		w.snapshot(ctx, auctions, now)
	}
	return nil
}

func (w *Watcher) announce(ctx context.Context, a domain.Auction, now time.Time) {
	log := w.logger.With(slog.String("token_id", a.TokenID.String()))
	log.InfoContext(ctx, "auction reached end time",
		slog.String("highest_bid", marketplace.FormatEther(a.HighestBid)),
		slog.Bool("has_bid", a.HasBid()),
	)

	if w.notifier != nil {
		msg := fmt.Sprintf("Auction for token #%s has ended with no bids.", a.TokenID)
		if a.HasBid() {
			msg = fmt.Sprintf("Auction for token #%s has ended. Highest bid %s ETH by %s.",
				a.TokenID, marketplace.FormatEther(a.HighestBid), normalize.ShortAddress(a.HighestBidder.Hex()))
		}
		if err := w.notifier.Notify(ctx, EventAuctionEnded, "Auction ended", msg); err != nil {
			log.WarnContext(ctx, "auction notification failed", slog.String("error", err.Error()))
		}
	}

	if w.bus != nil {
		view := domain.NewAuctionView(a, now, nil, "")
		payload, err := json.Marshal(AuctionEndedEvent{
			TokenID:       view.TokenID,
			Seller:        view.Seller,
			HighestBid:    view.HighestBid,
			HighestBidder: view.HighestBidder,
			EndTime:       view.EndTime,
			At:            now.UTC(),
		})
		if err == nil {
			err = w.bus.Publish(ctx, domain.ChannelAuction, payload)
		}
		if err != nil {
			log.WarnContext(ctx, "publish auction event failed", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) end(ctx context.Context, a domain.Auction) {
	log := w.logger.With(slog.String("token_id", a.TokenID.String()))
	receipt, err := w.ender.EndAuction(ctx, a.TokenID)
	switch {
	case err == nil:
		log.InfoContext(ctx, "auction ended automatically", slog.String("tx", receipt.TxHash.Hex()))
	case errors.Is(err, domain.ErrOperationInProgress):
		log.DebugContext(ctx, "end auction already in flight")
	default:
		log.WarnContext(ctx, "auto end auction failed",
			slog.String("kind", domain.ErrorKind(err)),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Watcher) snapshot(ctx context.Context, auctions []domain.Auction, now time.Time) {
	items, err := w.reader.FetchMarketItems(ctx)
	if err == nil {
		var key string
		key, err = w.archiver.ArchiveSnapshot(ctx, items, auctions, now)
		if err == nil {
			w.logger.InfoContext(ctx, "marketplace snapshot archived",
				slog.String("path", key),
				slog.Int("items", len(items)),
				slog.Int("auctions", len(auctions)),
			)
		}
	}
	if err != nil {
		w.logger.WarnContext(ctx, "marketplace snapshot failed", slog.String("error", err.Error()))
	}
	if w.gauges != nil {
		w.gauges.ObserveSnapshot(err)
	}
}
