package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
)

// MarketReader defines the ledger reads the market handler requires.
// *marketplace.Client satisfies it.
type MarketReader interface {
	FetchMarketItems(ctx context.Context) ([]domain.MarketItem, error)
	FetchMyNFTs(ctx context.Context, identity common.Address) ([]domain.MarketItem, error)
	FetchItemsListed(ctx context.Context, identity common.Address) ([]domain.MarketItem, error)
	FetchActiveAuctions(ctx context.Context) ([]domain.Auction, error)
	GetMarketItem(ctx context.Context, tokenID *big.Int) (domain.MarketItem, error)
	GetAuction(ctx context.Context, tokenID *big.Int) (domain.Auction, error)
	GetListingPrice(ctx context.Context) (*big.Int, error)
	GetMintingPrice(ctx context.Context) (*big.Int, error)
}

// MetadataSource resolves a token's URI and metadata document.
// *marketplace.MetadataResolver satisfies it.
type MetadataSource interface {
	Resolve(ctx context.Context, tokenID *big.Int) (string, domain.NFTMetadata, error)
}

// MarketHandler serves item, auction and fee reads.
type MarketHandler struct {
	market    MarketReader
	viewer    Viewer
	increment *big.Int
	metadata  MetadataSource
	cache     domain.ReadCache
	cacheTTL  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewMarketHandler creates a MarketHandler. increment is the minimum bid
// step in wei.
func NewMarketHandler(market MarketReader, viewer Viewer, increment *big.Int, logger *slog.Logger) *MarketHandler {
	if increment == nil {
		increment = domain.DefaultBidIncrement
	}
	return &MarketHandler{
		market:    market,
		viewer:    viewer,
		increment: increment,
		now:       time.Now,
		logger:    logHandler(logger, "market"),
	}
}

// SetCache memoises ledger reads for ttl.
func (h *MarketHandler) SetCache(c domain.ReadCache, ttl time.Duration) {
	h.cache = c
	h.cacheTTL = ttl
}

// SetMetadata enables metadata resolution on single-item reads.
func (h *MarketHandler) SetMetadata(m MetadataSource) { h.metadata = m }

type itemsResponse struct {
	Items []domain.ItemView `json:"items"`
}

type auctionsResponse struct {
	Auctions []domain.AuctionView `json:"auctions"`
}

func itemViews(items []domain.MarketItem) []domain.ItemView {
	out := make([]domain.ItemView, 0, len(items))
	for _, it := range items {
		out = append(out, domain.NewItemView(it))
	}
	return out
}

// ListItems returns every item listed for sale.
// GET /api/items
func (h *MarketHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := cached(r.Context(), h.cache, h.cacheTTL, "items", h.market.FetchMarketItems)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list items failed", slog.String("error", err.Error()))
		writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse{Items: itemViews(items)})
}

// GetItem returns one item with its metadata when it resolves.
// GET /api/items/{id}
func (h *MarketHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	item, err := cached(r.Context(), h.cache, h.cacheTTL, "item:"+id.String(), func(ctx context.Context) (domain.MarketItem, error) {
		return h.market.GetMarketItem(ctx, id)
	})
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	view := domain.NewItemView(item)
	if h.metadata != nil {
		uri, meta, err := h.metadata.Resolve(r.Context(), id)
		view.TokenURI = uri
		if err != nil {
			h.logger.DebugContext(r.Context(), "metadata unavailable",
				slog.String("token_id", id.String()),
				slog.String("error", err.Error()),
			)
		} else {
			view.Metadata = &meta
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// ListMyItems returns the tokens the connected account owns.
// GET /api/me/items
func (h *MarketHandler) ListMyItems(w http.ResponseWriter, r *http.Request) {
	h.listForAccount(w, r, "mine", h.market.FetchMyNFTs)
}

// ListMyListings returns the connected account's listings.
// GET /api/me/listings
func (h *MarketHandler) ListMyListings(w http.ResponseWriter, r *http.Request) {
	h.listForAccount(w, r, "listed", h.market.FetchItemsListed)
}

func (h *MarketHandler) listForAccount(w http.ResponseWriter, r *http.Request, prefix string, fetch func(context.Context, common.Address) ([]domain.MarketItem, error)) {
	s := h.viewer.Session()
	if !s.Connected() {
		writeDomainError(w, fmt.Errorf("handler: %s: %w", prefix, domain.ErrNotConnected), nil)
		return
	}
	account := common.HexToAddress(s.Account)
	items, err := cached(r.Context(), h.cache, h.cacheTTL, prefix+":"+s.Account, func(ctx context.Context) ([]domain.MarketItem, error) {
		return fetch(ctx, account)
	})
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse{Items: itemViews(items)})
}

// ListAuctions returns active auctions with their derived bidding state.
// GET /api/auctions
func (h *MarketHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := cached(r.Context(), h.cache, h.cacheTTL, "auctions", h.market.FetchActiveAuctions)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list auctions failed", slog.String("error", err.Error()))
		writeDomainError(w, err, nil)
		return
	}
	now := h.now()
	viewer := h.viewer.Session().Account
	views := make([]domain.AuctionView, 0, len(auctions))
	for _, a := range auctions {
		views = append(views, domain.NewAuctionView(a, now, h.increment, viewer))
	}
	writeJSON(w, http.StatusOK, auctionsResponse{Auctions: views})
}

// GetAuction returns one auction.
// GET /api/auctions/{id}
func (h *MarketHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	a, err := cached(r.Context(), h.cache, h.cacheTTL, "auction:"+id.String(), func(ctx context.Context) (domain.Auction, error) {
		return h.market.GetAuction(ctx, id)
	})
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewAuctionView(a, h.now(), h.increment, h.viewer.Session().Account))
}

type feesResponse struct {
	ListingPrice      string `json:"listingPrice"`
	ListingPriceEther string `json:"listingPriceEther"`
	MintingPrice      string `json:"mintingPrice"`
	MintingPriceEther string `json:"mintingPriceEther"`
}

// GetFees returns the listing and minting fees.
// GET /api/fees
func (h *MarketHandler) GetFees(w http.ResponseWriter, r *http.Request) {
	fees, err := cached(r.Context(), h.cache, h.cacheTTL, "fees", func(ctx context.Context) (feesResponse, error) {
		listing, err := h.market.GetListingPrice(ctx)
		if err != nil {
			return feesResponse{}, err
		}
		minting, err := h.market.GetMintingPrice(ctx)
		if err != nil {
			return feesResponse{}, err
		}
		return feesResponse{
			ListingPrice:      listing.String(),
			ListingPriceEther: marketplace.FormatEther(listing),
			MintingPrice:      minting.String(),
			MintingPriceEther: marketplace.FormatEther(minting),
		}, nil
	})
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}
