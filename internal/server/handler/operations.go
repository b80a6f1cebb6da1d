package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/executor"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
)

// Operations defines the guarded writes the operation handler requires.
// *executor.Executor satisfies it.
type Operations interface {
	Mint(ctx context.Context, tokenURI string) (*big.Int, *types.Receipt, error)
	List(ctx context.Context, tokenID, price *big.Int) (*types.Receipt, error)
	CancelListing(ctx context.Context, tokenID *big.Int) (*types.Receipt, error)
	Buy(ctx context.Context, tokenID, price *big.Int) (*types.Receipt, error)
	CreateAuction(ctx context.Context, tokenID, startingPrice *big.Int, durationSeconds uint64) (*types.Receipt, error)
	PlaceBid(ctx context.Context, tokenID, amount *big.Int) (*types.Receipt, error)
	EndAuction(ctx context.Context, tokenID *big.Int) (*types.Receipt, error)
	Transfer(ctx context.Context, to common.Address, tokenID *big.Int) (*types.Receipt, error)
	Serializer() *executor.Serializer
}

// ItemLookup reads the record a purchase is priced from.
type ItemLookup interface {
	GetMarketItem(ctx context.Context, tokenID *big.Int) (domain.MarketItem, error)
}

// OperationHandler serves marketplace writes and the operation journal.
type OperationHandler struct {
	ops     Operations
	items   ItemLookup
	viewer  Viewer
	content domain.ContentStore
	journal domain.OperationStore
	cache   domain.ReadCache
	logger  *slog.Logger
}

// NewOperationHandler creates an OperationHandler.
func NewOperationHandler(ops Operations, items ItemLookup, viewer Viewer, logger *slog.Logger) *OperationHandler {
	return &OperationHandler{
		ops:    ops,
		items:  items,
		viewer: viewer,
		logger: logHandler(logger, "operations"),
	}
}

// SetContentStore lets mint requests carry a metadata document instead of a
// URI.
func (h *OperationHandler) SetContentStore(cs domain.ContentStore) { h.content = cs }

// SetJournal enables the operation history endpoints.
func (h *OperationHandler) SetJournal(store domain.OperationStore) { h.journal = store }

// SetCache flushes c after every confirmed write.
func (h *OperationHandler) SetCache(c domain.ReadCache) { h.cache = c }

type receiptResponse struct {
	TxHash      string `json:"txHash"`
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
	TokenID     string `json:"tokenId,omitempty"`
	TokenURI    string `json:"tokenURI,omitempty"`
	To          string `json:"to,omitempty"`
}

func newReceiptResponse(r *types.Receipt) receiptResponse {
	resp := receiptResponse{
		TxHash:  r.TxHash.Hex(),
		Status:  r.Status,
		GasUsed: r.GasUsed,
	}
	if r.BlockNumber != nil {
		resp.BlockNumber = r.BlockNumber.Uint64()
	}
	return resp
}

// finish writes the outcome of a write and invalidates cached reads after a
// success.
func (h *OperationHandler) finish(w http.ResponseWriter, r *http.Request, op string, receipt *types.Receipt, err error, decorate func(*receiptResponse)) {
	if err != nil {
		h.logger.WarnContext(r.Context(), "operation failed",
			slog.String("op", op),
			slog.String("kind", domain.ErrorKind(err)),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err, receipt)
		return
	}
	if h.cache != nil {
		if ferr := h.cache.Flush(r.Context()); ferr != nil {
			h.logger.WarnContext(r.Context(), "read cache flush failed", slog.String("error", ferr.Error()))
		}
	}
	resp := newReceiptResponse(receipt)
	if decorate != nil {
		decorate(&resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

type mintRequest struct {
	TokenURI string              `json:"tokenURI"`
	Metadata *domain.NFTMetadata `json:"metadata"`
}

// Mint mints a token. With a metadata document instead of a URI the document
// is pinned first and its URI minted.
// POST /api/items/mint
func (h *OperationHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, nil)
		return
	}
	uri := strings.TrimSpace(req.TokenURI)
	if uri == "" && req.Metadata != nil {
		pinned, err := h.pinMetadata(r.Context(), *req.Metadata)
		if err != nil {
			writeDomainError(w, err, nil)
			return
		}
		uri = pinned
	}
	if uri == "" {
		writeDomainError(w, fmt.Errorf("tokenURI or metadata is required: %w", domain.ErrMalformedValue), nil)
		return
	}

	id, receipt, err := h.ops.Mint(r.Context(), uri)
	h.finish(w, r, "mint", receipt, err, func(resp *receiptResponse) {
		resp.TokenID = id.String()
		resp.TokenURI = uri
	})
}

func (h *OperationHandler) pinMetadata(ctx context.Context, meta domain.NFTMetadata) (string, error) {
	if h.content == nil || !h.content.Configured() {
		return "", fmt.Errorf("handler: pin metadata: %w", domain.ErrProviderUnavailable)
	}
	if err := validateMetadata(meta); err != nil {
		return "", err
	}
	return h.content.PinJSON(ctx, meta.Name, meta)
}

type priceRequest struct {
	Price string `json:"price"`
}

// List lists a token for sale at an ether price.
// POST /api/items/{id}/list
func (h *OperationHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	var req priceRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, nil)
		return
	}
	price, err := positiveEther("price", req.Price)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	receipt, err := h.ops.List(r.Context(), id, price)
	h.finish(w, r, "list", receipt, err, nil)
}

// CancelListing withdraws a listing.
// POST /api/items/{id}/cancel
func (h *OperationHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	receipt, err := h.ops.CancelListing(r.Context(), id)
	h.finish(w, r, "cancel", receipt, err, nil)
}

// Buy purchases a listed token at its ledger price.
// POST /api/items/{id}/buy
func (h *OperationHandler) Buy(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	item, err := h.items.GetMarketItem(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	receipt, err := h.ops.Buy(r.Context(), id, item.Price)
	h.finish(w, r, "buy", receipt, err, nil)
}

type transferRequest struct {
	To string `json:"to"`
}

// Transfer moves a token to another account.
// POST /api/items/{id}/transfer
func (h *OperationHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, nil)
		return
	}
	to, err := normalize.Address(req.To)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	receipt, err := h.ops.Transfer(r.Context(), to, id)
	h.finish(w, r, "transfer", receipt, err, func(resp *receiptResponse) {
		resp.To = normalize.DisplayAddress(req.To)
	})
}

type createAuctionRequest struct {
	TokenID       string `json:"tokenId"`
	StartingPrice string `json:"startingPrice"`
	DurationHours uint64 `json:"durationHours"`
}

// CreateAuction starts an auction.
// POST /api/auctions
func (h *OperationHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, nil)
		return
	}
	id, err := tokenID(req.TokenID)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	start, err := positiveEther("startingPrice", req.StartingPrice)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	if req.DurationHours == 0 {
		writeDomainError(w, fmt.Errorf("durationHours must be positive: %w", domain.ErrMalformedValue), nil)
		return
	}
	receipt, err := h.ops.CreateAuction(r.Context(), id, start, req.DurationHours*3600)
	h.finish(w, r, "create_auction", receipt, err, nil)
}

type bidRequest struct {
	Amount string `json:"amount"`
}

// PlaceBid bids an ether amount. The ledger decides whether it is enough.
// POST /api/auctions/{id}/bid
func (h *OperationHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	var req bidRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, nil)
		return
	}
	amount, err := positiveEther("amount", req.Amount)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	receipt, err := h.ops.PlaceBid(r.Context(), id, amount)
	h.finish(w, r, "bid", receipt, err, nil)
}

// EndAuction settles an auction past its end time.
// POST /api/auctions/{id}/end
func (h *OperationHandler) EndAuction(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	receipt, err := h.ops.EndAuction(r.Context(), id)
	h.finish(w, r, "end_auction", receipt, err, nil)
}

type pendingResponse struct {
	Kind   domain.OpKind `json:"kind"`
	Entity string        `json:"entity"`
	Since  time.Time     `json:"since"`
}

// ListPending returns the operations currently holding their key.
// GET /api/operations/pending
func (h *OperationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	inflight := h.ops.Serializer().InFlight()
	out := make([]pendingResponse, 0, len(inflight))
	for _, p := range inflight {
		out = append(out, pendingResponse{Kind: p.Key.Kind, Entity: p.Key.Entity, Since: p.Since})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": out})
}

// ListOperations returns journaled writes, newest first. With mine=true only
// the connected account's writes are returned.
// GET /api/operations?mine=true&limit=50&offset=0
func (h *OperationHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotImplemented, "operation journal is disabled")
		return
	}
	opts := parseListOpts(r)

	var (
		recs []domain.OperationRecord
		err  error
	)
	mine := false
	if v := r.URL.Query().Get("mine"); v != "" {
		if mine, err = normalize.Bool(v); err != nil {
			writeDomainError(w, err, nil)
			return
		}
	}
	if mine {
		s := h.viewer.Session()
		if !s.Connected() {
			writeDomainError(w, fmt.Errorf("handler: my operations: %w", domain.ErrNotConnected), nil)
			return
		}
		recs, err = h.journal.ListByAccount(r.Context(), s.Account, opts)
	} else {
		recs, err = h.journal.ListRecent(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list operations failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list operations")
		return
	}
	if recs == nil {
		recs = []domain.OperationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": recs})
}

// positiveEther parses an ether amount that must be above zero.
func positiveEther(field, s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%s is required: %w", field, domain.ErrMalformedValue)
	}
	wei, err := marketplace.ParseEther(s)
	if err != nil {
		return nil, err
	}
	if wei.Sign() == 0 {
		return nil, fmt.Errorf("%s must be greater than zero: %w", field, domain.ErrMalformedValue)
	}
	return wei, nil
}
