package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/cache/memory"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/crypto"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/executor"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/ledgerstub"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/platform/localwallet"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/server"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/server/handler"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/wallet"
)

const (
	devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	apiKey = "s3cret"
)

var (
	devAddress = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	other      = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type stack struct {
	srv    *httptest.Server
	ledger *ledgerstub.Ledger
	client *marketplace.Client
	cache  *memory.Cache
}

// fakeContent pins into memory.
type fakeContent struct {
	pinned map[string][]byte
}

func (f *fakeContent) Configured() bool { return true }

func (f *fakeContent) PinFile(_ context.Context, name string, data io.Reader) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.pinned[name] = b
	return "ipfs://file-" + name, nil
}

func (f *fakeContent) PinJSON(_ context.Context, name string, doc any) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	f.pinned[name] = b
	return "ipfs://meta-" + name, nil
}

func (f *fakeContent) GatewayURL(uri string) string {
	return "https://gateway.test/" + strings.TrimPrefix(uri, "ipfs://")
}

func newStack(t *testing.T, cfg server.Config) *stack {
	t.Helper()
	key, err := crypto.ParseKey(devKey)
	require.NoError(t, err)
	signer, err := crypto.NewSigner(key, 31337)
	require.NoError(t, err)

	ledger := ledgerstub.New()
	ledger.Fund(devAddress, ether(100))
	ledger.Fund(other, ether(100))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := wallet.NewManager(localwallet.New(ledger, signer, logger), wallet.WithLogger(logger))
	client := marketplace.New(ledger.Address(), ledger, marketplace.WithConfirmation(time.Millisecond, 5*time.Second))
	exec := executor.New(client, mgr, logger)
	cache := memory.NewCache()

	market := handler.NewMarketHandler(client, mgr, nil, logger)
	market.SetCache(cache, time.Minute)
	ops := handler.NewOperationHandler(exec, client, mgr, logger)
	ops.SetCache(cache)
	content := &fakeContent{pinned: make(map[string][]byte)}
	ops.SetContentStore(content)

	h := server.NewHandler(cfg, server.Handlers{
		Health:     handler.NewHealthHandler("server", ledger.Address().Hex(), mgr, logger),
		Session:    handler.NewSessionHandler(mgr, logger),
		Market:     market,
		Operations: ops,
		Content:    handler.NewContentHandler(content, logger),
	}, nil, memory.NewLimiter(), logger)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &stack{srv: srv, ledger: ledger, client: client, cache: cache}
}

func (s *stack) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealthIsPublic(t *testing.T) {
	s := newStack(t, server.Config{APIKey: apiKey})

	resp, err := http.Get(s.srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp2, err := http.Get(s.srv.URL + "/api/session")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	s := newStack(t, server.Config{APIKey: apiKey})

	code, body := s.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "disconnected", body["state"])

	code, body = s.do(t, http.MethodGet, "/api/me/items", nil)
	assert.Equal(t, http.StatusPreconditionFailed, code)
	assert.Equal(t, "not_connected", body["kind"])

	code, body = s.do(t, http.MethodPost, "/api/session/connect", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "connected", body["state"])
	assert.Equal(t, strings.ToLower(devAddress.Hex()), body["account"])
	assert.EqualValues(t, 31337, body["chainId"])
	assert.Equal(t, "Localhost", body["network"])

	code, body = s.do(t, http.MethodPost, "/api/session/network", map[string]any{"chainId": "0x1"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "network_not_registered", body["kind"])

	code, _ = s.do(t, http.MethodPost, "/api/session/network", map[string]any{"chainId": 31337})
	assert.Equal(t, http.StatusAccepted, code)

	code, body = s.do(t, http.MethodPost, "/api/session/network", map[string]any{"chainId": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "malformed_value", body["kind"])

	code, body = s.do(t, http.MethodPost, "/api/session/disconnect", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "disconnected", body["state"])

	code, body = s.do(t, http.MethodGet, "/api/networks", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["networks"], len(wallet.SupportedNetworks))
}

func TestMintListBuyFlow(t *testing.T) {
	s := newStack(t, server.Config{APIKey: apiKey})
	ctx := context.Background()

	code, body := s.do(t, http.MethodPost, "/api/items/mint", map[string]any{"tokenURI": "ipfs://one"})
	assert.Equal(t, http.StatusPreconditionFailed, code)
	assert.Equal(t, "not_connected", body["kind"])

	code, _ = s.do(t, http.MethodPost, "/api/session/connect", nil)
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodPost, "/api/items/mint", map[string]any{"tokenURI": "ipfs://one"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "1", body["tokenId"])
	assert.NotEmpty(t, body["txHash"])

	// Prime the cache, then check the listing invalidates it.
	code, body = s.do(t, http.MethodGet, "/api/items", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["items"])

	code, body = s.do(t, http.MethodPost, "/api/items/1/list", map[string]any{"price": "1.5"})
	require.Equal(t, http.StatusOK, code, body)

	code, body = s.do(t, http.MethodGet, "/api/items", nil)
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "1", item["tokenId"])
	assert.Equal(t, "1.5", item["priceEther"])
	assert.Equal(t, true, item["isListed"])

	code, body = s.do(t, http.MethodGet, "/api/me/listings", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)

	// Someone else buys it directly on the ledger.
	_, err := s.client.BuyItem(ctx, s.ledger.Account(other), big.NewInt(1), new(big.Int).Div(ether(3), big.NewInt(2)))
	require.NoError(t, err)
	require.NoError(t, s.cache.Flush(ctx))

	code, body = s.do(t, http.MethodGet, "/api/items", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["items"])

	code, body = s.do(t, http.MethodGet, "/api/items/1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["sold"])
	assert.Equal(t, strings.ToLower(other.Hex()), body["owner"])

	code, body = s.do(t, http.MethodGet, "/api/items/99", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "entity_not_found", body["kind"])

	code, body = s.do(t, http.MethodGet, "/api/items/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "malformed_value", body["kind"])
}

func TestMintFromMetadataDocument(t *testing.T) {
	s := newStack(t, server.Config{APIKey: apiKey})
	code, _ := s.do(t, http.MethodPost, "/api/session/connect", nil)
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodPost, "/api/items/mint", map[string]any{
		"metadata": map[string]any{"name": "Orbit", "image": "ipfs://img"},
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "ipfs://meta-Orbit", body["tokenURI"])

	uri, err := s.client.GetTokenURI(context.Background(), big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "ipfs://meta-Orbit", uri)

	code, body = s.do(t, http.MethodPost, "/api/items/mint", map[string]any{
		"metadata": map[string]any{"name": "NoImage"},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "malformed_value", body["kind"])

	code, _ = s.do(t, http.MethodPost, "/api/items/mint", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuctionBidBelowStartingPriceIsRejected(t *testing.T) {
	s := newStack(t, server.Config{APIKey: apiKey})
	ctx := context.Background()

	id, _, err := s.client.MintNFT(ctx, s.ledger.Account(other), "ipfs://auction")
	require.NoError(t, err)
	_, err = s.client.CreateAuction(ctx, s.ledger.Account(other), id, big.NewInt(500), 3600)
	require.NoError(t, err)

	code, _ := s.do(t, http.MethodPost, "/api/session/connect", nil)
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodGet, "/api/auctions", nil)
	require.Equal(t, http.StatusOK, code)
	auctions := body["auctions"].([]any)
	require.Len(t, auctions, 1)
	a := auctions[0].(map[string]any)
	assert.Equal(t, "500", a["minimumNextBid"])
	assert.Equal(t, false, a["isSeller"])
	assert.Equal(t, false, a["ended"])

	code, body = s.do(t, http.MethodPost, "/api/auctions/1/bid", map[string]any{"amount": "0.000000000000000499"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "contract_reverted", body["kind"])
	assert.Equal(t, "Bid must be at least the starting price", body["reason"])

	code, body = s.do(t, http.MethodPost, "/api/auctions/1/bid", map[string]any{"amount": "0.0000000000000005"})
	require.Equal(t, http.StatusOK, code, body)

	code, body = s.do(t, http.MethodGet, "/api/auctions/1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "500", body["highestBid"])
	assert.Equal(t, strings.ToLower(devAddress.Hex()), body["highestBidder"])

	code, body = s.do(t, http.MethodPost, "/api/auctions/1/end", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "contract_reverted", body["kind"])
}

func TestCreateAuctionValidation(t *testing.T) {
	s := newStack(t, server.Config{APIKey: apiKey})

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing price", map[string]any{"tokenId": "1", "durationHours": 1}},
		{"zero duration", map[string]any{"tokenId": "1", "startingPrice": "1", "durationHours": 0}},
		{"bad token", map[string]any{"tokenId": "x", "startingPrice": "1", "durationHours": 1}},
		{"negative price", map[string]any{"tokenId": "1", "startingPrice": "-1", "durationHours": 1}},
		{"unknown field", map[string]any{"tokenId": "1", "startingPrice": "1", "durationHours": 1, "extra": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, http.MethodPost, "/api/auctions", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "malformed_value", body["kind"])
		})
	}
}

func TestFees(t *testing.T) {
	s := newStack(t, server.Config{APIKey: apiKey})
	code, body := s.do(t, http.MethodGet, "/api/fees", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0.0025", body["listingPriceEther"])
	assert.Equal(t, "0.001", body["mintingPriceEther"])
	assert.Equal(t, "1000000000000000", body["mintingPrice"])
}

func TestContentUpload(t *testing.T) {
	s := newStack(t, server.Config{APIKey: apiKey})

	code, body := s.do(t, http.MethodGet, "/api/content/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["configured"])

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "art.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/api/content/file", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", apiKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pinned map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pinned))
	assert.Equal(t, "ipfs://file-art.png", pinned["uri"])
	assert.Equal(t, "https://gateway.test/file-art.png", pinned["gatewayUrl"])

	code, body = s.do(t, http.MethodPost, "/api/content/metadata", map[string]any{"name": "Orbit", "image": "ipfs://img"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ipfs://meta-Orbit", body["uri"])
}

func TestWriteRateLimit(t *testing.T) {
	s := newStack(t, server.Config{APIKey: apiKey, WriteRateRPS: 1, WriteRateBurst: 2})

	for i := 0; i < 2; i++ {
		code, _ := s.do(t, http.MethodPost, "/api/session/disconnect", nil)
		require.Equal(t, http.StatusOK, code)
	}
	code, body := s.do(t, http.MethodPost, "/api/session/disconnect", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", body["kind"])

	// Reads are not limited.
	code, _ = s.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestPendingOperationsEmpty(t *testing.T) {
	s := newStack(t, server.Config{})
	code, body := s.do(t, http.MethodGet, "/api/operations/pending", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["pending"])

	code, _ = s.do(t, http.MethodGet, "/api/operations", nil)
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestTransferEchoesRecipientAsTyped(t *testing.T) {
	s := newStack(t, server.Config{APIKey: apiKey})

	code, _ := s.do(t, http.MethodPost, "/api/session/connect", nil)
	require.Equal(t, http.StatusOK, code)
	code, body := s.do(t, http.MethodPost, "/api/items/mint", map[string]any{"tokenURI": "ipfs://gift"})
	require.Equal(t, http.StatusOK, code, body)

	typed := " " + other.Hex() + " "
	code, body = s.do(t, http.MethodPost, "/api/items/1/transfer", map[string]any{"to": typed})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, other.Hex(), body["to"])

	item, err := s.client.GetMarketItem(context.Background(), big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, other, item.Owner)

	code, body = s.do(t, http.MethodPost, "/api/items/1/transfer", map[string]any{"to": "0x1234"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "malformed_value", body["kind"])
}
