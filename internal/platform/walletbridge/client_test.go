package walletbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/wallet"
)

// relayPage plays the browser side of the bridge.
type relayPage struct {
	t       *testing.T
	handler func(req Request) Frame
	conns   chan *websocket.Conn
}

func newRelay(t *testing.T, handler func(req Request) Frame) (*relayPage, string) {
	t.Helper()
	rp := &relayPage{t: t, handler: handler, conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		rp.conns <- conn
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if f := rp.handler(req); f.ID != 0 {
				_ = conn.WriteJSON(f)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return rp, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connectClient(t *testing.T, url string) *Client {
	t.Helper()
	c := NewClient(url, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRequestRoundTrip(t *testing.T) {
	t.Parallel()
	_, url := newRelay(t, func(req Request) Frame {
		switch req.Method {
		case "eth_requestAccounts":
			return Frame{ID: req.ID, Result: json.RawMessage(`["0xabc"]`)}
		case "wallet_switchEthereumChain":
			params, _ := json.Marshal(req.Params)
			if !strings.Contains(string(params), `"chainId":"0x1"`) {
				return Frame{ID: req.ID, Error: &wallet.ProviderError{Code: -32602, Message: "bad params"}}
			}
			return Frame{ID: req.ID, Result: json.RawMessage(`null`)}
		default:
			return Frame{ID: req.ID, Error: &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request."}}
		}
	})
	c := connectClient(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := c.Request(ctx, "eth_requestAccounts")
	require.NoError(t, err)
	assert.JSONEq(t, `["0xabc"]`, string(raw))

	_, err = c.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": "0x1"})
	require.NoError(t, err)

	_, err = c.Request(ctx, "eth_sendTransaction", map[string]string{})
	code, ok := wallet.ErrorCode(err)
	require.True(t, ok)
	assert.Equal(t, wallet.CodeUserRejected, code)
}

func TestRequestHonoursContext(t *testing.T) {
	t.Parallel()
	_, url := newRelay(t, func(Request) Frame { return Frame{} }) // never answers
	c := connectClient(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Request(ctx, "eth_requestAccounts")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventsReachListeners(t *testing.T) {
	t.Parallel()
	rp, url := newRelay(t, func(Request) Frame { return Frame{} })
	c := connectClient(t, url)

	events := make(chan wallet.Event, 4)
	unsubscribe := c.Subscribe(func(ev wallet.Event) { events <- ev })
	defer unsubscribe()

	page := <-rp.conns
	require.NoError(t, page.WriteJSON(map[string]any{"event": "accountsChanged", "data": []string{"0xdef"}}))
	require.NoError(t, page.WriteJSON(map[string]any{"event": "chainChanged", "data": "0xaa36a7"}))
	require.NoError(t, page.WriteJSON(map[string]any{"event": "somethingElse", "data": 1}))
	require.NoError(t, page.WriteJSON(map[string]any{"event": "disconnect"}))

	want := []wallet.Event{
		{Kind: wallet.EventAccountsChanged, Accounts: []string{"0xdef"}},
		{Kind: wallet.EventChainChanged, ChainID: "0xaa36a7"},
		{Kind: wallet.EventDisconnect},
	}
	for _, w := range want {
		select {
		case got := <-events:
			assert.Equal(t, w, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s", w.Kind)
		}
	}
}

func TestRequestWithoutConnection(t *testing.T) {
	t.Parallel()
	c := NewClient("ws://127.0.0.1:1/bridge", nil)
	defer c.Close()
	_, err := c.Request(context.Background(), "eth_accounts")
	require.Error(t, err)
}

func TestCloseFailsWaitingRequests(t *testing.T) {
	t.Parallel()
	_, url := newRelay(t, func(Request) Frame { return Frame{} })
	c := connectClient(t, url)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "eth_requestAccounts")
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("request not released by Close")
	}
}
