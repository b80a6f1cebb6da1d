// Package walletbridge is a wallet.Provider that relays EIP-1193 requests to
// a browser page holding the user's injected wallet, over a WebSocket.
package walletbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/wallet"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// Client relays provider requests to the bridge page. Requests wait for the
// user, so they are bounded only by the caller's context.
type Client struct {
	url    string
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex

	nextID  atomic.Uint64
	pendMu  sync.Mutex
	pending map[uint64]chan response

	lisMu     sync.RWMutex
	listeners map[int]wallet.Listener
	nextLis   int

	done chan struct{}
}

// NewClient creates a bridge client for the relay endpoint, e.g.
// "ws://127.0.0.1:8546/bridge".
func NewClient(url string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:       url,
		logger:    logger.With(slog.String("component", "walletbridge")),
		pending:   make(map[uint64]chan response),
		listeners: make(map[int]wallet.Listener),
		done:      make(chan struct{}),
	}
}

// Connect dials the relay and starts the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("walletbridge: connect: client closed: %w", domain.ErrProviderUnavailable)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("walletbridge: connect: %w: %w", domain.ErrNetworkError, err)
	}

	c.conn = conn
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readLoop(conn)
	go c.pingLoop(conn)

	c.logger.InfoContext(ctx, "wallet bridge connected", slog.String("url", c.url))
	return nil
}

// Request forwards an EIP-1193 request and waits for the page's answer.
func (c *Client) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	id := c.nextID.Add(1)
	ch := make(chan response, 1)

	c.pendMu.Lock()
	c.pending[id] = ch
	c.pendMu.Unlock()
	defer func() {
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
	}()

	if err := c.write(Request{ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("walletbridge: %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("walletbridge: %s: %w", method, ctx.Err())
	case <-c.done:
		return nil, fmt.Errorf("walletbridge: %s: client closed: %w", method, domain.ErrProviderUnavailable)
	case resp := <-ch:
		if resp.err != nil {
			return nil, resp.err
		}
		return resp.result, nil
	}
}

// Subscribe registers a provider event listener.
func (c *Client) Subscribe(l wallet.Listener) func() {
	c.lisMu.Lock()
	id := c.nextLis
	c.nextLis++
	c.listeners[id] = l
	c.lisMu.Unlock()

	return func() {
		c.lisMu.Lock()
		delete(c.listeners, id)
		c.lisMu.Unlock()
	}
}

// Close shuts down the connection and fails outstanding requests.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.conn != nil {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		c.writeMu.Unlock()
		return c.conn.Close()
	}
	return nil
}

var _ wallet.Provider = (*Client)(nil)

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func (c *Client) write(req Request) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected: %w", domain.ErrNetworkError)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w: %w", domain.ErrNetworkError, err)
	}
	return nil
}

// readLoop dispatches frames from conn until it fails, then reconnects.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("wallet bridge connection lost", slog.String("error", err.Error()))
			c.failPending(fmt.Errorf("walletbridge: connection lost: %w: %w", domain.ErrNetworkError, err))
			c.reconnect()
			return
		}
		c.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.logger.Debug("dropping unparseable bridge frame", slog.String("error", err.Error()))
		return
	}

	if f.Event != "" {
		ev, ok := toEvent(f)
		if !ok {
			c.logger.Debug("dropping unknown bridge event", slog.String("event", f.Event))
			return
		}
		c.lisMu.RLock()
		listeners := make([]wallet.Listener, 0, len(c.listeners))
		for _, l := range c.listeners {
			listeners = append(listeners, l)
		}
		c.lisMu.RUnlock()
		for _, l := range listeners {
			l(ev)
		}
		return
	}

	c.pendMu.Lock()
	ch, ok := c.pending[f.ID]
	c.pendMu.Unlock()
	if !ok {
		return
	}
	resp := response{result: f.Result}
	if f.Error != nil {
		resp = response{err: f.Error}
	}
	select {
	case ch <- resp:
	default:
	}
}

func (c *Client) failPending(err error) {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	for id, ch := range c.pending {
		select {
		case ch <- response{err: err}:
		default:
		}
		delete(c.pending, id)
	}
}

// reconnect re-dials with exponential backoff until it succeeds or the client
// is closed.
func (c *Client) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
