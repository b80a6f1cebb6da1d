package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
)

// Observer is notified after every session transition.
type Observer func(domain.SessionEvent)

// Manager owns the single live WalletSession. Consumers read snapshots and
// subscribe to transitions; only the Manager talks to the provider's event
// stream.
type Manager struct {
	provider Provider
	logger   *slog.Logger
	now      func() time.Time
	restore  bool

	mu         sync.RWMutex
	account    string
	chainID    uint64
	connecting int

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int

	subMu       sync.Mutex
	unsubscribe func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the Manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRestore controls whether Start reconnects a wallet that has already
// authorised this host. It defaults to true.
func WithRestore(enabled bool) Option {
	return func(m *Manager) { m.restore = enabled }
}

// NewManager creates a Manager over provider. A nil provider models a host
// with no wallet installed: every request fails with ErrProviderUnavailable.
func NewManager(provider Provider, opts ...Option) *Manager {
	m := &Manager{
		provider:  provider,
		logger:    slog.Default(),
		now:       time.Now,
		restore:   true,
		observers: make(map[int]Observer),
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.With(slog.String("component", "wallet"))
	return m
}

// Start subscribes to provider events and silently restores a session the
// wallet has already authorised. Restore failures are logged and leave the
// session disconnected.
func (m *Manager) Start(ctx context.Context) {
	if m.provider == nil {
		m.logger.InfoContext(ctx, "no wallet provider detected; session stays disconnected",
			slog.String("install", InstallURL),
		)
		return
	}

	m.subMu.Lock()
	if m.unsubscribe == nil {
		m.unsubscribe = m.provider.Subscribe(m.handleEvent)
	}
	m.subMu.Unlock()

	if !m.restore {
		return
	}
	raw, err := m.provider.Request(ctx, "eth_accounts")
	if err != nil {
		m.logger.WarnContext(ctx, "query authorised accounts failed", slog.String("error", err.Error()))
		return
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil || len(accounts) == 0 {
		return
	}
	if _, err := m.Connect(ctx); err != nil {
		m.logger.WarnContext(ctx, "silent reconnect failed", slog.String("error", err.Error()))
	}
}

// Close detaches from the provider's event stream. It is safe to call more
// than once.
func (m *Manager) Close() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() domain.WalletSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() domain.WalletSession {
	return domain.WalletSession{
		Account:    m.account,
		ChainID:    m.chainID,
		Connecting: m.connecting > 0,
	}
}

// Connect asks the wallet for account access and records the first account
// and the wallet's current chain. Concurrent calls are not serialised; the
// last to finish determines the session.
func (m *Manager) Connect(ctx context.Context) (domain.WalletSession, error) {
	if m.provider == nil {
		m.logger.WarnContext(ctx, "connect requested without a wallet provider",
			slog.String("install", InstallURL),
		)
		return domain.WalletSession{}, fmt.Errorf("wallet: connect: %w", domain.ErrProviderUnavailable)
	}

	m.mu.Lock()
	m.connecting++
	m.mu.Unlock()

	committed := false
	defer func() {
		if !committed {
			m.mu.Lock()
			m.connecting--
			m.mu.Unlock()
		}
	}()

	raw, err := m.provider.Request(ctx, "eth_requestAccounts")
	if err != nil {
		err = TranslateError(err, domain.ErrConnectFailed, CodeUserRejected)
		m.logger.WarnContext(ctx, "wallet connect failed", slog.String("error", err.Error()))
		return domain.WalletSession{}, fmt.Errorf("wallet: connect: %w", err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return domain.WalletSession{}, fmt.Errorf("wallet: connect: decode accounts: %w: %w", domain.ErrConnectFailed, err)
	}
	if len(accounts) == 0 {
		return domain.WalletSession{}, fmt.Errorf("wallet: connect: %w", domain.ErrNoAccountsReturned)
	}
	account, err := normalize.AccountKey(accounts[0])
	if err != nil {
		return domain.WalletSession{}, fmt.Errorf("wallet: connect: %w: %w", domain.ErrConnectFailed, err)
	}

	raw, err = m.provider.Request(ctx, "eth_chainId")
	if err != nil {
		return domain.WalletSession{}, fmt.Errorf("wallet: connect: chain id: %w", TranslateError(err, domain.ErrConnectFailed, CodeUserRejected))
	}
	chainID, err := decodeChainID(raw)
	if err != nil {
		return domain.WalletSession{}, fmt.Errorf("wallet: connect: chain id: %w: %w", domain.ErrConnectFailed, err)
	}

	m.mu.Lock()
	prev := m.snapshotLocked()
	m.connecting--
	committed = true
	m.account = account
	m.chainID = chainID
	cur := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "wallet connected",
		slog.String("account", normalize.ShortAddress(account)),
		slog.Uint64("chain_id", chainID),
		slog.String("network", NetworkName(chainID)),
	)
	m.emit(domain.SessionEventConnected, prev, cur, false)
	return cur, nil
}

// Disconnect clears the local session. The wallet itself keeps its
// authorisation; this never fails.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	prev := m.snapshotLocked()
	m.account = ""
	m.chainID = 0
	cur := m.snapshotLocked()
	m.mu.Unlock()

	if !prev.Connected() {
		return
	}
	m.logger.Info("wallet disconnected", slog.String("account", normalize.ShortAddress(prev.Account)))
	m.emit(domain.SessionEventDisconnected, prev, cur, false)
}

// SwitchNetwork asks the wallet to change chains. The session's chain id is
// updated only when the wallet reports chainChanged.
func (m *Manager) SwitchNetwork(ctx context.Context, chainID uint64) error {
	if m.provider == nil {
		return fmt.Errorf("wallet: switch network: %w", domain.ErrProviderUnavailable)
	}
	if chainID == 0 {
		return fmt.Errorf("wallet: switch network: chain id must be positive: %w", domain.ErrMalformedValue)
	}

	param := map[string]string{"chainId": normalize.HexChainID(chainID)}
	if _, err := m.provider.Request(ctx, "wallet_switchEthereumChain", param); err != nil {
		err = TranslateError(err, domain.ErrSwitchFailed, CodeUnrecognizedChain)
		m.logger.WarnContext(ctx, "network switch failed",
			slog.Uint64("chain_id", chainID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("wallet: switch network: %w", err)
	}
	m.logger.InfoContext(ctx, "network switch requested",
		slog.Uint64("chain_id", chainID),
		slog.String("network", NetworkName(chainID)),
	)
	return nil
}

// Signer returns a signing identity bound to the connected account.
func (m *Manager) Signer() (*ProviderSigner, error) {
	s := m.Session()
	if !s.Connected() {
		return nil, fmt.Errorf("wallet: signer: %w", domain.ErrNotConnected)
	}
	if m.provider == nil {
		return nil, fmt.Errorf("wallet: signer: %w", domain.ErrProviderUnavailable)
	}
	return NewProviderSigner(m.provider, common.HexToAddress(s.Account)), nil
}

// Subscribe registers an observer. The returned function removes it.
func (m *Manager) Subscribe(o Observer) (cancel func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = o
	m.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.obsMu.Lock()
			delete(m.observers, id)
			m.obsMu.Unlock()
		})
	}
}

func (m *Manager) emit(kind domain.SessionEventKind, prev, cur domain.WalletSession, reset bool) {
	ev := domain.SessionEvent{
		Kind:          kind,
		Session:       cur,
		Previous:      prev,
		ResetRequired: reset,
		At:            m.now().UTC(),
	}

	m.obsMu.Lock()
	observers := make([]Observer, 0, len(m.observers))
	for _, o := range m.observers {
		observers = append(observers, o)
	}
	m.obsMu.Unlock()

	for _, o := range observers {
		o(ev)
	}
}

// handleEvent applies provider notifications to the session.
func (m *Manager) handleEvent(ev Event) {
	switch ev.Kind {
	case EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			m.Disconnect()
			return
		}
		account, err := normalize.AccountKey(ev.Accounts[0])
		if err != nil {
			m.logger.Warn("ignoring malformed accountsChanged", slog.String("error", err.Error()))
			return
		}
		m.mu.Lock()
		if m.account == "" || m.account == account {
			// No implicit connect while disconnected.
			m.mu.Unlock()
			return
		}
		prev := m.snapshotLocked()
		m.account = account
		cur := m.snapshotLocked()
		m.mu.Unlock()

		m.logger.Info("wallet account changed",
			slog.String("from", normalize.ShortAddress(prev.Account)),
			slog.String("to", normalize.ShortAddress(account)),
		)
		m.emit(domain.SessionEventAccountChanged, prev, cur, false)

	case EventChainChanged:
		chainID, err := normalize.ChainID(ev.ChainID)
		if err != nil {
			m.logger.Warn("ignoring malformed chainChanged", slog.String("error", err.Error()))
			return
		}
		m.mu.Lock()
		prev := m.snapshotLocked()
		if m.account != "" {
			m.chainID = chainID
		}
		cur := m.snapshotLocked()
		m.mu.Unlock()

		m.logger.Info("wallet network changed",
			slog.Uint64("chain_id", chainID),
			slog.String("network", NetworkName(chainID)),
		)
		// Every network-scoped view is stale now, connected or not.
		m.emit(domain.SessionEventNetworkChanged, prev, cur, true)

	case EventDisconnect:
		m.logger.Warn("wallet provider disconnected")
		m.Disconnect()
	}
}

func decodeChainID(raw json.RawMessage) (uint64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return normalize.ChainID(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return normalize.ChainID(n)
	}
	return 0, fmt.Errorf("wallet: chain id %s: %w", string(raw), domain.ErrMalformedValue)
}
