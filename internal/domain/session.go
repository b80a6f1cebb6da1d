package domain

import "time"

// SessionState is the lifecycle position of a wallet session.
type SessionState int

const (
	SessionDisconnected SessionState = iota
	SessionConnecting
	SessionConnected
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// WalletSession is a snapshot of the connection to the user's wallet.
// Account is lowercase hex, or empty when no account is connected.
type WalletSession struct {
	Account    string `json:"account"`
	ChainID    uint64 `json:"chainId"`
	Connecting bool   `json:"connecting"`
}

// Connected reports whether an account is present.
func (s WalletSession) Connected() bool { return s.Account != "" }

// State derives the lifecycle state. A connected account wins over an
// in-flight connect attempt.
func (s WalletSession) State() SessionState {
	switch {
	case s.Connected():
		return SessionConnected
	case s.Connecting:
		return SessionConnecting
	default:
		return SessionDisconnected
	}
}

// SessionEventKind names a session transition.
type SessionEventKind string

const (
	SessionEventConnected      SessionEventKind = "connected"
	SessionEventDisconnected   SessionEventKind = "disconnected"
	SessionEventAccountChanged SessionEventKind = "account_changed"
	SessionEventNetworkChanged SessionEventKind = "network_changed"
)

// SessionEvent is delivered to session observers after each transition.
// ResetRequired tells hosts to drop every piece of network-scoped state.
type SessionEvent struct {
	Kind          SessionEventKind `json:"kind"`
	Session       WalletSession    `json:"session"`
	Previous      WalletSession    `json:"previous"`
	ResetRequired bool             `json:"resetRequired,omitempty"`
	At            time.Time        `json:"at"`
}
