// Package wallet owns the connection to the user's injected wallet: the
// session lifecycle, provider event handling, and a signing identity bound to
// the connected account.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

// Provider error codes defined by EIP-1193 and EIP-3085.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupported       = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
	CodeRequestPending    = -32002
)

// InstallURL is suggested to users who have no wallet installed.
const InstallURL = "https://metamask.io/download/"

// Provider is an EIP-1193 style wallet: a request channel plus an event
// stream. Implementations must be safe for concurrent use.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	Subscribe(listener Listener) (unsubscribe func())
}

// Listener receives provider events on the provider's delivery goroutine.
type Listener func(Event)

// EventKind names a provider event.
type EventKind string

const (
	EventAccountsChanged EventKind = "accountsChanged"
	EventChainChanged    EventKind = "chainChanged"
	EventDisconnect      EventKind = "disconnect"
)

// Event is a provider notification. Accounts is set for accountsChanged and
// ChainID (base-16 with 0x prefix) for chainChanged.
type Event struct {
	Kind     EventKind
	Accounts []string
	ChainID  string
}

// ProviderError is the error object a provider returns for a failed request.
// It satisfies rpc.Error and rpc.DataError so ledger-level code can inspect it
// without importing this package.
type ProviderError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode implements rpc.Error.
func (e *ProviderError) ErrorCode() int { return e.Code }

// ErrorData implements rpc.DataError. Hex revert payloads are returned as
// strings, matching what go-ethereum's own client exposes.
func (e *ProviderError) ErrorData() interface{} {
	if len(e.Data) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil {
		return s
	}
	var v any
	if err := json.Unmarshal(e.Data, &v); err == nil {
		return v
	}
	return string(e.Data)
}

var (
	_ rpc.Error     = (*ProviderError)(nil)
	_ rpc.DataError = (*ProviderError)(nil)
)

// ErrorCode extracts a provider or JSON-RPC error code from err.
func ErrorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

// codeErrors maps the provider codes with a dedicated meaning onto the
// session error taxonomy.
var codeErrors = map[int]error{
	CodeUserRejected:      domain.ErrUserRejected,
	CodeUnrecognizedChain: domain.ErrNetworkNotRegistered,
}

// TranslateError maps a provider failure onto the session error taxonomy.
// Only the codes listed in surface keep their dedicated error; every other
// failure becomes fallback with the provider error still wrapped.
func TranslateError(err error, fallback error, surface ...int) error {
	if err == nil {
		return nil
	}
	if code, ok := ErrorCode(err); ok && slices.Contains(surface, code) {
		if mapped, ok := codeErrors[code]; ok {
			return fmt.Errorf("%w: %w", mapped, err)
		}
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
