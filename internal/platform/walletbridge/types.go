package walletbridge

import (
	"encoding/json"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/wallet"
)

// Request is a frame sent to the relay page, which forwards it to
// window.ethereum.request.
type Request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// Frame is anything the relay page sends back: a response (ID set) or a
// provider event (Event set).
type Frame struct {
	ID     uint64                `json:"id,omitempty"`
	Result json.RawMessage       `json:"result,omitempty"`
	Error  *wallet.ProviderError `json:"error,omitempty"`
	Event  string                `json:"event,omitempty"`
	Data   json.RawMessage       `json:"data,omitempty"`
}

type response struct {
	result json.RawMessage
	err    error
}

// toEvent converts an event frame into a provider event. ok is false for
// unknown or malformed events.
func toEvent(f Frame) (wallet.Event, bool) {
	switch wallet.EventKind(f.Event) {
	case wallet.EventAccountsChanged:
		var accounts []string
		if err := json.Unmarshal(f.Data, &accounts); err != nil {
			return wallet.Event{}, false
		}
		return wallet.Event{Kind: wallet.EventAccountsChanged, Accounts: accounts}, true
	case wallet.EventChainChanged:
		var chainID string
		if err := json.Unmarshal(f.Data, &chainID); err != nil {
			return wallet.Event{}, false
		}
		return wallet.Event{Kind: wallet.EventChainChanged, ChainID: chainID}, true
	case wallet.EventDisconnect:
		return wallet.Event{Kind: wallet.EventDisconnect}, true
	default:
		return wallet.Event{}, false
	}
}
