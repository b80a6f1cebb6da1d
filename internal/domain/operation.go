package domain

import (
	"math/big"
	"time"
)

// OpKind names a ledger-mutating marketplace operation.
type OpKind string

const (
	OpMint          OpKind = "mint"
	OpList          OpKind = "list"
	OpCancelListing OpKind = "cancel_listing"
	OpBuy           OpKind = "buy"
	OpCreateAuction OpKind = "create_auction"
	OpPlaceBid      OpKind = "place_bid"
	OpEndAuction    OpKind = "end_auction"
	OpTransfer      OpKind = "transfer"
)

// OpKey identifies a pending operation. Entity is the decimal token id, or
// the metadata URI for mints.
type OpKey struct {
	Kind   OpKind
	Entity string
}

// TokenOp builds the key for an operation on an existing token.
func TokenOp(kind OpKind, tokenID *big.Int) OpKey {
	return OpKey{Kind: kind, Entity: tokenID.String()}
}

func (k OpKey) String() string { return string(k.Kind) + ":" + k.Entity }

// OperationStatus tracks a journaled write.
type OperationStatus string

const (
	OperationSubmitted OperationStatus = "submitted"
	OperationConfirmed OperationStatus = "confirmed"
	OperationFailed    OperationStatus = "failed"
)

// OperationRecord is one journaled marketplace write.
type OperationRecord struct {
	ID        string          `json:"id"`
	Kind      OpKind          `json:"kind"`
	Entity    string          `json:"entity"`
	Account   string          `json:"account"`
	ChainID   uint64          `json:"chainId"`
	Status    OperationStatus `json:"status"`
	TxHash    string          `json:"txHash,omitempty"`
	ErrorKind string          `json:"errorKind,omitempty"`
	Error     string          `json:"error,omitempty"`
	Detail    map[string]any  `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
