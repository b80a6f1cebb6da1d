package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MarketItem is the ledger's record of a token's sale state.
type MarketItem struct {
	TokenID  *big.Int
	Seller   common.Address
	Owner    common.Address
	Price    *big.Int
	Sold     bool
	IsListed bool
}

// Exists reports whether the ledger returned a populated record. The contract
// answers lookups of unknown tokens with a zero-valued struct.
func (m MarketItem) Exists() bool {
	return m.TokenID != nil && m.TokenID.Sign() > 0
}

// Validate checks the record's invariants.
func (m MarketItem) Validate() error {
	if m.Sold && m.IsListed {
		return fmt.Errorf("market item %s: sold item is still listed: %w", m.TokenID, ErrMalformedValue)
	}
	if m.Price != nil && m.Price.Sign() < 0 {
		return fmt.Errorf("market item %s: negative price: %w", m.TokenID, ErrMalformedValue)
	}
	return nil
}

// NFTMetadata is the JSON document a token URI points at.
type NFTMetadata struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Image       string         `json:"image"`
	Attributes  []NFTAttribute `json:"attributes,omitempty"`
}

// NFTAttribute is a single trait in NFTMetadata.
type NFTAttribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}
