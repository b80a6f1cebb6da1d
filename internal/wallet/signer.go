package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

// ProviderSigner submits transactions through the wallet, which signs them
// with the user's key after the user approves.
type ProviderSigner struct {
	provider Provider
	from     common.Address
}

// NewProviderSigner binds a signer to from. The provider must hold the key.
func NewProviderSigner(p Provider, from common.Address) *ProviderSigner {
	return &ProviderSigner{provider: p, from: from}
}

// Address returns the signing account.
func (s *ProviderSigner) Address() common.Address { return s.from }

// SendTransaction asks the wallet to sign and broadcast msg. Gas and fee
// fields are left to the wallet unless msg sets Gas.
func (s *ProviderSigner) SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	if msg.To == nil {
		return common.Hash{}, fmt.Errorf("wallet: send transaction: contract creation is not supported: %w", domain.ErrMalformedValue)
	}
	tx := map[string]string{
		"from": s.from.Hex(),
		"to":   msg.To.Hex(),
		"data": hexutil.Encode(msg.Data),
	}
	if msg.Value != nil && msg.Value.Sign() > 0 {
		tx["value"] = hexutil.EncodeBig(msg.Value)
	}
	if msg.Gas > 0 {
		tx["gas"] = hexutil.EncodeUint64(msg.Gas)
	}

	raw, err := s.provider.Request(ctx, "eth_sendTransaction", tx)
	if err != nil {
		return common.Hash{}, err
	}
	var hash common.Hash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("wallet: decode transaction hash: %w: %w", domain.ErrMalformedValue, err)
	}
	return hash, nil
}

// ProviderBackend reads ledger state through the wallet's own node
// connection, so a browser-hosted wallet needs no separate RPC endpoint.
type ProviderBackend struct {
	provider Provider
}

// NewProviderBackend wraps p.
func NewProviderBackend(p Provider) *ProviderBackend {
	return &ProviderBackend{provider: p}
}

// CallContract executes a read-only call via eth_call.
func (b *ProviderBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	call := map[string]string{
		"data": hexutil.Encode(msg.Data),
	}
	if msg.To != nil {
		call["to"] = msg.To.Hex()
	}
	if msg.From != (common.Address{}) {
		call["from"] = msg.From.Hex()
	}
	if msg.Value != nil && msg.Value.Sign() > 0 {
		call["value"] = hexutil.EncodeBig(msg.Value)
	}
	block := "latest"
	if blockNumber != nil {
		block = hexutil.EncodeBig(blockNumber)
	}

	raw, err := b.provider.Request(ctx, "eth_call", call, block)
	if err != nil {
		return nil, err
	}
	var out hexutil.Bytes
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("wallet: decode call result: %w: %w", domain.ErrMalformedValue, err)
	}
	return out, nil
}

// TransactionReceipt returns the receipt of a mined transaction, or
// ethereum.NotFound while it is pending.
func (b *ProviderBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	raw, err := b.provider.Request(ctx, "eth_getTransactionReceipt", hash.Hex())
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ethereum.NotFound
	}
	var r types.Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("wallet: decode receipt: %w: %w", domain.ErrMalformedValue, err)
	}
	return &r, nil
}

// IsPending reports whether err means the receipt is not available yet.
func IsPending(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}
