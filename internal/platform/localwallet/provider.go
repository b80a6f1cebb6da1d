// Package localwallet is a headless wallet.Provider: it holds a private key,
// signs transactions itself, and talks to a ledger node for everything else.
package localwallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/crypto"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/wallet"
)

// Chain is the node surface the provider needs. *ethclient.Client satisfies
// it.
type Chain interface {
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.TransactionSender
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Provider signs with a local key. It never emits accountsChanged; the
// account is fixed for its lifetime.
type Provider struct {
	chain  Chain
	signer *crypto.Signer
	logger *slog.Logger

	// sendMu serialises nonce assignment.
	sendMu sync.Mutex

	lisMu     sync.Mutex
	listeners map[int]wallet.Listener
	nextLis   int
}

// New creates a Provider for signer on chain.
func New(chain Chain, signer *crypto.Signer, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		chain:     chain,
		signer:    signer,
		logger:    logger.With(slog.String("component", "localwallet")),
		listeners: make(map[int]wallet.Listener),
	}
}

// Address returns the account the provider signs for.
func (p *Provider) Address() common.Address { return p.signer.Address() }

// Subscribe registers a listener. Only chain changes made through this
// provider are ever delivered.
func (p *Provider) Subscribe(l wallet.Listener) func() {
	p.lisMu.Lock()
	id := p.nextLis
	p.nextLis++
	p.listeners[id] = l
	p.lisMu.Unlock()
	return func() {
		p.lisMu.Lock()
		delete(p.listeners, id)
		p.lisMu.Unlock()
	}
}

// Request implements wallet.Provider.
func (p *Provider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_accounts", "eth_requestAccounts":
		return json.Marshal([]string{strings.ToLower(p.signer.Address().Hex())})
	case "eth_chainId":
		return json.Marshal(normalize.HexChainID(p.signer.ChainID().Uint64()))
	case "wallet_switchEthereumChain":
		return p.switchChain(params)
	case "eth_sendTransaction":
		return p.sendTransaction(ctx, params)
	case "eth_call":
		return p.call(ctx, params)
	case "eth_getTransactionReceipt":
		return p.receipt(ctx, params)
	case "personal_sign":
		return p.personalSign(params)
	default:
		return nil, &wallet.ProviderError{Code: wallet.CodeUnsupported, Message: "unsupported method " + method}
	}
}

// txArgs is the eth_sendTransaction / eth_call parameter object.
type txArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
	Gas   *hexutil.Uint64 `json:"gas"`
}

func (a txArgs) data() []byte {
	if len(a.Input) > 0 {
		return a.Input
	}
	return a.Data
}

func (a txArgs) callMsg(from common.Address) ethereum.CallMsg {
	msg := ethereum.CallMsg{From: from, To: a.To, Data: a.data()}
	if a.Value != nil {
		msg.Value = a.Value.ToInt()
	}
	return msg
}

func (p *Provider) switchChain(params []any) (json.RawMessage, error) {
	var arg struct {
		ChainID string `json:"chainId"`
	}
	if err := decodeParam(params, 0, &arg); err != nil {
		return nil, err
	}
	want, err := normalize.ChainID(arg.ChainID)
	if err != nil {
		return nil, invalidParams(err)
	}
	if want != p.signer.ChainID().Uint64() {
		return nil, &wallet.ProviderError{
			Code:    wallet.CodeUnrecognizedChain,
			Message: fmt.Sprintf("Unrecognized chain ID %q.", arg.ChainID),
		}
	}
	return json.RawMessage("null"), nil
}

func (p *Provider) sendTransaction(ctx context.Context, params []any) (json.RawMessage, error) {
	var args txArgs
	if err := decodeParam(params, 0, &args); err != nil {
		return nil, err
	}
	from := p.signer.Address()
	if args.From != nil && *args.From != from {
		return nil, &wallet.ProviderError{Code: wallet.CodeUnauthorized, Message: "from address is not managed by this wallet"}
	}
	if args.To == nil {
		return nil, invalidParams(errors.New("contract creation is not supported"))
	}
	msg := args.callMsg(from)

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	gas := uint64(0)
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	} else {
		est, err := p.chain.EstimateGas(ctx, msg)
		if err != nil {
			return nil, err
		}
		gas = est + est/5
	}
	nonce, err := p.chain.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("localwallet: nonce: %w", err)
	}
	tip, err := p.chain.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("localwallet: gas tip: %w", err)
	}
	head, err := p.chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("localwallet: latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   p.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        args.To,
		Value:     value,
		Data:      msg.Data,
	})
	signed, err := p.signer.SignTx(tx)
	if err != nil {
		return nil, err
	}
	if err := p.chain.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	p.logger.DebugContext(ctx, "transaction sent",
		slog.String("hash", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
	)
	return json.Marshal(signed.Hash())
}

func (p *Provider) call(ctx context.Context, params []any) (json.RawMessage, error) {
	var args txArgs
	if err := decodeParam(params, 0, &args); err != nil {
		return nil, err
	}
	var block *big.Int
	if len(params) > 1 {
		var tag string
		if err := decodeParam(params, 1, &tag); err != nil {
			return nil, err
		}
		if tag != "latest" && tag != "pending" {
			n, err := hexutil.DecodeBig(tag)
			if err != nil {
				return nil, invalidParams(err)
			}
			block = n
		}
	}
	from := common.Address{}
	if args.From != nil {
		from = *args.From
	}
	out, err := p.chain.CallContract(ctx, args.callMsg(from), block)
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Bytes(out))
}

func (p *Provider) receipt(ctx context.Context, params []any) (json.RawMessage, error) {
	var hash common.Hash
	if err := decodeParam(params, 0, &hash); err != nil {
		return nil, err
	}
	r, err := p.chain.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return json.RawMessage("null"), nil
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

func (p *Provider) personalSign(params []any) (json.RawMessage, error) {
	var data hexutil.Bytes
	if err := decodeParam(params, 0, &data); err != nil {
		return nil, err
	}
	sig, err := p.signer.SignMessage(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Bytes(sig))
}

var _ wallet.Provider = (*Provider)(nil)

// decodeParam re-encodes params[i] through JSON into dst so callers may pass
// either Go values or raw JSON.
func decodeParam(params []any, i int, dst any) error {
	if i >= len(params) {
		return invalidParams(fmt.Errorf("missing parameter %d", i))
	}
	raw, err := json.Marshal(params[i])
	if err != nil {
		return invalidParams(err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams(err)
	}
	return nil
}

func invalidParams(err error) error {
	return &wallet.ProviderError{Code: -32602, Message: "invalid params: " + err.Error()}
}
