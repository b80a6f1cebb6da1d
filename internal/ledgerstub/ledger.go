// Package ledgerstub is an in-memory NFTMarketplace ledger. It decodes
// calldata with the contract ABI, enforces the contract's rules, and mines
// every transaction into its own block. It backs the sandbox mode and the
// marketplace tests.
package ledgerstub

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
)

// DefaultAddress is where a first deployment lands on a fresh local node.
var DefaultAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

var (
	defaultMintingPrice = big.NewInt(1_000_000_000_000_000) // 0.001 ether
	defaultListingPrice = big.NewInt(2_500_000_000_000_000) // 0.0025 ether
	baseFee             = big.NewInt(1_000_000_000)
)

const gasPerTx = 150_000

// Ledger is the in-memory contract plus the minimal chain around it.
type Ledger struct {
	address common.Address
	chainID *big.Int
	now     func() time.Time
	abi     abi.ABI

	mu           sync.Mutex
	mintingPrice *big.Int
	listingPrice *big.Int
	nextTokenID  int64
	items        map[int64]*domain.MarketItem
	auctions     map[int64]*domain.Auction
	uris         map[int64]string
	balances     map[common.Address]*big.Int
	nonces       map[common.Address]uint64
	receipts     map[common.Hash]*types.Receipt
	block        uint64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithAddress deploys the contract at addr.
func WithAddress(addr common.Address) Option {
	return func(l *Ledger) { l.address = addr }
}

// WithChainID sets the chain id signed transactions must carry.
func WithChainID(id uint64) Option {
	return func(l *Ledger) { l.chainID = new(big.Int).SetUint64(id) }
}

// WithClock overrides block time.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithFees sets the minting and listing fees.
func WithFees(minting, listing *big.Int) Option {
	return func(l *Ledger) {
		l.mintingPrice = new(big.Int).Set(minting)
		l.listingPrice = new(big.Int).Set(listing)
	}
}

// New deploys an empty marketplace.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		address:      DefaultAddress,
		chainID:      big.NewInt(31337),
		now:          time.Now,
		abi:          marketplace.ABI(),
		mintingPrice: new(big.Int).Set(defaultMintingPrice),
		listingPrice: new(big.Int).Set(defaultListingPrice),
		items:        make(map[int64]*domain.MarketItem),
		auctions:     make(map[int64]*domain.Auction),
		uris:         make(map[int64]string),
		balances:     make(map[common.Address]*big.Int),
		nonces:       make(map[common.Address]uint64),
		receipts:     make(map[common.Hash]*types.Receipt),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Address returns the contract address.
func (l *Ledger) Address() common.Address { return l.address }

// ChainID returns the ledger's chain id.
func (l *Ledger) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.chainID), nil
}

// Fund credits wei to addr.
func (l *Ledger) Fund(addr common.Address, wei *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, wei)
}

// BalanceOf returns addr's balance.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(addr))
}

// BalanceAt implements the ethclient balance query.
func (l *Ledger) BalanceAt(_ context.Context, addr common.Address, _ *big.Int) (*big.Int, error) {
	return l.BalanceOf(addr), nil
}

func (l *Ledger) balance(addr common.Address) *big.Int {
	b, ok := l.balances[addr]
	if !ok {
		b = new(big.Int)
		l.balances[addr] = b
	}
	return b
}

func (l *Ledger) credit(addr common.Address, wei *big.Int) {
	if wei == nil || wei.Sign() == 0 {
		return
	}
	l.balance(addr).Add(l.balance(addr), wei)
}

func (l *Ledger) debit(addr common.Address, wei *big.Int) {
	if wei == nil || wei.Sign() == 0 {
		return
	}
	l.balance(addr).Sub(l.balance(addr), wei)
}

// ---------- chain surface ----------

// CallContract executes msg against current state without committing.
func (l *Ledger) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || *msg.To != l.address {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out, _, err := l.execute(msg.From, msg.Value, msg.Data, false)
	return out, err
}

// EstimateGas dry-runs msg and reports a flat gas figure, or the revert.
func (l *Ledger) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkFunds(msg.From, msg.Value); err != nil {
		return 0, err
	}
	if msg.To != nil && *msg.To == l.address {
		if _, _, err := l.execute(msg.From, msg.Value, msg.Data, false); err != nil {
			return 0, err
		}
	}
	return gasPerTx, nil
}

// PendingNonceAt returns the next nonce for account.
func (l *Ledger) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonces[account], nil
}

// SuggestGasTipCap returns a fixed priority fee.
func (l *Ledger) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

// HeaderByNumber returns the latest header. The number is ignored.
func (l *Ledger) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &types.Header{
		Number:  new(big.Int).SetUint64(l.block),
		Time:    uint64(l.now().Unix()),
		BaseFee: new(big.Int).Set(baseFee),
	}, nil
}

// SendTransaction mines a signed transaction. A reverting transaction is
// mined with a failed receipt, as a node would.
func (l *Ledger) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if tx.ChainId().Cmp(l.chainID) != 0 {
		return fmt.Errorf("invalid chain id: have %s want %s", tx.ChainId(), l.chainID)
	}
	from, err := types.Sender(types.LatestSignerForChainID(l.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	switch want := l.nonces[from]; {
	case tx.Nonce() < want:
		return fmt.Errorf("nonce too low: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), want)
	case tx.Nonce() > want:
		return fmt.Errorf("nonce too high: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), want)
	}
	if err := l.checkFunds(from, tx.Value()); err != nil {
		return err
	}
	l.mine(tx.Hash(), from, tx.To(), tx.Value(), tx.Data())
	return nil
}

// TransactionReceipt returns a mined receipt or ethereum.NotFound.
func (l *Ledger) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	cp := *r
	return &cp, nil
}

func (l *Ledger) checkFunds(from common.Address, value *big.Int) error {
	if value != nil && l.balance(from).Cmp(value) < 0 {
		return fmt.Errorf("insufficient funds for gas * price + value: address %s have %s want %s",
			from.Hex(), l.balance(from), value)
	}
	return nil
}

// mine executes and records one transaction. Callers hold mu and have
// checked the sender's funds.
func (l *Ledger) mine(hash common.Hash, from common.Address, to *common.Address, value *big.Int, data []byte) *types.Receipt {
	l.nonces[from]++
	l.block++

	receipt := &types.Receipt{
		Type:              types.DynamicFeeTxType,
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: gasPerTx,
		GasUsed:           gasPerTx,
		TxHash:            hash,
		BlockNumber:       new(big.Int).SetUint64(l.block),
		BlockHash:         crypto.Keccak256Hash(binary.BigEndian.AppendUint64(nil, l.block)),
		EffectiveGasPrice: new(big.Int).Set(baseFee),
		Logs:              []*types.Log{},
	}

	switch {
	case to == nil || *to != l.address:
		l.debit(from, value)
		if to != nil {
			l.credit(*to, value)
		}
	default:
		_, logs, err := l.execute(from, value, data, true)
		if err != nil {
			receipt.Status = types.ReceiptStatusFailed
			break
		}
		l.debit(from, value)
		l.credit(l.address, value)
		for i, lg := range logs {
			lg.TxHash = hash
			lg.BlockNumber = l.block
			lg.BlockHash = receipt.BlockHash
			lg.Index = uint(i)
		}
		if logs != nil {
			receipt.Logs = logs
		}
	}
	l.receipts[hash] = receipt
	return receipt
}

// Account impersonates addr, the way a development node lets a test send
// from an unlocked account without a key.
func (l *Ledger) Account(addr common.Address) *Account {
	return &Account{ledger: l, address: addr}
}

// Account submits unsigned transactions for one address.
type Account struct {
	ledger  *Ledger
	address common.Address
}

// Address returns the impersonated address.
func (a *Account) Address() common.Address { return a.address }

// SendTransaction dry-runs msg and mines it. When msg carries no gas limit a
// revert is reported immediately, as gas estimation would; with an explicit
// limit the transaction is mined and fails in its receipt.
func (a *Account) SendTransaction(_ context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	l := a.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkFunds(a.address, msg.Value); err != nil {
		return common.Hash{}, err
	}
	if msg.Gas == 0 && msg.To != nil && *msg.To == l.address {
		if _, _, err := l.execute(a.address, msg.Value, msg.Data, false); err != nil {
			return common.Hash{}, err
		}
	}
	nonce := binary.BigEndian.AppendUint64(nil, l.nonces[a.address])
	hash := crypto.Keccak256Hash(a.address.Bytes(), nonce, msg.Data)
	l.mine(hash, a.address, msg.To, msg.Value, msg.Data)
	return hash, nil
}
