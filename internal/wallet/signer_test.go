package wallet

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func TestProviderSignerSendTransaction(t *testing.T) {
	t.Parallel()
	p := newFakeProvider()
	want := common.HexToHash("0x01")
	var sent map[string]string
	p.on("eth_sendTransaction", func(params []any) (any, error) {
		sent = params[0].(map[string]string)
		return want.Hex(), nil
	})

	from := common.HexToAddress(accountA)
	s := NewProviderSigner(p, from)
	hash, err := s.SendTransaction(context.Background(), ethereum.CallMsg{
		To:    &contract,
		Value: big.NewInt(1_000_000_000_000_000_000),
		Data:  []byte{0xde, 0xad},
	})
	require.NoError(t, err)
	assert.Equal(t, want, hash)
	assert.Equal(t, from.Hex(), sent["from"])
	assert.Equal(t, contract.Hex(), sent["to"])
	assert.Equal(t, "0xdead", sent["data"])
	assert.Equal(t, "0xde0b6b3a7640000", sent["value"])
	_, hasGas := sent["gas"]
	assert.False(t, hasGas)
}

func TestProviderSignerPassesProviderErrorsThrough(t *testing.T) {
	t.Parallel()
	p := newFakeProvider()
	p.fail("eth_sendTransaction", &ProviderError{Code: CodeUserRejected, Message: "User denied transaction signature."})

	_, err := NewProviderSigner(p, common.HexToAddress(accountA)).SendTransaction(context.Background(), ethereum.CallMsg{To: &contract})
	code, ok := ErrorCode(err)
	require.True(t, ok)
	assert.Equal(t, CodeUserRejected, code)
}

func TestProviderBackendCallContract(t *testing.T) {
	t.Parallel()
	p := newFakeProvider()
	var call map[string]string
	var block any
	p.on("eth_call", func(params []any) (any, error) {
		call = params[0].(map[string]string)
		block = params[1]
		return "0x00ff", nil
	})

	b := NewProviderBackend(p)
	out, err := b.CallContract(context.Background(), ethereum.CallMsg{
		From: common.HexToAddress(accountB),
		To:   &contract,
		Data: []byte{0x01},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, out)
	assert.Equal(t, "latest", block)
	assert.Equal(t, common.HexToAddress(accountB).Hex(), call["from"])

	_, err = b.CallContract(context.Background(), ethereum.CallMsg{To: &contract}, big.NewInt(16))
	require.NoError(t, err)
	assert.Equal(t, "0x10", block)
}

func TestProviderBackendReceipt(t *testing.T) {
	t.Parallel()
	p := newFakeProvider()
	p.respond("eth_getTransactionReceipt", nil)
	b := NewProviderBackend(p)

	_, err := b.TransactionReceipt(context.Background(), common.HexToHash("0x02"))
	assert.True(t, IsPending(err))

	rec := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      common.HexToHash("0x02"),
		BlockNumber: big.NewInt(3),
		Logs:        []*types.Log{},
	}
	encoded, err := json.Marshal(rec)
	require.NoError(t, err)
	p.respond("eth_getTransactionReceipt", json.RawMessage(encoded))

	got, err := b.TransactionReceipt(context.Background(), rec.TxHash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, got.Status)
	assert.Equal(t, rec.TxHash, got.TxHash)
	assert.Equal(t, int64(3), got.BlockNumber.Int64())
}

func TestProviderErrorImplementsDataError(t *testing.T) {
	t.Parallel()
	var err error = &ProviderError{Code: 3, Message: "execution reverted", Data: json.RawMessage(`"0x08c379a0"`)}
	var de rpc.DataError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "0x08c379a0", de.ErrorData())
	assert.Equal(t, "provider error 3: execution reverted", err.Error())
}
