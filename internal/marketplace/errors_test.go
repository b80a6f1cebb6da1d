package marketplace_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/ledgerstub"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/wallet"
)

type errBackend struct{ err error }

func (b errBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, b.err
}

func (b errBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, b.err
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   error
		reason string
	}{
		{
			name: "user rejected",
			err:  &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User denied transaction signature."},
			want: domain.ErrUserRejected,
		},
		{
			name:   "revert data",
			err:    &ledgerstub.RevertError{Reason: "Item is not for sale"},
			want:   domain.ErrContractReverted,
			reason: "Item is not for sale",
		},
		{
			name:   "bare revert",
			err:    &ledgerstub.RevertError{},
			want:   domain.ErrContractReverted,
			reason: "transaction reverted",
		},
		{
			name:   "revert message only",
			err:    errors.New("execution reverted: Auction has ended"),
			want:   domain.ErrContractReverted,
			reason: "Auction has ended",
		},
		{
			name:   "development node message",
			err:    errors.New("VM Exception while processing transaction: reverted with reason string 'Seller cannot bid on own auction'"),
			want:   domain.ErrContractReverted,
			reason: "Seller cannot bid on own auction",
		},
		{
			name: "insufficient funds",
			err:  errors.New("insufficient funds for gas * price + value"),
			want: domain.ErrInsufficientFunds,
		},
		{
			name: "transport",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			want: domain.ErrNetworkError,
		},
		{
			name: "already classified",
			err:  fmt.Errorf("walletbridge: eth_call: %w", domain.ErrProviderUnavailable),
			want: domain.ErrProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := marketplace.New(ledgerstub.DefaultAddress, errBackend{err: tt.err})
			_, err := client.GetListingPrice(context.Background())
			require.ErrorIs(t, err, tt.want)
			if tt.reason != "" {
				var revert *domain.RevertError
				require.ErrorAs(t, err, &revert)
				assert.Equal(t, tt.reason, revert.Reason)
			}
		})
	}
}

func TestUnknownErrorsPassThrough(t *testing.T) {
	cause := errors.New("something odd")
	client := marketplace.New(ledgerstub.DefaultAddress, errBackend{err: cause})
	_, err := client.GetMintingPrice(context.Background())
	require.ErrorIs(t, err, cause)
	assert.Equal(t, "unknown", domain.ErrorKind(err))
}

func TestRevertReason(t *testing.T) {
	reason, ok := marketplace.RevertReason(errors.New("dial tcp: timeout"))
	assert.False(t, ok)
	assert.Empty(t, reason)

	reason, ok = marketplace.RevertReason(&ledgerstub.RevertError{Reason: "Auction is not active"})
	assert.True(t, ok)
	assert.Equal(t, "Auction is not active", reason)
}

func TestParseFormatEther(t *testing.T) {
	tests := []struct {
		in      string
		wei     string
		out     string
		wantErr bool
	}{
		{in: "1", wei: "1000000000000000000", out: "1"},
		{in: "0.001", wei: "1000000000000000", out: "0.001"},
		{in: " 2.5 ", wei: "2500000000000000000", out: "2.5"},
		{in: "0.000000000000000001", wei: "1", out: "0.000000000000000001"},
		{in: "0", wei: "0", out: "0"},
		{in: "0.0000000000000000001", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			wei, err := marketplace.ParseEther(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrMalformedValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wei, wei.String())
			assert.Equal(t, tt.out, marketplace.FormatEther(wei))
		})
	}
	assert.Equal(t, "0", marketplace.FormatEther(nil))
}

func TestResolveAddress(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}
	good := write("good.json", `{"NFTMarketplace": "0x5fbdb2315678afecb367f032d93f642f64180aa3"}`)
	empty := write("empty.json", `{"NFTMarketplace": ""}`)
	broken := write("broken.json", `{`)
	bad := write("bad.json", `{"NFTMarketplace": "0x1234"}`)

	tests := []struct {
		name     string
		override string
		file     string
		want     common.Address
		wantErr  error
	}{
		{name: "override wins", override: "0x90F79bf6EB2c4f870365E785982E1f101E93b906", file: good, want: carol},
		{name: "deployment record", file: good, want: ledgerstub.DefaultAddress},
		{name: "no source", wantErr: domain.ErrContractAddressMissing},
		{name: "missing file", file: filepath.Join(dir, "nope.json"), wantErr: domain.ErrContractAddressMissing},
		{name: "empty entry", file: empty, wantErr: domain.ErrContractAddressMissing},
		{name: "broken record", file: broken, wantErr: domain.ErrMalformedValue},
		{name: "bad address", file: bad, wantErr: domain.ErrMalformedValue},
		{name: "bad override", override: "nonsense", file: good, wantErr: domain.ErrMalformedValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := marketplace.ResolveAddress(tt.override, tt.file, "")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteDeploymentRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contract-address.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Other": "0x0000000000000000000000000000000000000001"}`), 0o600))

	require.NoError(t, marketplace.WriteDeploymentRecord(path, "", ledgerstub.DefaultAddress))

	got, err := marketplace.ResolveAddress("", path, marketplace.DefaultContractName)
	require.NoError(t, err)
	assert.Equal(t, ledgerstub.DefaultAddress, got)

	other, err := marketplace.ResolveAddress("", path, "Other")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x01"), other)
}
