package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/crypto"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const sandboxTOML = `
mode = "server"

[chain]
rpc_url = "memory://"
chain_id = 31337

[wallet]
provider = "local"
private_key = "` + devKey + `"
key_password = "correct horse"

[marketplace]
confirm_poll_interval = "1ms"
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sandboxTOML), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd, e := newRoot()
	t.Cleanup(e.close)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", writeConfig(t)}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNetworks(t *testing.T) {
	out, err := run(t, "networks")
	require.NoError(t, err)
	var nets []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &nets))
	assert.Len(t, nets, 4)
}

func TestFees(t *testing.T) {
	out, err := run(t, "fees")
	require.NoError(t, err)
	var fees map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &fees))
	assert.Equal(t, "0.0025", fees["listingPriceEther"])
	assert.Equal(t, "0.001", fees["mintingPriceEther"])
}

func TestSessionRestoresLocalWallet(t *testing.T) {
	out, err := run(t, "session")
	require.NoError(t, err)
	var s map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", s["account"])
	assert.Equal(t, "connected", s["state"])
	assert.Equal(t, true, s["supported"])
}

func TestMint(t *testing.T) {
	out, err := run(t, "mint", "ipfs://token-1")
	require.NoError(t, err)
	var r map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "confirmed", r["status"])
	assert.Equal(t, "1", r["tokenId"])
	assert.Equal(t, "ipfs://token-1", r["tokenURI"])
}

func TestMintArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"neither uri nor metadata", []string{"mint"}},
		{"both uri and metadata", []string{"mint", "ipfs://x", "--metadata", "m.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestMintMetadataWithoutContentStore(t *testing.T) {
	_, err := run(t, "mint", "--metadata", "token.json")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestWriteArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero token id", []string{"list", "0", "1"}},
		{"zero price", []string{"list", "1", "0"}},
		{"bad price", []string{"auction", "bid", "1", "lots"}},
		{"zero hours", []string{"auction", "create", "1", "0.5", "--hours", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.ErrorIs(t, err, domain.ErrMalformedValue)
		})
	}
}

func TestAuctionsEmpty(t *testing.T) {
	out, err := run(t, "auction", "ls")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestEncryptKey(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "wallet.key")
	_, err := run(t, "encrypt-key", "--out", dst)
	require.NoError(t, err)

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	key, err := crypto.DecryptKey(raw, "correct horse")
	require.NoError(t, err)
	signer, err := crypto.NewSigner(key, 31337)
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", signer.Address().Hex())
}

func TestArchiveRequiresS3(t *testing.T) {
	for _, sub := range []string{"snapshot", "show", "prune"} {
		_, err := run(t, "archive", sub)
		assert.EqualError(t, err, "archive: s3 is not enabled", sub)
	}
}
