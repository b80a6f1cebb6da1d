package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "none", cfg.Wallet.Provider)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Chain.ChainID = 0
	cfg.Wallet.Provider = "local"
	cfg.Marketplace.MinBidIncrement = "abc"
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "chain: chain_id must be positive")
	assert.Contains(t, msg, "wallet: either private_key or encrypted_key_path")
	assert.Contains(t, msg, "marketplace: min_bid_increment")
	assert.Contains(t, msg, "redis: addr must not be empty")
}

func TestValidateRequiresPinataPair(t *testing.T) {
	cfg := Defaults()
	cfg.Pinata.APIKey = "key"
	require.Error(t, cfg.Validate())

	cfg.Pinata.JWT = "jwt"
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "monitor"

[chain]
rpc_url = "memory://"
chain_id = 11155111

[marketplace]
confirm_poll_interval = "250ms"

[monitor]
interval = "5s"
auto_end = true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("NEBULA_CONTRACT_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv("NEBULA_LOG_LEVEL", "debug")
	t.Setenv("NEBULA_SERVER_CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "memory://", cfg.Chain.RPCURL)
	assert.Equal(t, uint64(11155111), cfg.Chain.ChainID)
	assert.Equal(t, 250*time.Millisecond, cfg.ConfirmPollInterval())
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval.Duration)
	assert.True(t, cfg.Monitor.AutoEnd)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", cfg.Contract.Address)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	// Untouched sections keep their defaults.
	assert.Equal(t, "0.001", cfg.Marketplace.MinBidIncrement)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Chain, cfg.Chain)
}

func TestLoadRejectsBrokenToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = "), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestBidIncrementWei(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "1000000000000000", cfg.BidIncrementWei().String())

	cfg.Marketplace.MinBidIncrement = "0.5"
	assert.Equal(t, "500000000000000000", cfg.BidIncrementWei().String())

	cfg.Marketplace.MinBidIncrement = "junk"
	assert.True(t, cfg.BidIncrementWei().IsZero())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Pinata.JWT = "token"
	cfg.Server.APIKey = "secret"
	cfg.Notify.Events = []string{"auction_ended"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Pinata.JWT)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Pinata.APIKey)

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "auction_ended", cfg.Notify.Events[0])
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
}
