// Package config defines the top-level configuration for the nebula NFT hub
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by NEBULA_* environment variables.
type Config struct {
	Chain       ChainConfig       `toml:"chain"`
	Contract    ContractConfig    `toml:"contract"`
	Wallet      WalletConfig      `toml:"wallet"`
	Marketplace MarketplaceConfig `toml:"marketplace"`
	Pinata      PinataConfig      `toml:"pinata"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Monitor     MonitorConfig     `toml:"monitor"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
	LogFile     string            `toml:"log_file"`
}

// ChainConfig points the client at a ledger node. An rpc_url of "memory://"
// selects the in-process sandbox ledger.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID uint64 `toml:"chain_id"`
}

// ContractConfig locates the deployed marketplace contract. Address wins over
// the deployment record when both are set.
type ContractConfig struct {
	Address        string `toml:"address"`
	DeploymentFile string `toml:"deployment_file"`
	Name           string `toml:"name"`
}

// WalletConfig selects the wallet provider. Provider "bridge" relays requests
// to a browser wallet over WebSocket; "local" signs with a key held here.
type WalletConfig struct {
	Provider         string `toml:"provider"`
	BridgeURL        string `toml:"bridge_url"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	AutoReconnect    bool   `toml:"auto_reconnect"`
}

// MarketplaceConfig holds transaction confirmation and bidding parameters.
type MarketplaceConfig struct {
	// MinBidIncrement is an ether amount, e.g. "0.001".
	MinBidIncrement     string   `toml:"min_bid_increment"`
	ConfirmPollInterval duration `toml:"confirm_poll_interval"`
	ConfirmTimeout      duration `toml:"confirm_timeout"`
	ReadCacheTTL        duration `toml:"read_cache_ttl"`
	LockTTL             duration `toml:"lock_ttl"`
	DistributedLocks    bool     `toml:"distributed_locks"`
}

// PinataConfig holds content pinning credentials. JWT takes precedence over
// the key pair.
type PinataConfig struct {
	JWT          string `toml:"jwt"`
	APIKey       string `toml:"api_key"`
	SecretAPIKey string `toml:"secret_api_key"`
	APIURL       string `toml:"api_url"`
	GatewayURL   string `toml:"gateway_url"`
}

// PostgresConfig holds PostgreSQL connection parameters for the operation
// journal.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// PublicURL is prefixed to object keys when content is served from S3.
	PublicURL string `toml:"public_url"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled        bool     `toml:"enabled"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	APIKey         string   `toml:"api_key"`
	WriteRateRPS   int      `toml:"write_rate_rps"`
	WriteRateBurst int      `toml:"write_rate_burst"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MonitorConfig controls the auction watcher.
type MonitorConfig struct {
	Interval      duration `toml:"interval"`
	AutoEnd       bool     `toml:"auto_end"`
	SnapshotEvery int      `toml:"snapshot_every"`
	// SnapshotRetain keeps only the newest N snapshots; 0 keeps all.
	SnapshotRetain int `toml:"snapshot_retain"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:  "http://127.0.0.1:8545",
			ChainID: 31337,
		},
		Contract: ContractConfig{
			DeploymentFile: "contract-address.json",
			Name:           "NFTMarketplace",
		},
		Wallet: WalletConfig{
			Provider:      "none",
			BridgeURL:     "ws://127.0.0.1:8546/bridge",
			AutoReconnect: true,
		},
		Marketplace: MarketplaceConfig{
			MinBidIncrement:     "0.001",
			ConfirmPollInterval: duration{time.Second},
			ConfirmTimeout:      duration{3 * time.Minute},
			ReadCacheTTL:        duration{15 * time.Second},
			LockTTL:             duration{5 * time.Minute},
		},
		Pinata: PinataConfig{
			APIURL:     "https://api.pinata.cloud",
			GatewayURL: "https://gateway.pinata.cloud/ipfs/",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "nebula-nft",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:        true,
			Port:           8080,
			WriteRateRPS:   5,
			WriteRateBurst: 10,
		},
		Monitor: MonitorConfig{
			Interval:      duration{30 * time.Second},
			SnapshotEvery: 10,
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"full":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validProviders = map[string]bool{
	"local":  true,
	"bridge": true,
	"none":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID == 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	// Contract
	if c.Contract.Address == "" && c.Contract.DeploymentFile == "" {
		errs = append(errs, "contract: either address or deployment_file must be set")
	}

	// Wallet
	if !validProviders[strings.ToLower(c.Wallet.Provider)] {
		errs = append(errs, fmt.Sprintf("wallet: unknown provider %q (valid: local, bridge, none)", c.Wallet.Provider))
	}
	switch strings.ToLower(c.Wallet.Provider) {
	case "local":
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for the local provider")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	case "bridge":
		if c.Wallet.BridgeURL == "" {
			errs = append(errs, "wallet: bridge_url must not be empty for the bridge provider")
		}
	}

	// Marketplace
	if inc, err := decimal.NewFromString(c.Marketplace.MinBidIncrement); err != nil {
		errs = append(errs, fmt.Sprintf("marketplace: min_bid_increment %q is not a decimal ether amount", c.Marketplace.MinBidIncrement))
	} else if inc.IsNegative() {
		errs = append(errs, "marketplace: min_bid_increment must be >= 0")
	}
	if c.Marketplace.ConfirmPollInterval.Duration <= 0 {
		errs = append(errs, "marketplace: confirm_poll_interval must be > 0")
	}
	if c.Marketplace.ConfirmTimeout.Duration < c.Marketplace.ConfirmPollInterval.Duration {
		errs = append(errs, "marketplace: confirm_timeout must not be shorter than confirm_poll_interval")
	}
	if c.Marketplace.DistributedLocks && !c.Redis.Enabled {
		errs = append(errs, "marketplace: distributed_locks requires redis.enabled")
	}

	// Pinata
	if (c.Pinata.APIKey == "") != (c.Pinata.SecretAPIKey == "") && c.Pinata.JWT == "" {
		errs = append(errs, "pinata: api_key and secret_api_key must be set together")
	}

	// Postgres
	if c.Postgres.Enabled {
		if c.Postgres.DSN == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.WriteRateRPS < 0 || c.Server.WriteRateBurst < 0 {
			errs = append(errs, "server: write_rate_rps and write_rate_burst must be >= 0")
		}
	}

	// Monitor
	mode := strings.ToLower(c.Mode)
	if mode == "monitor" || mode == "full" {
		if c.Monitor.Interval.Duration <= 0 {
			errs = append(errs, "monitor: interval must be > 0")
		}
		if c.Monitor.SnapshotRetain < 0 {
			errs = append(errs, "monitor: snapshot_retain must be >= 0")
		}
		if c.Monitor.AutoEnd && strings.ToLower(c.Wallet.Provider) == "none" {
			errs = append(errs, "monitor: auto_end requires a wallet provider")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// BidIncrementWei converts MinBidIncrement to wei. Invalid values yield zero;
// Validate reports them.
func (c *Config) BidIncrementWei() decimal.Decimal {
	inc, err := decimal.NewFromString(c.Marketplace.MinBidIncrement)
	if err != nil || inc.IsNegative() {
		return decimal.Zero
	}
	return inc.Shift(18).Truncate(0)
}

// ConfirmPollInterval returns the receipt polling interval.
func (c *Config) ConfirmPollInterval() time.Duration {
	return c.Marketplace.ConfirmPollInterval.Duration
}

// ConfirmTimeout returns the maximum time spent waiting for a receipt.
func (c *Config) ConfirmTimeout() time.Duration { return c.Marketplace.ConfirmTimeout.Duration }
