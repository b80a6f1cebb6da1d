package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies NEBULA_* environment variable overrides, and
// returns the final Config. A missing file is not an error; the defaults and
// environment alone are used. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known NEBULA_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "NEBULA_CHAIN_RPC_URL")
	setUint64(&cfg.Chain.ChainID, "NEBULA_CHAIN_ID")

	// ── Contract ──
	// VITE_CONTRACT_ADDRESS is what the web front end reads; honour it so both
	// share one .env file.
	setStr(&cfg.Contract.Address, "VITE_CONTRACT_ADDRESS")
	setStr(&cfg.Contract.Address, "NEBULA_CONTRACT_ADDRESS")
	setStr(&cfg.Contract.DeploymentFile, "NEBULA_CONTRACT_DEPLOYMENT_FILE")

	// ── Wallet ──
	setStr(&cfg.Wallet.Provider, "NEBULA_WALLET_PROVIDER")
	setStr(&cfg.Wallet.BridgeURL, "NEBULA_WALLET_BRIDGE_URL")
	setStr(&cfg.Wallet.PrivateKey, "NEBULA_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "NEBULA_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "NEBULA_WALLET_KEY_PASSWORD")
	setBool(&cfg.Wallet.AutoReconnect, "NEBULA_WALLET_AUTO_RECONNECT")

	// ── Marketplace ──
	setStr(&cfg.Marketplace.MinBidIncrement, "NEBULA_MARKETPLACE_MIN_BID_INCREMENT")
	setDuration(&cfg.Marketplace.ConfirmPollInterval, "NEBULA_MARKETPLACE_CONFIRM_POLL_INTERVAL")
	setDuration(&cfg.Marketplace.ConfirmTimeout, "NEBULA_MARKETPLACE_CONFIRM_TIMEOUT")
	setDuration(&cfg.Marketplace.ReadCacheTTL, "NEBULA_MARKETPLACE_READ_CACHE_TTL")
	setBool(&cfg.Marketplace.DistributedLocks, "NEBULA_MARKETPLACE_DISTRIBUTED_LOCKS")

	// ── Pinata ──
	setStr(&cfg.Pinata.JWT, "VITE_PINATA_JWT")
	setStr(&cfg.Pinata.APIKey, "VITE_PINATA_API_KEY")
	setStr(&cfg.Pinata.SecretAPIKey, "VITE_PINATA_SECRET_API_KEY")
	setStr(&cfg.Pinata.JWT, "NEBULA_PINATA_JWT")
	setStr(&cfg.Pinata.APIKey, "NEBULA_PINATA_API_KEY")
	setStr(&cfg.Pinata.SecretAPIKey, "NEBULA_PINATA_SECRET_API_KEY")
	setStr(&cfg.Pinata.GatewayURL, "NEBULA_PINATA_GATEWAY_URL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "NEBULA_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "NEBULA_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "NEBULA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "NEBULA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "NEBULA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "NEBULA_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "NEBULA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "NEBULA_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "NEBULA_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "NEBULA_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "NEBULA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NEBULA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NEBULA_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "NEBULA_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "NEBULA_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "NEBULA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NEBULA_S3_REGION")
	setStr(&cfg.S3.Bucket, "NEBULA_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NEBULA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NEBULA_S3_SECRET_KEY")
	setStr(&cfg.S3.PublicURL, "NEBULA_S3_PUBLIC_URL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "NEBULA_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "NEBULA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "NEBULA_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "NEBULA_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NEBULA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NEBULA_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NEBULA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NEBULA_NOTIFY_EVENTS")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "NEBULA_MONITOR_INTERVAL")
	setBool(&cfg.Monitor.AutoEnd, "NEBULA_MONITOR_AUTO_END")
	setInt(&cfg.Monitor.SnapshotRetain, "NEBULA_MONITOR_SNAPSHOT_RETAIN")

	// ── Top-level ──
	setStr(&cfg.Mode, "NEBULA_MODE")
	setStr(&cfg.LogLevel, "NEBULA_LOG_LEVEL")
	setStr(&cfg.LogFile, "NEBULA_LOG_FILE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
