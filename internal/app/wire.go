package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/GUNREDDY14/nebula-nft-hub/internal/blob/s3"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/cache/memory"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/cache/redis"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/config"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/crypto"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/executor"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/ledgerstub"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/metrics"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/notify"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/platform/localwallet"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/platform/pinata"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/platform/walletbridge"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/store/postgres"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/wallet"
)

// SandboxRPCURL selects the in-process ledger instead of a node.
const SandboxRPCURL = "memory://"

// sandboxFunding is credited to the local wallet when the sandbox ledger is
// in use.
var sandboxFunding = new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18))

// chainBackend is what both *ethclient.Client and *ledgerstub.Ledger offer:
// reads for the marketplace client and the signing surface for the local
// wallet.
type chainBackend interface {
	localwallet.Chain
	marketplace.Backend
}

// Dependencies bundles every component the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Ledger
	Chain    chainBackend
	Sandbox  *ledgerstub.Ledger // set only when rpc_url is memory://
	Contract common.Address
	Market   *marketplace.Client
	Metadata *marketplace.MetadataResolver

	// Wallet session and writes
	Wallet   *wallet.Manager
	Executor *executor.Executor

	// Stores
	OperationStore domain.OperationStore
	AuditStore     domain.AuditStore

	// Caches
	ReadCache   domain.ReadCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	EventBus    domain.EventBus

	// Content and blob storage
	ContentStore domain.ContentStore
	BlobReader   *s3blob.Reader
	Archiver     *s3blob.Archiver

	// Notifications and metrics
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics
}

// BidIncrement returns the configured minimum bid increment in wei.
func BidIncrement(cfg *config.Config) *big.Int {
	return cfg.BidIncrementWei().BigInt()
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- Ledger ---
	if strings.EqualFold(cfg.Chain.RPCURL, SandboxRPCURL) {
		ledger := ledgerstub.New(ledgerstub.WithChainID(cfg.Chain.ChainID))
		deps.Sandbox = ledger
		deps.Chain = ledger
		deps.Contract = ledger.Address()
		logger.InfoContext(ctx, "using in-process sandbox ledger",
			slog.String("contract", deps.Contract.Hex()),
			slog.Uint64("chain_id", cfg.Chain.ChainID),
		)
	} else {
		ec, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fail(fmt.Errorf("wire: dial %s: %w", cfg.Chain.RPCURL, err))
		}
		closers = append(closers, ec.Close)
		deps.Chain = ec

		addr, err := marketplace.ResolveAddress(cfg.Contract.Address, cfg.Contract.DeploymentFile, cfg.Contract.Name)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		deps.Contract = addr
	}

	deps.Market = marketplace.New(deps.Contract, deps.Chain,
		marketplace.WithLogger(logger),
		marketplace.WithConfirmation(cfg.ConfirmPollInterval(), cfg.ConfirmTimeout()),
	)

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.OperationStore = postgres.NewOperationStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis, or in-process fallbacks ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  redis.Namespace(cfg.Chain.ChainID, deps.Contract.Hex()),
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.ReadCache = redis.NewReadCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
	} else {
		deps.ReadCache = memory.NewCache()
		deps.RateLimiter = memory.NewLimiter()
		deps.EventBus = memory.NewBus()
	}

	// --- S3 blob storage ---
	var s3Content *s3blob.ContentStore
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			PublicURL:      cfg.S3.PublicURL,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		s3Content = s3blob.NewContentStore(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.AuditStore,
			cfg.Chain.ChainID,
			deps.Contract.Hex(),
			BidIncrement(cfg),
		)
		deps.Archiver.SetReader(deps.BlobReader)
		deps.Archiver.SetRetention(cfg.Monitor.SnapshotRetain)
	}

	// --- Content pinning: Pinata first, then S3 ---
	pinataCfg := pinata.Config{
		JWT:          cfg.Pinata.JWT,
		APIKey:       cfg.Pinata.APIKey,
		SecretAPIKey: cfg.Pinata.SecretAPIKey,
		APIURL:       cfg.Pinata.APIURL,
		GatewayURL:   cfg.Pinata.GatewayURL,
	}
	pinataClient := pinata.New(pinataCfg)
	switch {
	case pinataClient.Configured():
		deps.ContentStore = pinataClient
	case s3Content != nil:
		deps.ContentStore = s3Content
	}
	deps.Metadata = marketplace.NewMetadataResolver(deps.Market, pinataClient.GatewayURL,
		deps.ReadCache, cfg.Marketplace.ReadCacheTTL.Duration)

	// --- Notifications and metrics ---
	deps.Notifier = notify.FromConfig(notify.Config{
		TelegramToken:     cfg.Notify.TelegramToken,
		TelegramChatID:    cfg.Notify.TelegramChatID,
		DiscordWebhookURL: cfg.Notify.DiscordWebhookURL,
		Events:            cfg.Notify.Events,
	}, logger)
	deps.Metrics = metrics.New()

	// --- Wallet ---
	provider, closeProvider, err := newProvider(ctx, cfg, deps, logger)
	if err != nil {
		return fail(err)
	}
	if closeProvider != nil {
		closers = append(closers, closeProvider)
	}
	deps.Wallet = wallet.NewManager(provider,
		wallet.WithLogger(logger),
		wallet.WithRestore(cfg.Wallet.AutoReconnect),
	)
	closers = append(closers, deps.Wallet.Close)

	// --- Executor ---
	exec := executor.New(deps.Market, deps.Wallet, logger)
	if deps.OperationStore != nil {
		exec.SetJournal(deps.OperationStore)
	}
	exec.SetEventBus(deps.EventBus)
	exec.SetNotifier(deps.Notifier)
	exec.SetMetrics(deps.Metrics)
	if cfg.Marketplace.DistributedLocks && deps.LockManager != nil {
		exec.Serializer().SetLockManager(deps.LockManager, cfg.Marketplace.LockTTL.Duration)
	}
	deps.Executor = exec

	return deps, cleanup, nil
}

// newProvider builds the configured wallet provider. A nil provider with a
// nil error means no wallet is available; the session then reports
// ProviderUnavailable on connect.
func newProvider(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (wallet.Provider, func(), error) {
	switch strings.ToLower(cfg.Wallet.Provider) {
	case "local":
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		signer, err := crypto.NewSigner(key, cfg.Chain.ChainID)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: wallet signer: %w", err)
		}
		if deps.Sandbox != nil {
			deps.Sandbox.Fund(signer.Address(), sandboxFunding)
		}
		logger.InfoContext(ctx, "local wallet loaded", slog.String("address", signer.Address().Hex()))
		return localwallet.New(deps.Chain, signer, logger), nil, nil

	case "bridge":
		bridge := walletbridge.NewClient(cfg.Wallet.BridgeURL, logger)
		if err := bridge.Connect(ctx); err != nil {
			// The relay may come up later; without it the host behaves as if
			// no wallet were installed.
			logger.WarnContext(ctx, "wallet bridge unreachable; continuing without a wallet",
				slog.String("url", cfg.Wallet.BridgeURL),
				slog.String("error", err.Error()),
			)
			return nil, nil, nil
		}
		return bridge, func() { _ = bridge.Close() }, nil

	default:
		return nil, nil, nil
	}
}
