package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/coinledger/internal/blob/s3"
	"github.com/alanyoungcy/coinledger/internal/cache/redis"
	"github.com/alanyoungcy/coinledger/internal/config"
	"github.com/alanyoungcy/coinledger/internal/domain"
	"github.com/alanyoungcy/coinledger/internal/platform/pricefeed"
	"github.com/alanyoungcy/coinledger/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application modes need.
// Wire constructs it; the returned cleanup function tears it down.
type Dependencies struct {
	// Stores
	AccountStore     domain.AccountStore
	BalanceStore     domain.BalanceStore
	StakeStore       domain.StakeStore
	OrderStore       domain.OrderStore
	TransactionStore domain.TransactionStore
	FriendStore      domain.FriendStore

	// Caches and coordination
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	EventBus    domain.EventBus

	// Price oracle
	PriceSource domain.PriceSource

	// Transaction-log archival (nil unless enabled in config)
	Archiver      domain.Archiver
	ArchiveReader domain.BlobReader
}

// Wire constructs all concrete dependency implementations from the
// configuration and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// PostgreSQL.
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.AccountStore = postgres.NewAccountStore(pool)
	deps.BalanceStore = postgres.NewBalanceStore(pool)
	deps.StakeStore = postgres.NewStakeStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.TransactionStore = postgres.NewTransactionStore(pool)
	deps.FriendStore = postgres.NewFriendStore(pool)

	// Redis.
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Oracle.CacheTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient)

	// Price oracle.
	deps.PriceSource = pricefeed.New(cfg.Oracle.BaseURL, cfg.Oracle.Timeout.Duration)

	// S3 transaction-log archival.
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewTransactionArchiver(
			s3blob.NewWriter(s3Client),
			postgres.NewTransactionStore(pool),
			cfg.Archive.BatchSize,
			logger,
		)
		deps.ArchiveReader = s3blob.NewReader(s3Client)
	}

	return deps, cleanup, nil
}
