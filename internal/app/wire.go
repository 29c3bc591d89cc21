package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/settlecore/internal/blob/s3"
	"github.com/alanyoungcy/settlecore/internal/cache/redis"
	"github.com/alanyoungcy/settlecore/internal/config"
	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/ledger"
	"github.com/alanyoungcy/settlecore/internal/notify"
	"github.com/alanyoungcy/settlecore/internal/queue"
	"github.com/alanyoungcy/settlecore/internal/service"
	"github.com/alanyoungcy/settlecore/internal/store/postgres"
)

// Dependencies bundles everything the daemon and embedding callers need. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	DB domain.TxRunner

	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	Ledger  *ledger.Ledger
	Auditor *ledger.Auditor

	BetQueue *queue.Queue

	Trades     *service.TradeService
	Markets    *service.MarketService
	Settlement *service.SettlementService

	Notifier *notify.Notifier
	Listener *notify.Listener
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
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
	deps.DB = pgClient

	// --- Redis (optional: single-process deployments can run without the
	// distributed lock and signal bus) ---
	if cfg.Redis.Enabled {
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

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.DB, deps.BlobWriter, logger)
	}

	// --- Ledger and settlement core ---
	deps.Ledger = ledger.New(logger)
	deps.Auditor = ledger.NewAuditor(deps.DB, cfg.Ledger.InitialBalance, logger)

	// The queue is owned here so every service in the process shares one
	// admission schedule.
	deps.BetQueue = queue.New("bets", cfg.Queue.BetTimeout.Duration, logger)

	deps.Trades = service.NewTradeService(deps.DB, deps.Ledger, deps.BetQueue, deps.SignalBus, logger)
	deps.Markets = service.NewMarketService(deps.DB, deps.Ledger, logger)
	deps.Settlement = service.NewSettlementService(deps.DB, deps.Ledger, deps.BetQueue, deps.LockManager, deps.SignalBus, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	if deps.SignalBus != nil && len(senders) > 0 {
		deps.Listener = notify.NewListener(deps.SignalBus, deps.Notifier,
			[]string{domain.ChannelBets, domain.ChannelResolutions}, logger)
	}

	return deps, cleanup, nil
}
