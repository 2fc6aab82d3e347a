package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/tradeloop/internal/blob/s3"
	"github.com/alanyoungcy/tradeloop/internal/cache/redis"
	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/notify"
	"github.com/alanyoungcy/tradeloop/internal/server/handler"
	"github.com/alanyoungcy/tradeloop/internal/store/postgres"
)

// Dependencies bundles the infrastructure a run may use. Every field except
// Notifier is nil when its backend is disabled.
type Dependencies struct {
	LedgerStore domain.LedgerStore
	AuditStore  domain.AuditStore

	PriceCache  domain.PriceCache
	LockManager *redis.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	BlobWriter domain.BlobWriter
	Archiver   domain.LedgerArchiver

	Notifier *notify.Notifier

	// Checks are exposed on the health endpoint.
	Checks map[string]handler.Check
}

// Wire connects the enabled backends. The returned cleanup closes them in
// reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(stage string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", stage, err)
	}

	deps := &Dependencies{Checks: map[string]handler.Check{}}

	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
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
			return fail("postgres", err)
		}
		closers = append(closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.LedgerStore = postgres.NewLedgerStore(pg.Pool())
		deps.AuditStore = postgres.NewAuditStore(pg.Pool())
		deps.Checks["postgres"] = func(ctx context.Context) error { return pg.Pool().Ping(ctx) }
		logger.Info("postgres connected")
	}

	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		// Quotes outlive MaxPriceAge so staleness is reported by the reader
		// rather than as a missing key.
		deps.PriceCache = redis.NewPriceCache(rc, 2*cfg.Live.MaxPriceAge.Duration)
		deps.LockManager = redis.NewLockManager(rc)
		deps.SignalBus = redis.NewSignalBus(rc, 0)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.Checks["redis"] = rc.Ping
		logger.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.BlobWriter = s3blob.NewWriter(sc)
		deps.Archiver = s3blob.NewLedgerArchiver(deps.BlobWriter, deps.AuditStore)
		deps.Checks["s3"] = sc.Health
		logger.Info("s3 configured", slog.String("bucket", cfg.S3.Bucket))
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(cfg.Algo.Name, senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
