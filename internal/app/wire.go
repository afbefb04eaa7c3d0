package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/settld/settld/internal/blob/s3"
	redcache "github.com/settld/settld/internal/cache/redis"
	"github.com/settld/settld/internal/config"
	"github.com/settld/settld/internal/domain"
	"github.com/settld/settld/internal/engine"
	"github.com/settld/settld/internal/notify"
	"github.com/settld/settld/internal/oracle"
	"github.com/settld/settld/internal/platform/attest"
	"github.com/settld/settld/internal/platform/outlayer"
	"github.com/settld/settld/internal/resolver"
	"github.com/settld/settld/internal/server"
	"github.com/settld/settld/internal/server/handler"
	"github.com/settld/settld/internal/server/ws"
	"github.com/settld/settld/internal/store/memory"
	"github.com/settld/settld/internal/store/postgres"
)

// Dependencies bundles everything the application lifecycle needs to run. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Engine   *engine.Engine
	Oracle   *oracle.Protocol
	Hub      *ws.Hub
	Server   *server.Server
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Stores ---
	var (
		markets  domain.MarketStore
		bets     domain.BetStore
		balances domain.BalanceStore
	)
	switch strings.ToLower(cfg.Storage) {
	case "postgres":
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		markets = postgres.NewMarketStore(pool)
		bets = postgres.NewBetStore(pool)
		balances = postgres.NewBalanceStore(pool)
	default:
		mem := memory.New()
		markets = mem
		bets = mem
		balances = mem.Balances()
	}

	// --- Redis: pending-resolution registry and rate limiter ---
	var (
		pending domain.PendingResolutionStore
		limiter domain.RateLimiter
	)
	if cfg.Redis.Enabled {
		redisClient, err := redcache.New(ctx, redcache.ClientConfig{
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

		pending = redcache.NewPendingStore(redisClient)
		limiter = redcache.NewRateLimiter(redisClient)
	} else {
		// Single-process fallback. Tokens do not survive a restart.
		pending = memory.NewPendingStore()
	}

	// --- S3: resolution transcript archive ---
	var archive domain.BlobWriter
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

		archive = s3blob.NewWriter(s3Client)
	}

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

	// --- Engine and settlement event fanout ---
	deps.Hub = ws.NewHub(logger)
	events := engine.Fanout(deps.Hub, notify.NewMarketEvents(deps.Notifier))

	deps.Engine = engine.New(markets, bets, balances, events, engine.Config{
		VoidBelowConfidence: cfg.Engine.VoidBelowConfidence,
	}, logger)

	// --- Oracle protocol ---
	var compute oracle.ComputeClient
	if cfg.Oracle.ComputeURL != "" {
		compute = outlayer.NewClient(cfg.Oracle.ComputeURL, cfg.Oracle.ComputeAPIKey)
	}
	var attests oracle.AttestationClient
	if cfg.Oracle.AttestURL != "" {
		attests = attest.NewClient(cfg.Oracle.AttestURL)
	}
	decider := resolver.NewDecider(cfg.Engine.MinTokenLen)

	deps.Oracle = oracle.New(
		deps.Engine,
		balances,
		pending,
		compute,
		attests,
		decider,
		archive,
		oracle.Config{
			Code: outlayer.CodeDescriptor{
				Repo:        cfg.Oracle.CodeRepo,
				Commit:      cfg.Oracle.CodeCommit,
				BuildTarget: cfg.Oracle.CodeBuildTarget,
			},
			DataSourceHost:  cfg.Oracle.DataSourceHost,
			CallbackBaseURL: cfg.Oracle.CallbackBaseURL,
			AttestorAddr:    cfg.Oracle.AttestorAddr,
			PendingTTL:      cfg.Oracle.PendingTTL.Duration,
		},
		logger,
	)

	// --- HTTP server ---
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(logger),
		Markets: handler.NewMarketHandler(deps.Engine, logger),
		Bets:    handler.NewBetHandler(deps.Engine, logger),
		Oracle:  handler.NewOracleHandler(deps.Oracle, logger),
	}
	deps.Server = server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
		RateLimit:   cfg.Server.RateLimit,
		RateWindow:  cfg.Server.RateWindow.Duration,
	}, handlers, deps.Hub, limiter, logger)

	return deps, cleanup, nil
}
