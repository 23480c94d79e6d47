// cmd/service/app.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"forge-sync/internal/config"
	"forge-sync/internal/crawler"
	"forge-sync/internal/database"
	"forge-sync/internal/host"
	_ "forge-sync/internal/host/all"
	"forge-sync/internal/importer"
	"forge-sync/internal/model"
	"forge-sync/internal/parser"
	"forge-sync/internal/queue"
	"forge-sync/internal/syncer"
)

var (
	_ syncer.Store    = (*database.Store)(nil)
	_ crawler.Store   = (*database.Store)(nil)
	_ importer.Store  = (*database.Store)(nil)
	_ syncer.Adapters = (*host.Set)(nil)
)

// app wires the components every command shares.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	pool      *pgxpool.Pool
	store     *database.Store
	rdb       *redis.Client
	broker    queue.Broker
	locker    queue.Locker
	engine    *syncer.Engine
	scheduler *crawler.Scheduler
	importer  *importer.Importer
}

func newApp(ctx context.Context) (*app, error) {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully", "queue_backend", cfg.QueueBackend)

	a := &app{cfg: cfg, logger: logger}

	// 3. Initialize database connection
	a.pool, err = pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.store = database.NewStore(a.pool)
	logger.Info("Database connection established")

	// 4. Initialize the task queue
	switch cfg.QueueBackend {
	case config.QueueRedis:
		a.rdb, err = queue.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.broker = queue.NewRedisQueue(a.rdb, consumerName())
		a.locker = queue.NewRedisLocker(a.rdb)
		logger.Info("Redis connection established")
	default:
		a.broker = queue.NewMemoryQueue()
		a.locker = queue.NewMemoryLocker()
	}

	// 5. Initialize application components
	adapters := host.NewSet(func(h model.Host) host.Options {
		return host.Options{Token: cfg.Token(h.Kind), Logger: logger, Timeout: cfg.HTTPTimeout}
	})
	profiles := host.NewClient(host.Options{Host: model.Host{Name: "profile-check"}, Logger: logger, Timeout: cfg.HTTPTimeout}, nil)
	parserClient := parser.NewClient(cfg.ParserURL, host.Options{Logger: logger, Timeout: cfg.HTTPTimeout})

	a.engine = syncer.New(a.store, adapters, a.broker, parserClient, profiles, logger)
	a.scheduler = crawler.New(a.store, adapters, a.broker, a.locker, logger).WithConfig(crawler.Config{
		RecentInterval: cfg.RecentInterval,
		RecentWindow:   cfg.RecentWindow,
		CrawlInterval:  cfg.CrawlInterval,
		LockTTL:        cfg.CrawlLockTTL,
		Timeout:        cfg.CrawlTimeout,
		Ceilings: crawler.Ceilings{
			Sync:    cfg.MaxQueueDepthSync,
			Details: cfg.MaxQueueDepthDetails,
			Parse:   cfg.MaxQueueDepthParse,
		},
	})
	a.importer = importer.New(a.store, a.broker, nil, logger).
		WithBaseURL(cfg.GHArchiveURL).
		WithCeiling(cfg.MaxQueueDepthSync)

	return a, nil
}

// newWorker returns a worker with every job handler installed.
func (a *app) newWorker() *queue.Worker {
	w := queue.NewWorker(a.broker, a.logger, queue.WorkerConfig{
		Concurrency: a.cfg.WorkerConcurrency,
		MaxAttempts: a.cfg.JobMaxAttempts,
	})
	a.engine.Register(w)
	a.scheduler.Register(w)
	return w
}

func (a *app) migrate() error {
	if err := runMigrations(a.cfg.MigrationsPath, a.cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	a.logger.Info("Database migrations applied successfully")
	return nil
}

func (a *app) host(ctx context.Context, name string) (model.Host, error) {
	h, err := a.store.GetHostByName(ctx, name)
	if err != nil {
		return model.Host{}, fmt.Errorf("host %q: %w", name, err)
	}
	return h, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func consumerName() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
