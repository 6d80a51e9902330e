// Package app wires configuration into the concrete components shared by the
// ingest CLI and the admin API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/priceguess-ingest/internal/browser"
	"github.com/maltedev/priceguess-ingest/internal/config"
	"github.com/maltedev/priceguess-ingest/internal/database"
	"github.com/maltedev/priceguess-ingest/internal/fetcher"
	"github.com/maltedev/priceguess-ingest/internal/parser"
	"github.com/maltedev/priceguess-ingest/internal/pipeline"
	"github.com/maltedev/priceguess-ingest/internal/ratelimit"
	"github.com/maltedev/priceguess-ingest/internal/scheduler"
	"github.com/maltedev/priceguess-ingest/internal/scraper"
	"github.com/maltedev/priceguess-ingest/internal/storage"
	"github.com/maltedev/priceguess-ingest/internal/titles"
)

const robotsAgent = "*"

type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Registry  *parser.Registry
	Fetcher   fetcher.Fetcher
	Scraper   *scraper.Scraper
	Scheduler *scheduler.Scheduler

	closers []func() error
}

// New builds the fetch and scrape stack. Optional components are opened
// separately so commands only pay for what they use.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	registry, err := parser.LoadRegistry()
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Registry: registry}

	httpFetcher := fetcher.New(fetcher.Options{
		Timeout:    cfg.Fetch.Timeout,
		UserAgents: cfg.Fetch.UserAgents,
		Logger:     logger,
	})
	a.Fetcher = httpFetcher

	if cfg.Fetch.Engine == "browser" {
		b, err := browser.New(browser.OptionsFromConfig(cfg.Browser, cfg.Fetch.UserAgents[0]), httpFetcher, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		a.Fetcher = b
		a.closers = append(a.closers, b.Close)
	}

	a.Scraper = scraper.New(a.Fetcher, registry, scraper.Options{
		RetryDelay: cfg.Scraper.RetryDelay,
		Logger:     logger,
	})

	a.Scheduler = scheduler.New(scheduler.Options{
		Concurrency: cfg.Scraper.Concurrency,
		Delay:       ratelimit.NewJitterLimiter(cfg.Scraper.DelayMin, cfg.Scraper.DelayMax),
		Cooldown:    ratelimit.NewJitterLimiter(cfg.Scraper.CooldownMin, cfg.Scraper.CooldownMax),
		Logger:      logger,
	})

	return a, nil
}

// Discoverer builds a search discoverer for the named site.
func (a *App) Discoverer(site string) (*scraper.Discoverer, error) {
	tmpl, ok := a.Registry.Get(site)
	if !ok {
		return nil, fmt.Errorf("unknown site %q", site)
	}

	opts := scraper.DiscoveryOptions{Limit: a.Config.Discovery.Limit, Logger: a.Logger}
	if a.Config.Discovery.RespectRobots {
		opts.Robots = scraper.NewRobotsGate(a.Fetcher, robotsAgent, a.Logger)
	}
	return scraper.NewDiscoverer(a.Fetcher, tmpl, opts)
}

func (a *App) ContentStore(ctx context.Context) (*storage.ContentStore, error) {
	objects, err := storage.NewR2Store(ctx, a.Config.Storage, a.Logger)
	if err != nil {
		return nil, err
	}
	return storage.NewContentStore(a.Fetcher, objects, a.Config.Storage.KeyPrefix, a.Logger), nil
}

func (a *App) Titles() titles.Rewriter {
	return titles.New(a.Config.Titles, a.Logger)
}

// Database opens the pool and, when configured, applies migrations first.
func (a *App) Database(ctx context.Context) (*database.DB, error) {
	if a.Config.Database.AutoMigrate {
		if err := database.Migrate(a.Config.Database.DSN()); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	db, err := database.New(ctx, a.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		db.Close()
		return nil
	})
	return db, nil
}

// Redis connects and pings the relay target.
func (a *App) Redis(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// Sinks returns the JSON file sink followed by the Postgres sink when the
// database is enabled.
func (a *App) Sinks(db *database.DB) []pipeline.Sink {
	sinks := []pipeline.Sink{storage.NewDatasetFile(a.Config.Ingest.OutputPath)}
	if db != nil {
		outbox := database.NewOutboxRepository(db, a.Config.Redis.Stream)
		sinks = append(sinks, database.NewItemRepository(db, outbox, a.Logger))
	}
	return sinks
}

func (a *App) Relay(db *database.DB, client database.RedisClient) *database.Relay {
	return database.NewRelay(database.NewOutboxRepository(db, a.Config.Redis.Stream), client, a.Logger, database.RelayConfig{})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
