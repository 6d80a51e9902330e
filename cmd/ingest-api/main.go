// Command ingest-api serves the admin endpoints for one-off scrapes,
// discovery and image uploads, and relays outbox events to Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/maltedev/priceguess-ingest/internal/api"
	"github.com/maltedev/priceguess-ingest/internal/app"
	"github.com/maltedev/priceguess-ingest/internal/config"
	"github.com/maltedev/priceguess-ingest/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	deps := api.Deps{
		Scraper:    a.Scraper,
		MaxRetries: cfg.Scraper.MaxRetries,
		Logger:     log,
	}

	if d, err := a.Discoverer("amazon"); err != nil {
		log.Warn("discovery disabled", "error", err)
	} else {
		deps.Discoverer = d
	}

	if cfg.Storage.Validate() == nil {
		store, err := a.ContentStore(ctx)
		if err != nil {
			log.Error("failed to initialize object storage", "error", err)
			os.Exit(1)
		}
		deps.Assets = store
	} else {
		log.Info("object storage not configured, asset endpoint disabled")
	}

	// Outbox relay runs only with a database
	if cfg.Database.Enabled {
		db, err := a.Database(ctx)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}

		redisClient, err := a.Redis(ctx)
		if err != nil {
			log.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}

		relay := a.Relay(db, redisClient)
		deps.Outbox = relay
		go func() {
			if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("relay stopped with error", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(api.NewHandlers(deps), cfg.Server.WriteTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
