package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maltedev/priceguess-ingest/internal/config"
	"github.com/maltedev/priceguess-ingest/internal/database"
	"github.com/maltedev/priceguess-ingest/internal/pipeline"
)

var runCommand = &cobra.Command{
	Use:   "run [seed-url...]",
	Short: "Run the full ingest pipeline",
	Long: `Discovers product URLs for each search term, scrapes them in batches, filters invalid records and writes the dataset.

Search terms come from --term or INGEST_SEARCH_TERMS. Without either, a random sample of the built-in terms is used. Extra product URLs can be passed as arguments or via INGEST_SEED_URLS.`,
	RunE: runPipeline,
}

var (
	runTerms      []string
	runSample     int
	runOutput     string
	runSite       string
	runAssets     bool
	runDatabase   bool
	runRelayFlush bool
)

func init() {
	runCommand.Flags().StringSliceVarP(&runTerms, "term", "t", nil, "Search term (repeatable, overrides INGEST_SEARCH_TERMS)")
	runCommand.Flags().IntVar(&runSample, "sample", 0, "Number of built-in terms to sample when no terms are given")
	runCommand.Flags().StringVarP(&runOutput, "output", "o", "", "Dataset output path (defaults to SCRAPED_ITEMS_OUTPUT)")
	runCommand.Flags().StringVar(&runSite, "site", "amazon", "Site template used for discovery")
	runCommand.Flags().BoolVar(&runAssets, "assets", false, "Upload product images to object storage")
	runCommand.Flags().BoolVar(&runDatabase, "db", false, "Also write items to Postgres")
	runCommand.Flags().BoolVar(&runRelayFlush, "relay-flush", false, "Publish pending outbox events to Redis after writing")

	rootCmd.AddCommand(runCommand)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel, a, err := setup(func(cfg *config.Config) {
		if len(runTerms) > 0 {
			cfg.Ingest.SearchTerms = runTerms
		}
		if runSample > 0 {
			cfg.Ingest.TermSample = runSample
		}
		if runOutput != "" {
			cfg.Ingest.OutputPath = runOutput
		}
		if cmd.Flags().Changed("assets") {
			cfg.Ingest.UploadAssets = runAssets
		}
		if cmd.Flags().Changed("db") {
			cfg.Database.Enabled = runDatabase
		}
		if cmd.Flags().Changed("relay-flush") {
			cfg.Ingest.RelayFlush = runRelayFlush
		}
	})
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	cfg := a.Config
	logger := a.Logger

	discoverer, err := a.Discoverer(runSite)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Scraper:          a.Scraper,
		Scheduler:        a.Scheduler,
		MaxRetries:       cfg.Scraper.MaxRetries,
		Discoverer:       discoverer,
		Titles:           a.Titles(),
		AssetConcurrency: cfg.Scraper.Concurrency,
		Logger:           logger,
	}

	if cfg.Ingest.UploadAssets {
		assets, err := a.ContentStore(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		opts.Assets = assets
	}

	var db *database.DB
	if cfg.Database.Enabled {
		db, err = a.Database(ctx)
		if err != nil {
			return err
		}
	}
	opts.Sinks = a.Sinks(db)

	orchestrator, err := pipeline.New(opts)
	if err != nil {
		return err
	}

	input := pipeline.Input{
		Terms: pipeline.SelectTerms(cfg.Ingest.SearchTerms, config.DefaultSearchTerms(), cfg.Ingest.TermSample, nil),
		Seeds: append(append([]string(nil), cfg.Ingest.SeedURLs...), args...),
	}
	logger.Info("starting ingest run", "terms", input.Terms, "seeds", len(input.Seeds), "engine", cfg.Fetch.Engine)

	report, err := orchestrator.Run(ctx, input)
	if report != nil {
		_ = printJSON(report)
	}
	if err != nil {
		logger.Error("ingest run failed", "error", err)
		return err
	}

	logger.Info("ingest run finished",
		"run_id", report.RunID.String(),
		"written", report.Written,
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String(),
	)

	if db != nil && cfg.Ingest.RelayFlush {
		client, err := a.Redis(ctx)
		if err != nil {
			return err
		}
		published, err := a.Relay(db, client).Flush(ctx)
		if err != nil {
			return fmt.Errorf("failed to flush outbox: %w", err)
		}
		logger.Info("outbox flushed", "published", published)
	}
	return nil
}
