// Package pipeline drives one ingest run: discovery per search term, batched
// scraping, validity filtering, optional post-processing and a single write
// of the resulting dataset to every configured sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/priceguess-ingest/internal/models"
	"github.com/maltedev/priceguess-ingest/internal/scheduler"
	"github.com/maltedev/priceguess-ingest/internal/scraper"
	"github.com/maltedev/priceguess-ingest/internal/storage"
	"github.com/maltedev/priceguess-ingest/internal/titles"
)

const DefaultAssetConcurrency = 4

var (
	ErrNoItemsCollected = errors.New("no items collected")
	ErrNoValidItems     = errors.New("no valid items after filtering")
)

// Sink receives the validated dataset once per run.
type Sink interface {
	Name() string
	WriteItems(ctx context.Context, items []models.Item) error
}

type Discoverer interface {
	Discover(ctx context.Context, term string) ([]string, error)
}

// BatchRunner schedules one batch of work items. *scheduler.Scheduler
// satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, items []models.WorkItem, task scheduler.Task) ([]models.ScrapeOutcome, error)
	Cooldown(ctx context.Context) error
}

type AssetStore interface {
	Store(ctx context.Context, imageURL string) (models.StoredAsset, error)
}

type Options struct {
	Scraper    scraper.ProductScraper
	Scheduler  BatchRunner
	MaxRetries int

	// Discoverer may be nil when only seed URLs are scraped.
	Discoverer Discoverer
	Titles     titles.Rewriter
	// Assets may be nil; image URLs are then written unchanged.
	Assets           AssetStore
	AssetConcurrency int

	Sinks  []Sink
	Logger *slog.Logger
}

type Input struct {
	Terms []string
	Seeds []string
}

type Report struct {
	RunID          uuid.UUID         `json:"run_id"`
	TotalAttempted int               `json:"total_attempted"`
	Stats          models.BatchStats `json:"stats"`
	Valid          int               `json:"valid"`
	Written        int               `json:"written"`
	AssetsUploaded int               `json:"assets_uploaded"`
	SkippedTerms   []string          `json:"skipped_terms,omitempty"`
	Sinks          []string          `json:"sinks,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}

type Orchestrator struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Scraper == nil {
		return nil, errors.New("pipeline: scraper is required")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("pipeline: scheduler is required")
	}
	if opts.Titles == nil {
		opts.Titles = titles.Noop{}
	}
	if opts.AssetConcurrency <= 0 {
		opts.AssetConcurrency = DefaultAssetConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Orchestrator{
		opts:   opts,
		logger: opts.Logger.With("component", "orchestrator"),
	}, nil
}

// Run executes the whole pipeline. The report is returned even when err is
// not nil so callers can log what happened before the failure.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Report, error) {
	report := &Report{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}
	logger := o.logger.With("run_id", report.RunID.String())
	defer func() { report.FinishedAt = time.Now() }()

	acc, err := o.collect(ctx, logger, in, report)
	report.TotalAttempted = acc.attempted
	report.Stats = acc.stats
	if err != nil {
		return report, err
	}

	logger.Info("collection finished",
		"attempted", acc.attempted,
		"success_count", acc.stats.SuccessCount,
		"failure_count", acc.stats.FailureCount,
		"failures", acc.stats.Failures,
	)

	if acc.stats.SuccessCount == 0 {
		return report, ErrNoItemsCollected
	}

	valid := acc.valid()
	report.Valid = len(valid)
	if len(valid) == 0 {
		return report, ErrNoValidItems
	}
	logger.Info("filtered records", "valid", len(valid), "dropped", len(acc.records)-len(valid))

	items := o.rewriteTitles(ctx, valid)

	uploaded, err := o.uploadAssets(ctx, logger, items)
	report.AssetsUploaded = uploaded
	if err != nil {
		return report, err
	}

	for _, sink := range o.opts.Sinks {
		if err := sink.WriteItems(ctx, items); err != nil {
			return report, fmt.Errorf("write %s sink: %w", sink.Name(), err)
		}
		report.Sinks = append(report.Sinks, sink.Name())
		logger.Info("dataset written", "sink", sink.Name(), "items", len(items))
	}
	report.Written = len(items)

	return report, nil
}

// collect runs one batch per search term plus one batch of seed URLs,
// pausing between batches.
func (o *Orchestrator) collect(ctx context.Context, logger *slog.Logger, in Input, report *Report) (accumulator, error) {
	var acc accumulator
	seen := make(map[string]struct{})
	batches := 0

	runBatch := func(origin string, urls []string) error {
		items := schedule(seen, origin, urls)
		if len(items) == 0 {
			return nil
		}

		if batches > 0 {
			if err := o.opts.Scheduler.Cooldown(ctx); err != nil {
				return err
			}
		}
		batches++

		outcomes, err := o.opts.Scheduler.Run(ctx, items, scheduler.ScrapeTask(o.opts.Scraper, o.opts.MaxRetries))
		batch := reduce(len(outcomes), outcomes)
		acc = acc.merge(batch)
		if err != nil {
			return err
		}

		logger.Info("batch finished",
			"origin", origin,
			"scheduled", len(items),
			"success_count", batch.stats.SuccessCount,
			"failure_count", batch.stats.FailureCount,
		)
		return nil
	}

	for _, term := range in.Terms {
		if o.opts.Discoverer == nil {
			break
		}
		urls, err := o.opts.Discoverer.Discover(ctx, term)
		if err != nil {
			if ctx.Err() != nil {
				return acc, ctx.Err()
			}
			logger.Warn("discovery failed, skipping term", "term", term, "error", err)
			report.SkippedTerms = append(report.SkippedTerms, term)
			continue
		}
		if err := runBatch(models.SearchOrigin(term), urls); err != nil {
			return acc, err
		}
	}

	if err := runBatch(models.OriginSeed, in.Seeds); err != nil {
		return acc, err
	}

	return acc, nil
}

// schedule turns urls into work items, skipping any URL already scheduled in
// this run.
func schedule(seen map[string]struct{}, origin string, urls []string) []models.WorkItem {
	var items []models.WorkItem
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		items = append(items, models.NewWorkItem(u, origin))
	}
	return items
}

func (o *Orchestrator) rewriteTitles(ctx context.Context, records []models.ProductRecord) []models.Item {
	items := make([]models.Item, len(records))
	for i, r := range records {
		item := r.Item()
		if item.Title != nil {
			rewritten := o.opts.Titles.Rewrite(ctx, *item.Title)
			item.Title = &rewritten
		}
		items[i] = item
	}
	return items
}

// uploadAssets replaces each item's photo URL with its public object store
// URL. An image that cannot be fetched keeps its original URL; probe and
// upload failures abort the run.
func (o *Orchestrator) uploadAssets(ctx context.Context, logger *slog.Logger, items []models.Item) (int, error) {
	if o.opts.Assets == nil {
		return 0, nil
	}

	uploaded := make([]bool, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.AssetConcurrency)

	for i := range items {
		if items[i].PhotoURL == nil || *items[i].PhotoURL == "" {
			continue
		}
		i := i
		g.Go(func() error {
			source := *items[i].PhotoURL
			asset, err := o.opts.Assets.Store(gctx, source)
			if errors.Is(err, storage.ErrAssetFetch) {
				logger.Warn("image fetch failed, keeping source url", "url", items[i].Link, "image_url", source, "error", err)
				return nil
			}
			if err != nil {
				return err
			}
			public := asset.PublicURL
			items[i].PhotoURL = &public
			uploaded[i] = asset.Uploaded
			return nil
		})
	}

	err := g.Wait()

	count := 0
	for _, u := range uploaded {
		if u {
			count++
		}
	}
	if err != nil {
		return count, err
	}
	logger.Info("assets stored", "uploaded", count)
	return count, nil
}
