// Package scheduler fans work items out to a fixed pool of workers. Each
// worker waits a jittered delay before every item, and results are gathered
// by a single collector so callers never share mutable state with workers.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/priceguess-ingest/internal/models"
	"github.com/maltedev/priceguess-ingest/internal/queue"
	"github.com/maltedev/priceguess-ingest/internal/ratelimit"
	"github.com/maltedev/priceguess-ingest/internal/scraper"
)

const (
	DefaultConcurrency = 3
	DefaultDelayMin    = 5 * time.Second
	DefaultDelayMax    = 15 * time.Second
	DefaultCooldownMin = 15 * time.Second
	DefaultCooldownMax = 45 * time.Second
)

// Task processes one work item. It reports failures inside the outcome.
type Task func(ctx context.Context, item models.WorkItem) models.ScrapeOutcome

type Options struct {
	Concurrency int
	// Delay is waited by a worker before each item.
	Delay ratelimit.RateLimiter
	// Cooldown is waited between batches.
	Cooldown ratelimit.RateLimiter
	Logger   *slog.Logger
}

type Scheduler struct {
	concurrency int
	delay       ratelimit.RateLimiter
	cooldown    ratelimit.RateLimiter
	logger      *slog.Logger
}

func New(opts Options) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Delay == nil {
		opts.Delay = ratelimit.NewJitterLimiter(DefaultDelayMin, DefaultDelayMax)
	}
	if opts.Cooldown == nil {
		opts.Cooldown = ratelimit.NewJitterLimiter(DefaultCooldownMin, DefaultCooldownMax)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Scheduler{
		concurrency: opts.Concurrency,
		delay:       opts.Delay,
		cooldown:    opts.Cooldown,
		logger:      opts.Logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) Concurrency() int {
	return s.concurrency
}

// Run executes task for every item with at most Concurrency tasks in flight.
// Items start in FIFO order; outcomes come back in completion order. If ctx
// is cancelled the outcomes gathered so far are returned with ctx's error.
func (s *Scheduler) Run(ctx context.Context, items []models.WorkItem, task Task) ([]models.ScrapeOutcome, error) {
	if len(items) == 0 {
		return nil, nil
	}

	q := queue.NewInMemoryQueue()
	if err := queue.PushAll(q, items); err != nil {
		return nil, err
	}
	_ = q.Close()

	workers := s.concurrency
	if workers > len(items) {
		workers = len(items)
	}

	results := make(chan models.ScrapeOutcome)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < workers; i++ {
		worker := i + 1
		g.Go(func() error {
			for {
				item, err := q.Pop(gctx)
				if errors.Is(err, queue.ErrQueueClosed) {
					return nil
				}
				if err != nil {
					return err
				}

				if err := s.delay.Wait(gctx); err != nil {
					return err
				}

				s.logger.Debug("processing item", "worker", worker, "url", item.URL, "origin", item.Origin)
				outcome := task(gctx, item)

				select {
				case results <- outcome:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(results)
	}()

	outcomes := make([]models.ScrapeOutcome, 0, len(items))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}

	if err := <-done; err != nil {
		s.logger.Warn("batch interrupted", "completed", len(outcomes), "total", len(items), "error", err)
		return outcomes, err
	}
	return outcomes, nil
}

// Cooldown waits the between-batch pause.
func (s *Scheduler) Cooldown(ctx context.Context) error {
	return s.cooldown.Wait(ctx)
}

// ScrapeTask adapts a scraper into a Task.
func ScrapeTask(sc scraper.ProductScraper, maxRetries int) Task {
	return func(ctx context.Context, item models.WorkItem) models.ScrapeOutcome {
		return sc.Scrape(ctx, item.URL, maxRetries)
	}
}

// Stats reduces outcomes into counters. The reduction is order independent.
func Stats(outcomes []models.ScrapeOutcome) models.BatchStats {
	stats := models.BatchStats{Failures: make(map[models.FailureReason]int)}
	for _, o := range outcomes {
		if o.OK() {
			stats.SuccessCount++
			continue
		}
		stats.FailureCount++
		stats.Failures[o.Reason]++
	}
	return stats
}
