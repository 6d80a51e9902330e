// Package scraper turns product URLs into records. A scrape is a bounded
// series of attempts, each of which fetches, checks for soft blocks, checks
// the status and extracts.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/priceguess-ingest/internal/fetcher"
	"github.com/maltedev/priceguess-ingest/internal/models"
	"github.com/maltedev/priceguess-ingest/internal/parser"
)

const (
	DefaultMaxRetries = 2
	DefaultRetryDelay = 2 * time.Second
)

// ProductScraper is what the scheduler and API depend on.
type ProductScraper interface {
	Scrape(ctx context.Context, url string, maxRetries int) models.ScrapeOutcome
}

type Options struct {
	// RetryDelay is multiplied by the attempt number between attempts.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

type Scraper struct {
	fetcher    fetcher.Fetcher
	registry   *parser.Registry
	retryDelay time.Duration
	logger     *slog.Logger
}

func New(f fetcher.Fetcher, registry *parser.Registry, opts Options) *Scraper {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}

	return &Scraper{
		fetcher:    f,
		registry:   registry,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger.With("component", "scraper"),
	}
}

type attemptState int

const (
	stateAttempt attemptState = iota
	stateBackoff
	stateDone
)

// attemptResult is the outcome of a single fetch+extract.
type attemptResult struct {
	record *models.ProductRecord
	reason models.FailureReason
	err    error
}

func (r attemptResult) retryable() bool {
	return r.reason != models.ReasonInvalidInputURL
}

// Scrape runs at most maxRetries+1 attempts against url. It never returns an
// error: every failure is folded into the outcome.
func (s *Scraper) Scrape(ctx context.Context, url string, maxRetries int) models.ScrapeOutcome {
	if maxRetries < 0 {
		maxRetries = 0
	}

	tmpl, err := s.registry.Match(url)
	if err != nil {
		s.logger.Warn("rejected url", "url", url, "reason", models.ReasonInvalidInputURL, "error", err)
		return models.Failure(url, models.ReasonInvalidInputURL, fmt.Errorf("%w: %v", ErrInvalidURL, err), 0, nil)
	}
	extractor := parser.NewExtractor(tmpl)

	var (
		state    = stateAttempt
		attempts int
		history  []models.FailureReason
		last     attemptResult
	)

	for state != stateDone {
		switch state {
		case stateAttempt:
			attempts++
			last = s.attempt(ctx, extractor, url)
			if last.record != nil {
				if attempts > 1 {
					s.logger.Info("scrape succeeded after retry", "url", url, "attempt", attempts)
				}
				return models.Success(url, *last.record, attempts, history)
			}

			history = append(history, last.reason)
			s.logger.Warn("scrape attempt failed",
				"url", url,
				"site", tmpl.Name,
				"attempt", attempts,
				"max_attempts", maxRetries+1,
				"reason", last.reason,
				"error", last.err)

			switch {
			case !last.retryable(), attempts > maxRetries, ctx.Err() != nil:
				state = stateDone
			default:
				state = stateBackoff
			}

		case stateBackoff:
			if err := sleep(ctx, s.retryDelay*time.Duration(attempts)); err != nil {
				last.err = err
				state = stateDone
				continue
			}
			state = stateAttempt
		}
	}

	reason, err := terminal(history, last, attempts)
	s.logger.Error("scrape failed", "url", url, "attempts", attempts, "reason", reason, "error", err)
	return models.Failure(url, reason, err, attempts, history)
}

// terminal picks the reported reason: a cause shared by every attempt is
// reported as itself, a mix of causes as MaxRetriesExceeded.
func terminal(history []models.FailureReason, last attemptResult, attempts int) (models.FailureReason, error) {
	if attempts <= 1 {
		return last.reason, last.err
	}

	for _, r := range history {
		if r != last.reason {
			return models.ReasonMaxRetriesExceeded,
				fmt.Errorf("%w after %d attempts (%v): %w", ErrMaxRetriesExceeded, attempts, history, last.err)
		}
	}
	return last.reason, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, attempts, last.err)
}

func (s *Scraper) attempt(ctx context.Context, extractor *parser.Extractor, url string) attemptResult {
	resp, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, fetcher.ErrInvalidURL) {
			return attemptResult{reason: models.ReasonInvalidInputURL, err: fmt.Errorf("%w: %v", ErrInvalidURL, err)}
		}
		return attemptResult{reason: models.ReasonTransportError, err: err}
	}

	body := resp.Text()

	// Block pages are served with 200 as often as with 503.
	if marker, blocked := extractor.Template().Blocked(body); blocked {
		return attemptResult{
			reason: models.ReasonSoftBlockDetected,
			err:    &BlockError{URL: url, Marker: marker, StatusCode: resp.StatusCode},
		}
	}

	if !resp.OK {
		return attemptResult{
			reason: models.ReasonHTTPStatusError,
			err:    &StatusError{URL: url, Code: resp.StatusCode},
		}
	}

	record := extractor.Extract(url, body)
	if record.Empty() {
		return attemptResult{reason: models.ReasonExtractionEmpty, err: ErrExtractionEmpty}
	}

	return attemptResult{record: &record}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
