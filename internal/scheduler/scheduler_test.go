package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/priceguess-ingest/internal/models"
	"github.com/maltedev/priceguess-ingest/internal/ratelimit"
)

func noDelay() ratelimit.RateLimiter {
	return ratelimit.NewJitterLimiter(0, 0)
}

func workItems(n int) []models.WorkItem {
	out := make([]models.WorkItem, n)
	for i := range out {
		out[i] = models.NewWorkItem(fmt.Sprintf("https://www.amazon.com/dp/B%09d", i), models.OriginSeed)
	}
	return out
}

func TestRun_NeverExceedsConcurrency(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("cap=%d", limit), func(t *testing.T) {
			var inFlight, peak int64
			task := func(ctx context.Context, item models.WorkItem) models.ScrapeOutcome {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return models.Success(item.URL, models.ProductRecord{SourceURL: item.URL}, 1, nil)
			}

			s := New(Options{Concurrency: limit, Delay: noDelay(), Cooldown: noDelay()})
			outcomes, err := s.Run(context.Background(), workItems(20), task)

			require.NoError(t, err)
			assert.Len(t, outcomes, 20)
			assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(limit))
			assert.Zero(t, atomic.LoadInt64(&inFlight))
		})
	}
}

func TestRun_EveryItemProcessedOnce(t *testing.T) {
	items := workItems(12)
	task := func(ctx context.Context, item models.WorkItem) models.ScrapeOutcome {
		return models.Failure(item.URL, models.ReasonHTTPStatusError, nil, 1, nil)
	}

	s := New(Options{Concurrency: 4, Delay: noDelay()})
	outcomes, err := s.Run(context.Background(), items, task)
	require.NoError(t, err)

	var got, want []string
	for _, o := range outcomes {
		got = append(got, o.URL)
	}
	for _, it := range items {
		want = append(want, it.URL)
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func TestRun_SingleWorkerKeepsFIFO(t *testing.T) {
	items := workItems(6)
	task := func(ctx context.Context, item models.WorkItem) models.ScrapeOutcome {
		return models.Success(item.URL, models.ProductRecord{}, 1, nil)
	}

	outcomes, err := New(Options{Concurrency: 1, Delay: noDelay()}).Run(context.Background(), items, task)
	require.NoError(t, err)

	for i, o := range outcomes {
		assert.Equal(t, items[i].URL, o.URL)
	}
}

func TestRun_Empty(t *testing.T) {
	outcomes, err := New(Options{}).Run(context.Background(), nil, nil)
	assert.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestRun_CancelReturnsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int64
	task := func(ctx context.Context, item models.WorkItem) models.ScrapeOutcome {
		if atomic.AddInt64(&calls, 1) == 2 {
			cancel()
		}
		return models.Success(item.URL, models.ProductRecord{}, 1, nil)
	}

	outcomes, err := New(Options{Concurrency: 1, Delay: noDelay()}).Run(ctx, workItems(10), task)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(outcomes), 10)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Wait(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockLimiter) SetDelay(min, max time.Duration) {
	m.Called(min, max)
}

func TestRun_WaitsBeforeEveryItem(t *testing.T) {
	delay := new(mockLimiter)
	delay.On("Wait", mock.Anything).Return(nil).Times(5)

	task := func(ctx context.Context, item models.WorkItem) models.ScrapeOutcome {
		return models.Success(item.URL, models.ProductRecord{}, 1, nil)
	}
	_, err := New(Options{Concurrency: 2, Delay: delay}).Run(context.Background(), workItems(5), task)

	require.NoError(t, err)
	delay.AssertExpectations(t)
}

func TestCooldown_UsesCooldownLimiter(t *testing.T) {
	cooldown := new(mockLimiter)
	cooldown.On("Wait", mock.Anything).Return(context.Canceled).Once()

	err := New(Options{Delay: noDelay(), Cooldown: cooldown}).Cooldown(context.Background())

	assert.ErrorIs(t, err, context.Canceled)
	cooldown.AssertExpectations(t)
}

func TestStats(t *testing.T) {
	outcomes := []models.ScrapeOutcome{
		models.Success("a", models.ProductRecord{}, 1, nil),
		models.Failure("b", models.ReasonSoftBlockDetected, nil, 3, nil),
		models.Failure("c", models.ReasonSoftBlockDetected, nil, 3, nil),
		models.Failure("d", models.ReasonInvalidInputURL, nil, 0, nil),
	}

	stats := Stats(outcomes)

	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 3, stats.FailureCount)
	assert.Equal(t, 4, stats.Total())
	assert.Equal(t, 2, stats.Failures[models.ReasonSoftBlockDetected])

	reversed := []models.ScrapeOutcome{outcomes[3], outcomes[2], outcomes[1], outcomes[0]}
	assert.Equal(t, stats, Stats(reversed))
}
