package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// JitterLimiter sleeps a uniformly random duration in [min, max] on every
// Wait. Concurrent callers draw independent delays and sleep in parallel, so
// it spaces out each worker's requests without serialising the workers.
type JitterLimiter struct {
	minDelay time.Duration
	maxDelay time.Duration
	rng      *rand.Rand
	mu       sync.Mutex
}

func NewJitterLimiter(minDelay, maxDelay time.Duration) *JitterLimiter {
	return NewJitterLimiterWithSource(minDelay, maxDelay, rand.NewSource(time.Now().UnixNano()))
}

// NewJitterLimiterWithSource is NewJitterLimiter with a caller-provided random source.
func NewJitterLimiterWithSource(minDelay, maxDelay time.Duration, src rand.Source) *JitterLimiter {
	l := &JitterLimiter{rng: rand.New(src)}
	l.SetDelay(minDelay, maxDelay)
	return l
}

func (l *JitterLimiter) Wait(ctx context.Context) error {
	delay := l.Next()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *JitterLimiter) SetDelay(min, max time.Duration) {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.minDelay = min
	l.maxDelay = max
}

// Next draws the delay the next Wait would sleep.
func (l *JitterLimiter) Next() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.minDelay == l.maxDelay {
		return l.minDelay
	}

	delta := l.maxDelay - l.minDelay
	return l.minDelay + time.Duration(l.rng.Int63n(int64(delta)+1))
}

func (l *JitterLimiter) Bounds() (time.Duration, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minDelay, l.maxDelay
}
