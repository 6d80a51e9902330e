package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/maltedev/priceguess-ingest/internal/models"
)

var (
	ErrQueueClosed = errors.New("queue is closed")
)

type Queue interface {
	Push(item models.WorkItem) error
	Pop(ctx context.Context) (models.WorkItem, error)
	Size() int
	Close() error
}

// InMemoryQueue is an unbounded FIFO. Pop blocks until an item arrives, the
// queue is closed and drained, or ctx is done.
type InMemoryQueue struct {
	items  []models.WorkItem
	mu     sync.Mutex
	ready  chan struct{}
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		ready: make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(item models.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, item)
	q.broadcast()

	return nil
}

func (q *InMemoryQueue) Pop(ctx context.Context) (models.WorkItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = models.WorkItem{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return models.WorkItem{}, ErrQueueClosed
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.WorkItem{}, ctx.Err()
		case <-ready:
		}
	}
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further pushes. Items already queued can still be popped.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.broadcast()
	}

	return nil
}

// broadcast wakes every blocked Pop. Callers hold mu.
func (q *InMemoryQueue) broadcast() {
	close(q.ready)
	q.ready = make(chan struct{})
}

// PushAll enqueues items in order and stops at the first error.
func PushAll(q Queue, items []models.WorkItem) error {
	for _, item := range items {
		if err := q.Push(item); err != nil {
			return err
		}
	}
	return nil
}
