package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/priceguess-ingest/internal/models"
)

func items(n int) []models.WorkItem {
	out := make([]models.WorkItem, n)
	for i := range out {
		out[i] = models.NewWorkItem(fmt.Sprintf("https://www.amazon.com/dp/B00000000%d", i), models.OriginSeed)
	}
	return out
}

func TestInMemoryQueue_FIFO(t *testing.T) {
	q := NewInMemoryQueue()
	in := items(5)
	require.NoError(t, PushAll(q, in))
	assert.Equal(t, 5, q.Size())

	for _, want := range in {
		got, err := q.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want.URL, got.URL)
	}
	assert.Zero(t, q.Size())
}

func TestInMemoryQueue_CloseDrainsThenFails(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, PushAll(q, items(1)))
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(items(1)[0]), ErrQueueClosed)

	_, err := q.Pop(context.Background())
	require.NoError(t, err)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestInMemoryQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewInMemoryQueue()
	got := make(chan models.WorkItem, 1)

	go func() {
		item, err := q.Pop(context.Background())
		if err == nil {
			got <- item
		}
	}()

	time.Sleep(10 * time.Millisecond)
	want := items(1)[0]
	require.NoError(t, q.Push(want))

	select {
	case item := <-got:
		assert.Equal(t, want.URL, item.URL)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestInMemoryQueue_PopRespectsContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryQueue_CloseWakesAllWaiters(t *testing.T) {
	q := NewInMemoryQueue()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Pop(context.Background())
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Close())
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrQueueClosed)
	}
}
