package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, crawler.QueueItem{Source: crawler.SourceDefinition{Name: "a"}}))
	require.NoError(t, q.Enqueue(ctx, crawler.QueueItem{Source: crawler.SourceDefinition{Name: "b"}}))

	item, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", item.Source.Name)
}

func TestQueueDrainsThenReportsClosed(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, crawler.QueueItem{Source: crawler.SourceDefinition{Name: "a"}}))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(ctx, crawler.QueueItem{}), crawler.ErrQueueClosed)

	item, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", item.Source.Name)

	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, crawler.ErrQueueClosed)
}

func TestQueueHonorsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.ErrorIs(t, q.Enqueue(ctx, crawler.QueueItem{}), context.DeadlineExceeded)
}
