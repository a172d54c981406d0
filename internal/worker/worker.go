package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
	"github.com/mkonefal2/clickbait-verifier/internal/metrics"
)

// SourceRunner processes one source.
type SourceRunner interface {
	RunSource(ctx context.Context, src crawler.SourceDefinition) []crawler.ItemResult
}

// Worker consumes queued sources and runs each one to completion.
type Worker struct {
	id     int
	queue  crawler.Queue
	runner SourceRunner
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, queue crawler.Queue, runner SourceRunner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{id: id, queue: queue, runner: runner, logger: logger.With(zap.Int("worker", id))}
}

// Run blocks, handing each dequeued source's results to report, until the queue is closed and
// drained or ctx ends.
func (w *Worker) Run(ctx context.Context, report func([]crawler.ItemResult)) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, crawler.ErrQueueClosed) {
				w.logger.Error("Dequeue failed", zap.Error(err))
			}
			return
		}
		fields := []zap.Field{zap.String("source", item.Source.Name)}
		if !item.EnqueuedAt.IsZero() {
			fields = append(fields, zap.Duration("queued", time.Since(item.EnqueuedAt)))
		}
		w.logger.Debug("Dequeued source", fields...)

		metrics.IncActiveWorkers()
		results := w.runner.RunSource(ctx, item.Source)
		metrics.DecActiveWorkers()

		if report != nil {
			report(results)
		}
	}
}
