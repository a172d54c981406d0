// Package dispatcher fans configured sources out to a pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
	"github.com/mkonefal2/clickbait-verifier/internal/worker"
)

// Queue is a source queue that can be closed once every source is enqueued.
type Queue interface {
	crawler.Queue
	Close()
}

// Dispatcher runs one batch of sources across its workers.
type Dispatcher struct {
	queue   Queue
	workers []*worker.Worker
	clock   crawler.Clock
	logger  *zap.Logger
}

// New creates a Dispatcher. The workers must consume from queue.
func New(queue Queue, workers []*worker.Worker, clock crawler.Clock, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{queue: queue, workers: workers, clock: clock, logger: logger}
}

// Run enqueues every source, closes the queue and blocks until the workers have drained it.
// Results are returned in completion order. A Dispatcher runs a single batch.
func (d *Dispatcher) Run(ctx context.Context, sources []crawler.SourceDefinition) ([]crawler.ItemResult, error) {
	if len(d.workers) == 0 {
		return nil, fmt.Errorf("dispatcher has no workers")
	}

	var (
		mu      sync.Mutex
		results []crawler.ItemResult
		wg      sync.WaitGroup
	)
	report := func(items []crawler.ItemResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, items...)
	}
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx, report)
		}(w)
	}

	var enqueueErr error
	for _, src := range sources {
		item := crawler.QueueItem{Source: src}
		if d.clock != nil {
			item.EnqueuedAt = d.clock.Now()
		}
		if err := d.queue.Enqueue(ctx, item); err != nil {
			enqueueErr = fmt.Errorf("queue enqueue %s: %w", src.Name, err)
			break
		}
		d.logger.Debug("Enqueued source", zap.String("source", src.Name))
	}
	d.queue.Close()
	wg.Wait()

	return results, enqueueErr
}
