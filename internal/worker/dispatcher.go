package worker

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"image-pipeline/internal/models"
	"image-pipeline/internal/queue"
	"image-pipeline/internal/telemetry"
)

// TaskSource is the store contract the dispatcher polls.
type TaskSource interface {
	FindPending(ctx context.Context, limit int) ([]models.Task, error)
}

// Dispatcher discovers pending tasks and drives the executor over them. The
// loop polls Postgres in batches; between empty polls it blocks on the Redis
// wake list so freshly submitted tasks cut the idle wait short. It never
// terminates on its own, only on context cancellation.
type Dispatcher struct {
	store        TaskSource
	exec         *Executor
	notifier     *queue.Notifier
	pollInterval time.Duration
	batchSize    int
	concurrency  int
}

// NewDispatcher builds the loop. notifier may be nil, degrading to pure
// fixed-interval polling. concurrency <= 1 means sequential execution per
// batch.
func NewDispatcher(store TaskSource, exec *Executor, notifier *queue.Notifier, pollInterval time.Duration, batchSize, concurrency int) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 5
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Dispatcher{
		store:        store,
		exec:         exec,
		notifier:     notifier,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		concurrency:  concurrency,
	}
}

// Run executes the poll/claim/execute loop until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tasks, err := d.store.FindPending(ctx, d.batchSize)
		if err != nil {
			log.Printf("poll pending tasks: %v", err)
			d.idle(ctx)
			continue
		}
		telemetry.PendingGauge.Set(float64(len(tasks)))

		if len(tasks) == 0 {
			d.idle(ctx)
			continue
		}

		// One poll covers every wake token accumulated so far.
		if d.notifier != nil {
			if err := d.notifier.Drain(ctx); err != nil {
				log.Printf("drain wake tokens: %v", err)
			}
		}

		d.runBatch(ctx, tasks)
	}
}

// runBatch executes the claimed batch, bounded by the configured concurrency.
// Rows within a batch are distinct by id, and the next poll starts only after
// every execution finished, so no task runs twice concurrently.
func (d *Dispatcher) runBatch(ctx context.Context, tasks []models.Task) {
	g := &errgroup.Group{}
	g.SetLimit(d.concurrency)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			d.exec.Execute(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
}

// idle waits out the poll interval, returning early when a wake token
// arrives.
func (d *Dispatcher) idle(ctx context.Context) {
	if d.notifier != nil {
		woke, err := d.notifier.AwaitWork(ctx, d.pollInterval)
		if err == nil || woke {
			return
		}
		log.Printf("await work: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(d.pollInterval):
	}
}
