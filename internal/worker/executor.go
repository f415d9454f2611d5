package worker

import (
	"context"
	"log"

	"image-pipeline/internal/fetch"
	"image-pipeline/internal/models"
	"image-pipeline/internal/telemetry"
	"image-pipeline/internal/transform"
)

// TaskFinalizer is the narrow store contract the executor needs: guarded
// terminal transitions only. The bool result reports whether the row was
// still pending and actually transitioned.
type TaskFinalizer interface {
	MarkSuccess(ctx context.Context, id, outputPath string) (bool, error)
	MarkFailed(ctx context.Context, id, errMsg string) (bool, error)
}

// Executor runs one task end to end: fetch, transform, write output, persist
// the terminal state. Every invocation ends in exactly one persisted terminal
// update; errors are captured into the task record, never returned to the
// caller.
type Executor struct {
	fetcher *fetch.Fetcher
	store   TaskFinalizer
	sink    Sink
}

func NewExecutor(fetcher *fetch.Fetcher, store TaskFinalizer, sink Sink) *Executor {
	return &Executor{fetcher: fetcher, store: store, sink: sink}
}

// Execute processes a single claimed task.
func (e *Executor) Execute(ctx context.Context, task models.Task) {
	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	data, err := e.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		e.fail(ctx, task, err.Error())
		return
	}

	encoded, err := transform.Apply(data, task.Spec())
	if err != nil {
		e.fail(ctx, task, err.Error())
		return
	}

	path, err := e.sink.Write(ctx, task.ID+"."+transform.Extension, encoded)
	if err != nil {
		e.fail(ctx, task, err.Error())
		return
	}

	updated, err := e.store.MarkSuccess(ctx, task.ID, path)
	if err != nil {
		// The one unrecoverable case: the work is done but the record
		// could not be finalized.
		log.Printf("CRITICAL: task %s succeeded but status update failed: %v", task.ID, err)
		return
	}
	if !updated {
		log.Printf("task %s already finalized elsewhere, discarding result", task.ID)
		return
	}
	telemetry.TasksSucceeded.Inc()
	log.Printf("processed %s -> %s", task.URL, path)
}

func (e *Executor) fail(ctx context.Context, task models.Task, msg string) {
	updated, err := e.store.MarkFailed(ctx, task.ID, msg)
	if err != nil {
		log.Printf("CRITICAL: task %s failed (%s) and status update also failed: %v", task.ID, msg, err)
		return
	}
	if !updated {
		log.Printf("task %s already finalized elsewhere, dropping error: %s", task.ID, msg)
		return
	}
	telemetry.TasksFailed.Inc()
	log.Printf("failed to process %s: %s", task.URL, msg)
}
