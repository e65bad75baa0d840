package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/caretrail/visit-pipeline/internal/application/services"
	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

const (
	dequeueTimeout  = 5 * time.Second
	reclaimInterval = 1 * time.Minute
	maxAttempts     = 3
)

// Worker consumes stage tasks off the queue and executes them through the
// pipeline service. Tasks are acknowledged only after the stage finishes;
// transient failures requeue the task up to maxAttempts.
type Worker struct {
	id           string
	queue        providers.TaskQueue
	pipeline     *services.PipelineService
	stageTimeout time.Duration
	logger       zerolog.Logger
}

func New(id string, queue providers.TaskQueue, pipeline *services.PipelineService, stageTimeout time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		id:           id,
		queue:        queue,
		pipeline:     pipeline,
		stageTimeout: stageTimeout,
		logger:       logger.With().Str("worker_id", id).Logger(),
	}
}

// Run processes tasks until ctx is cancelled. A reclaim sweep runs
// periodically so tasks stranded by a dead worker re-enter the queue.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("Worker started")

	reclaim := time.NewTicker(reclaimInterval)
	defer reclaim.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Worker stopping")
			return ctx.Err()
		case <-reclaim.C:
			w.reclaimStale(ctx)
		default:
		}

		task, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Error().Err(err).Msg("Dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}

		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task *providers.StageTask) {
	logger := w.logger.With().
		Str("task_id", task.ID).
		Str("visit_id", task.VisitID).
		Str("stage", string(task.Stage)).
		Int("attempt", task.Attempt).
		Logger()

	// Hard wall-clock limit per stage so a hung engine call cannot pin the
	// worker forever.
	stageCtx, cancel := context.WithTimeout(ctx, w.stageTimeout)
	defer cancel()

	err := w.pipeline.ExecuteStage(stageCtx, task.VisitID, task.Stage)
	if err == nil {
		if ackErr := w.queue.Ack(ctx, task); ackErr != nil {
			logger.Error().Err(ackErr).Msg("Failed to ack task")
		}
		return
	}

	if !w.retryable(err) || task.Attempt+1 >= maxAttempts {
		logger.Error().Err(err).Msg("Task abandoned")
		if ackErr := w.queue.Ack(ctx, task); ackErr != nil {
			logger.Error().Err(ackErr).Msg("Failed to ack abandoned task")
		}
		return
	}

	logger.Warn().Err(err).Msg("Task failed, requeueing")
	if reqErr := w.queue.Requeue(ctx, task); reqErr != nil {
		logger.Error().Err(reqErr).Msg("Failed to requeue task")
	}
}

// retryable reports whether a stage failure is worth another attempt.
// Validation and missing-input failures are deterministic; retrying them
// only repeats the same outcome.
func (w *Worker) retryable(err error) bool {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeMissingInput, apperrors.ErrorTypeNotFound:
		return false
	}
	return true
}

func (w *Worker) reclaimStale(ctx context.Context) {
	reclaimed, err := w.queue.ReclaimStale(ctx, w.stageTimeout)
	if err != nil {
		w.logger.Error().Err(err).Msg("Stale task reclaim failed")
		return
	}
	if reclaimed > 0 {
		w.logger.Warn().Int("count", reclaimed).Msg("Reclaimed stale tasks")
	}
}
