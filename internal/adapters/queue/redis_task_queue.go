package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	redisclient "github.com/caretrail/visit-pipeline/internal/infrastructure/clients/redis"
)

const (
	pendingKey    = "visit-pipeline:tasks"
	processingKey = "visit-pipeline:tasks:processing"
	inflightKey   = "visit-pipeline:tasks:inflight"
)

// RedisTaskQueue implements the TaskQueue interface on Redis lists. Dequeue
// moves a task onto a processing list and records its claim time; Ack removes
// it. Tasks stranded on the processing list by a dead worker are reclaimed by
// ReclaimStale, which gives the late-ack redelivery guarantee.
type RedisTaskQueue struct {
	client *redisclient.Client
}

// NewRedisTaskQueue creates a new Redis-backed task queue
func NewRedisTaskQueue(client *redisclient.Client) providers.TaskQueue {
	return &RedisTaskQueue{client: client}
}

// Enqueue pushes a stage task for a visit
func (q *RedisTaskQueue) Enqueue(ctx context.Context, task *providers.StageTask) error {
	if task.Enqueued.IsZero() {
		task.Enqueued = time.Now()
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.client.Client().LPush(ctx, pendingKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Debug().
		Str("visit_id", task.VisitID).
		Str("stage", string(task.Stage)).
		Msg("enqueued stage task")
	return nil
}

// Dequeue blocks up to timeout for the next task and moves it to the
// processing list before returning it. Returns (nil, nil) on timeout.
func (q *RedisTaskQueue) Dequeue(ctx context.Context, timeout time.Duration) (*providers.StageTask, error) {
	data, err := q.client.Client().BLMove(ctx, pendingKey, processingKey, "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	var task providers.StageTask
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		// Malformed payloads are dropped from the processing list so they
		// cannot wedge the queue.
		q.client.Client().LRem(ctx, processingKey, 1, data)
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	claimed := strconv.FormatInt(time.Now().Unix(), 10)
	if err := q.client.Client().HSet(ctx, inflightKey, task.ID, claimed).Err(); err != nil {
		return nil, fmt.Errorf("failed to record in-flight claim: %w", err)
	}

	return &task, nil
}

// Ack removes a completed task from the processing list
func (q *RedisTaskQueue) Ack(ctx context.Context, task *providers.StageTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.client.Client().LRem(ctx, processingKey, 1, data).Err(); err != nil {
		return fmt.Errorf("failed to ack task: %w", err)
	}
	if err := q.client.Client().HDel(ctx, inflightKey, task.ID).Err(); err != nil {
		return fmt.Errorf("failed to clear in-flight claim: %w", err)
	}

	return nil
}

// Requeue returns a failed task to the pending queue with its attempt counter
// incremented
func (q *RedisTaskQueue) Requeue(ctx context.Context, task *providers.StageTask) error {
	if err := q.Ack(ctx, task); err != nil {
		return err
	}

	retried := *task
	retried.Attempt++
	retried.Enqueued = time.Now()
	return q.Enqueue(ctx, &retried)
}

// ReclaimStale moves tasks stranded in-flight longer than maxAge back onto
// the pending queue. Returns the number reclaimed.
func (q *RedisTaskQueue) ReclaimStale(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := q.client.Client().LRange(ctx, processingKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read processing list: %w", err)
	}

	cutoff := time.Now().Add(-maxAge).Unix()
	reclaimed := 0

	for _, data := range entries {
		var task providers.StageTask
		if err := json.Unmarshal([]byte(data), &task); err != nil {
			q.client.Client().LRem(ctx, processingKey, 1, data)
			continue
		}

		claimedStr, err := q.client.Client().HGet(ctx, inflightKey, task.ID).Result()
		if err == redis.Nil {
			// No claim record means the worker died between BLMove and HSet.
			claimedStr = "0"
		} else if err != nil {
			return reclaimed, fmt.Errorf("failed to read in-flight claim: %w", err)
		}

		claimed, _ := strconv.ParseInt(claimedStr, 10, 64)
		if claimed > cutoff {
			continue
		}

		if err := q.Requeue(ctx, &task); err != nil {
			return reclaimed, err
		}
		reclaimed++

		log.Warn().
			Str("visit_id", task.VisitID).
			Str("stage", string(task.Stage)).
			Int("attempt", task.Attempt).
			Msg("reclaimed stale in-flight task")
	}

	return reclaimed, nil
}

// Close releases queue resources. The underlying Redis client is shared and
// closed by its owner.
func (q *RedisTaskQueue) Close() error {
	return nil
}
