package providers

import (
	"context"
	"time"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
)

// StageTask is one unit of work on the queue: run a single pipeline stage for
// a single visit.
type StageTask struct {
	ID       string         `json:"id"`
	VisitID  string         `json:"visit_id"`
	Stage    entities.Stage `json:"stage"`
	Attempt  int            `json:"attempt"`
	Enqueued time.Time      `json:"enqueued"`
}

// TaskQueue is the transport between the API and the pipeline workers. Tasks
// are acknowledged only after completion; a task held by a dead worker must be
// reclaimable so the stage is retried.
type TaskQueue interface {
	// Enqueue pushes a stage task for a visit
	Enqueue(ctx context.Context, task *StageTask) error

	// Dequeue blocks up to timeout for the next task, moving it to the
	// worker's in-flight set (late ack)
	Dequeue(ctx context.Context, timeout time.Duration) (*StageTask, error)

	// Ack removes a completed task from the in-flight set
	Ack(ctx context.Context, task *StageTask) error

	// Requeue returns a failed task to the queue with its attempt counter
	// incremented
	Requeue(ctx context.Context, task *StageTask) error

	// ReclaimStale moves tasks stranded in-flight longer than maxAge back
	// onto the queue. Returns the number reclaimed.
	ReclaimStale(ctx context.Context, maxAge time.Duration) (int, error)

	// Close releases queue resources
	Close() error
}

// NoteSearchRepository indexes completed visit notes for operator full-text
// search. Implementations must tolerate being nil-checked and skipped.
type NoteSearchRepository interface {
	// IndexNote indexes or reindexes one note
	IndexNote(ctx context.Context, note *entities.VisitNote) error

	// SearchNotes performs a full-text query over indexed notes
	SearchNotes(ctx context.Context, query string, limit int) ([]*entities.VisitNote, error)
}
