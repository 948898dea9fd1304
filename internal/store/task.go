package store

import (
	"context"
	"time"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
)

// ProgressHistoryLimit is the number of progress entries kept per task.
const ProgressHistoryLimit = 10

// TaskStore holds task metadata and results. Every method is atomic for a
// single task id and reads are never served from an in-process cache.
type TaskStore interface {
	// Create stores a new QUEUED task built from spec and returns it.
	// It fails with domain.ErrInvalidSpec for malformed specs.
	Create(ctx context.Context, spec domain.TaskSpec) (*domain.Task, error)

	// Get returns the task or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Task, error)

	// Update applies upd through domain.ApplyUpdate atomically and returns
	// the updated task. Unknown ids fail with domain.ErrNotFound.
	Update(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error)

	// Complete applies domain.CompleteUpdate(claimToken) and stores result
	// with the given time to live in one atomic step. When the transition is
	// rejected, for example with domain.ErrClaimLost, no result is written.
	Complete(ctx context.Context, id, claimToken string, result *domain.Result, ttl time.Duration) (*domain.Task, error)

	// PutResult stores the result of a task with the given time to live.
	// It fails with domain.ErrNotFound if the task never existed.
	PutResult(ctx context.Context, id string, result *domain.Result, ttl time.Duration) error

	// GetResult returns the result or domain.ErrNotFound when it was never
	// produced or has expired.
	GetResult(ctx context.Context, id string) (*domain.Result, error)

	// ListBatch returns the member tasks of a batch in creation order.
	ListBatch(ctx context.Context, batchID string) ([]*domain.Task, error)

	// ListProcessing returns PROCESSING tasks claimed before startedBefore.
	ListProcessing(ctx context.Context, startedBefore time.Time) ([]*domain.Task, error)

	// ListQueued returns QUEUED tasks last updated before updatedBefore,
	// whether or not they are currently held by a queue tier.
	ListQueued(ctx context.Context, updatedBefore time.Time) ([]*domain.Task, error)

	// RecordProgress appends to the task's progress history, keeping the
	// newest ProgressHistoryLimit entries.
	RecordProgress(ctx context.Context, id string, entry domain.ProgressEntry) error

	// ProgressHistory returns the recorded entries, oldest first.
	ProgressHistory(ctx context.Context, id string) ([]domain.ProgressEntry, error)

	// DeleteTask removes a task with its result and history.
	DeleteTask(ctx context.Context, id string) error

	// PurgeCompleted deletes terminal tasks finished before the given time
	// and returns how many were removed.
	PurgeCompleted(ctx context.Context, before time.Time) (int, error)
}

// Entry is a claimed queue entry.
type Entry struct {
	TaskID   string
	Priority domain.Priority
}

// DeadLetter records a task that ended FAILED.
type DeadLetter struct {
	TaskID   string    `json:"task_id"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// PriorityQueue holds task ids in three FIFO tiers with strict priority
// across tiers. An id is present in at most one tier at a time.
type PriorityQueue interface {
	// Enqueue appends id to the tail of the tier. It fails with
	// domain.ErrAlreadyQueued if id is in any tier and with
	// domain.ErrQueueFull when a depth limit is configured and reached.
	Enqueue(ctx context.Context, id string, priority domain.Priority) error

	// Dequeue atomically removes and returns the head of the first non-empty
	// tier in order high, normal, low. ok is false when every tier is empty.
	// Two concurrent callers never receive the same id.
	Dequeue(ctx context.Context) (entry Entry, ok bool, err error)

	// Requeue appends id to the tail of the tier for a retry. It ignores the
	// depth limit.
	Requeue(ctx context.Context, id string, priority domain.Priority) error

	// RemoveIfQueued removes id from whichever tier holds it, or fails with
	// domain.ErrNotQueued.
	RemoveIfQueued(ctx context.Context, id string) error

	// Depths returns the number of queued ids per tier.
	Depths(ctx context.Context) (map[domain.Priority]int64, error)

	// DeadLetter records a failed task for inspection and manual retry.
	DeadLetter(ctx context.Context, id, reason string) error

	// DeadLetters returns up to limit entries, newest first.
	DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)

	// RemoveDeadLetter removes the entry for id or fails with domain.ErrNotFound.
	RemoveDeadLetter(ctx context.Context, id string) error

	// DeadLetterCount returns the number of dead-lettered tasks.
	DeadLetterCount(ctx context.Context) (int64, error)
}
