package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
)

// queueLockKey serializes admission checks against the depth limit.
const queueLockKey int64 = 0x6f63725f71 // "ocr_q"

// Queue implements store.PriorityQueue on a PostgreSQL table.
type Queue struct {
	db       *sql.DB
	maxDepth int64
	logger   *slog.Logger
	now      func() time.Time
}

var _ store.PriorityQueue = (*Queue)(nil)

// NewQueue creates a Queue. maxDepth caps the total number of queued ids;
// zero leaves the queue unbounded.
func NewQueue(db *sql.DB, maxDepth int64, logger *slog.Logger) *Queue {
	return &Queue{
		db:       db,
		maxDepth: maxDepth,
		logger:   logger.With("component", "postgres_queue"),
		now:      time.Now,
	}
}

// Enqueue appends id to the tail of the tier.
func (q *Queue) Enqueue(ctx context.Context, id string, priority domain.Priority) error {
	return q.push(ctx, id, priority, q.maxDepth)
}

// Requeue appends id to the tail of the tier, ignoring the depth limit.
func (q *Queue) Requeue(ctx context.Context, id string, priority domain.Priority) error {
	return q.push(ctx, id, priority, 0)
}

func (q *Queue) push(ctx context.Context, id string, priority domain.Priority, maxDepth int64) error {
	if !priority.IsValid() {
		return fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidSpec, priority)
	}

	err := store.RunInTransaction(ctx, q.db, func(ctx context.Context, tx *sql.Tx) error {
		if maxDepth > 0 {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, queueLockKey); err != nil {
				return fmt.Errorf("failed to lock queue: %w", err)
			}

			var queued, depth int64
			err := tx.QueryRowContext(ctx, `
				SELECT
					count(*) FILTER (WHERE task_id = $1),
					count(*)
				FROM ocr_task_queue
			`, id).Scan(&queued, &depth)
			if err != nil {
				return fmt.Errorf("failed to read queue depth: %w", err)
			}
			if queued > 0 {
				return fmt.Errorf("%w: %s", domain.ErrAlreadyQueued, id)
			}
			if depth >= maxDepth {
				return fmt.Errorf("%w: queue capacity %d reached", domain.ErrQueueFull, maxDepth)
			}
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO ocr_task_queue (task_id, priority, tier_rank)
			VALUES ($1, $2, $3)
			ON CONFLICT (task_id) DO NOTHING
		`, id, string(priority), priority.Rank())
		if err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", id, err)
		}
		return checkRowsAffected(result, fmt.Errorf("%w: %s", domain.ErrAlreadyQueued, id))
	})
	if err != nil {
		return err
	}

	q.logger.Debug("task enqueued", "task_id", id, "priority", priority)
	return nil
}

// Dequeue deletes and returns the head row. Rows locked by a concurrent
// Dequeue are skipped rather than waited on.
func (q *Queue) Dequeue(ctx context.Context) (store.Entry, bool, error) {
	var id, priority string
	err := q.db.QueryRowContext(ctx, `
		DELETE FROM ocr_task_queue
		WHERE task_id = (
			SELECT task_id FROM ocr_task_queue
			ORDER BY tier_rank, seq
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING task_id, priority
	`).Scan(&id, &priority)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Entry{}, false, nil
	}
	if err != nil {
		return store.Entry{}, false, fmt.Errorf("failed to dequeue: %w", err)
	}
	return store.Entry{TaskID: id, Priority: domain.Priority(priority)}, true, nil
}

// RemoveIfQueued removes id or fails with domain.ErrNotQueued.
func (q *Queue) RemoveIfQueued(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx, `DELETE FROM ocr_task_queue WHERE task_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to remove %s from queue: %w", id, err)
	}
	return checkRowsAffected(result, fmt.Errorf("%w: %s", domain.ErrNotQueued, id))
}

// Depths returns the number of queued ids per tier.
func (q *Queue) Depths(ctx context.Context) (map[domain.Priority]int64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT priority, count(*) FROM ocr_task_queue GROUP BY priority
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue depths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	depths := make(map[domain.Priority]int64, len(domain.Priorities))
	for _, p := range domain.Priorities {
		depths[p] = 0
	}
	for rows.Next() {
		var p string
		var n int64
		if err := rows.Scan(&p, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue depth: %w", err)
		}
		depths[domain.Priority(p)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue depths: %w", err)
	}
	return depths, nil
}

// DeadLetter records a failed task, replacing any earlier entry for it.
func (q *Queue) DeadLetter(ctx context.Context, id, reason string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO ocr_dead_letters (task_id, reason, failed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id) DO UPDATE
		SET reason = EXCLUDED.reason, failed_at = EXCLUDED.failed_at
	`, id, reason, q.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to dead-letter %s: %w", id, err)
	}
	return nil
}

// DeadLetters returns up to limit entries, newest first. A limit of zero or
// less returns every entry.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT task_id, reason, failed_at
		FROM ocr_dead_letters
		ORDER BY failed_at DESC
		LIMIT $1
	`, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	letters := []store.DeadLetter{}
	for rows.Next() {
		var dl store.DeadLetter
		if err := rows.Scan(&dl.TaskID, &dl.Reason, &dl.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		dl.FailedAt = dl.FailedAt.UTC()
		letters = append(letters, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}
	return letters, nil
}

// RemoveDeadLetter removes the entry for id.
func (q *Queue) RemoveDeadLetter(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx, `DELETE FROM ocr_dead_letters WHERE task_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to remove dead letter %s: %w", id, err)
	}
	return checkRowsAffected(result, fmt.Errorf("%w: dead letter %s", domain.ErrNotFound, id))
}

// DeadLetterCount returns the number of dead-lettered tasks.
func (q *Queue) DeadLetterCount(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, `SELECT count(*) FROM ocr_dead_letters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return n, nil
}
