package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/logger"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
)

// TaskStore implements store.TaskStore on PostgreSQL.
type TaskStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore on db.
func NewTaskStore(db *sql.DB, logger *slog.Logger) *TaskStore {
	return &TaskStore{
		db:     db,
		logger: logger.With("component", "postgres_task_store"),
		now:    time.Now,
	}
}

// Create inserts a new QUEUED task.
func (s *TaskStore) Create(ctx context.Context, spec domain.TaskSpec) (*domain.Task, error) {
	task, err := domain.NewTask(uuid.NewString(), spec, s.now())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ocr_tasks (id, status, priority, batch_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, task.ID, string(task.Status), string(task.Priority), nullString(task.BatchID), data, task.CreatedAt)
	if IsUniqueViolation(err) {
		return nil, fmt.Errorf("%w: task %s already exists", store.ErrConflict, task.ID)
	}
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create task",
			"task_id", task.ID,
			"error", err)
		return nil, fmt.Errorf("failed to create task: %w", MapError(err))
	}
	return task, nil
}

// Get returns the task or domain.ErrNotFound.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	return getTask(ctx, s.db, id, false)
}

// Update locks the task row, applies upd and writes the result back in one
// transaction.
func (s *TaskStore) Update(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error) {
	return s.update(ctx, id, upd, nil)
}

// Complete moves the claimed task to COMPLETED and inserts its result in the
// same transaction. Nothing is written when the claim no longer holds.
func (s *TaskStore) Complete(ctx context.Context, id, claimToken string, result *domain.Result, ttl time.Duration) (*domain.Task, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("result ttl must be positive, got %s", ttl)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return s.update(ctx, id, domain.CompleteUpdate(claimToken), func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ocr_results (task_id, data, expires_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (task_id) DO UPDATE
			SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at
		`, id, data, s.now().UTC().Add(ttl))
		if err != nil {
			return fmt.Errorf("failed to store result for %s: %w", id, MapError(err))
		}
		return nil
	})
}

// update locks the row, applies upd and runs also in the same transaction.
func (s *TaskStore) update(
	ctx context.Context,
	id string,
	upd domain.TaskUpdate,
	also func(ctx context.Context, tx *sql.Tx) error,
) (*domain.Task, error) {
	var updated *domain.Task

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		task, err := getTask(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := domain.ApplyUpdate(task, upd, s.now()); err != nil {
			return err
		}

		data, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to encode task: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE ocr_tasks
			SET status = $2, data = $3, started_at = $4, completed_at = $5
			WHERE id = $1
		`, id, string(task.Status), data, task.StartedAt, task.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to update task %s: %w", id, MapError(err))
		}
		if also != nil {
			if err := also(ctx, tx); err != nil {
				return err
			}
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PutResult upserts the result of a task with an expiry time.
func (s *TaskStore) PutResult(ctx context.Context, id string, result *domain.Result, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("result ttl must be positive, got %s", ttl)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ocr_results (task_id, data, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id) DO UPDATE
		SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at
	`, id, data, s.now().UTC().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to store result for %s: %w", id, MapError(err))
	}
	return nil
}

// GetResult returns an unexpired result or domain.ErrNotFound.
func (s *TaskStore) GetResult(ctx context.Context, id string) (*domain.Result, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM ocr_results WHERE task_id = $1 AND expires_at > $2
	`, id, s.now().UTC()).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("failed to get result %s: %w", id, MapError(err))
	}

	var result domain.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result %s: %w", id, err)
	}
	return &result, nil
}

// ListBatch returns the member tasks of a batch in creation order.
func (s *TaskStore) ListBatch(ctx context.Context, batchID string) ([]*domain.Task, error) {
	tasks, err := s.query(ctx, `
		SELECT data FROM ocr_tasks WHERE batch_id = $1 ORDER BY seq
	`, batchID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
	}
	return tasks, nil
}

// ListProcessing returns PROCESSING tasks claimed before startedBefore.
func (s *TaskStore) ListProcessing(ctx context.Context, startedBefore time.Time) ([]*domain.Task, error) {
	return s.query(ctx, `
		SELECT data FROM ocr_tasks
		WHERE status = 'processing' AND started_at < $1
		ORDER BY started_at
	`, startedBefore.UTC())
}

// ListQueued returns QUEUED tasks last updated before updatedBefore.
func (s *TaskStore) ListQueued(ctx context.Context, updatedBefore time.Time) ([]*domain.Task, error) {
	return s.query(ctx, `
		SELECT data FROM ocr_tasks
		WHERE status = 'queued' AND (data->>'updated_at')::timestamptz < $1
		ORDER BY seq
	`, updatedBefore.UTC())
}

// RecordProgress appends entry and trims the history to the newest
// store.ProgressHistoryLimit rows.
func (s *TaskStore) RecordProgress(ctx context.Context, id string, entry domain.ProgressEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode progress entry: %w", err)
	}

	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ocr_task_progress (task_id, data) VALUES ($1, $2)
		`, id, data); err != nil {
			return fmt.Errorf("failed to record progress for %s: %w", id, MapError(err))
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM ocr_task_progress
			WHERE task_id = $1 AND id NOT IN (
				SELECT id FROM ocr_task_progress
				WHERE task_id = $1
				ORDER BY id DESC
				LIMIT $2
			)
		`, id, store.ProgressHistoryLimit); err != nil {
			return fmt.Errorf("failed to trim progress for %s: %w", id, err)
		}
		return nil
	})
}

// ProgressHistory returns the recorded entries, oldest first.
func (s *TaskStore) ProgressHistory(ctx context.Context, id string) ([]domain.ProgressEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM ocr_task_progress WHERE task_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress for %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.ProgressEntry
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan progress entry: %w", err)
		}
		var e domain.ProgressEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("failed to decode progress entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating progress rows: %w", err)
	}

	if len(entries) == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return []domain.ProgressEntry{}, nil
	}
	return entries, nil
}

// DeleteTask removes a task; results and history go with it by cascade.
func (s *TaskStore) DeleteTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ocr_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return checkRowsAffected(result, fmt.Errorf("%w: task %s", domain.ErrNotFound, id))
}

// PurgeCompleted deletes terminal tasks finished before the given time along
// with every expired result.
func (s *TaskStore) PurgeCompleted(ctx context.Context, before time.Time) (int, error) {
	var purged int64

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM ocr_tasks
			WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < $1
		`, before.UTC())
		if err != nil {
			return fmt.Errorf("failed to purge finished tasks: %w", err)
		}
		if purged, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM ocr_results WHERE expires_at <= $1
		`, s.now().UTC()); err != nil {
			return fmt.Errorf("failed to purge expired results: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(purged), nil
}

func (s *TaskStore) query(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []*domain.Task{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		task, err := decodeTask(data)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

func getTask(ctx context.Context, db store.DBTX, id string, forUpdate bool) (*domain.Task, error) {
	query := `SELECT data FROM ocr_tasks WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var data []byte
	err := db.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return decodeTask(data)
}

func decodeTask(data []byte) (*domain.Task, error) {
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
