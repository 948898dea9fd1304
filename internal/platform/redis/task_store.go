package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
)

// maxUpdateAttempts bounds the WATCH/MULTI retry loop in Update.
const maxUpdateAttempts = 16

// putResultScript writes a result only if the task record exists.
var putResultScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
return 1
`)

// TaskStore implements store.TaskStore on Redis.
type TaskStore struct {
	rdb    goredis.UniversalClient
	logger *slog.Logger
	now    func() time.Time
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore on the given client.
func NewTaskStore(rdb goredis.UniversalClient, logger *slog.Logger) *TaskStore {
	return &TaskStore{
		rdb:    rdb,
		logger: logger.With("component", "redis_task_store"),
		now:    time.Now,
	}
}

// Create stores a new QUEUED task and registers it with its batch.
func (s *TaskStore) Create(ctx context.Context, spec domain.TaskSpec) (*domain.Task, error) {
	task, err := domain.NewTask(uuid.NewString(), spec, s.now())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, taskKey(task.ID), data, 0)
		pipe.ZAdd(ctx, queuedKey, goredis.Z{Score: score(task.UpdatedAt), Member: task.ID})
		if task.BatchID != "" {
			pipe.RPush(ctx, batchKey(task.BatchID), task.ID)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to create task", "task_id", task.ID, "error", err)
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

// Get returns the task or domain.ErrNotFound.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	raw, err := s.rdb.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return decodeTask(raw)
}

// Update applies upd under WATCH so that concurrent writers to the same task
// serialize. Lifecycle errors from domain.ApplyUpdate are returned unchanged.
func (s *TaskStore) Update(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error) {
	return s.update(ctx, id, upd, nil)
}

// Complete moves the claimed task to COMPLETED and stores its result in the
// same MULTI. Nothing is written when the claim no longer holds.
func (s *TaskStore) Complete(ctx context.Context, id, claimToken string, result *domain.Result, ttl time.Duration) (*domain.Task, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("result ttl must be positive, got %s", ttl)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return s.update(ctx, id, domain.CompleteUpdate(claimToken), func(pipe goredis.Pipeliner) {
		pipe.Set(ctx, resultKey(id), data, ttl)
	})
}

// update runs the WATCH/MULTI cycle for upd. also adds commands to the
// transaction that commits the new task state.
func (s *TaskStore) update(ctx context.Context, id string, upd domain.TaskUpdate, also func(goredis.Pipeliner)) (*domain.Task, error) {
	key := taskKey(id)
	var updated *domain.Task

	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
		}
		if err != nil {
			return err
		}

		task, err := decodeTask(raw)
		if err != nil {
			return err
		}
		prev := task.Status
		if err := domain.ApplyUpdate(task, upd, s.now()); err != nil {
			return err
		}

		data, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to encode task: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if also != nil {
				also(pipe)
			}
			if task.Status != prev {
				switch task.Status {
				case domain.StatusQueued:
					pipe.ZAdd(ctx, queuedKey, goredis.Z{Score: score(task.UpdatedAt), Member: id})
				case domain.StatusProcessing:
					pipe.ZAdd(ctx, processingKey, goredis.Z{Score: score(*task.StartedAt), Member: id})
				}
				switch prev {
				case domain.StatusQueued:
					pipe.ZRem(ctx, queuedKey, id)
				case domain.StatusProcessing:
					pipe.ZRem(ctx, processingKey, id)
				}
				if task.Status.IsTerminal() {
					pipe.ZAdd(ctx, finishedKey, goredis.Z{Score: score(*task.CompletedAt), Member: id})
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = task
		return nil
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	s.logger.Error("giving up on contended task update", "task_id", id, "attempts", maxUpdateAttempts)
	return nil, fmt.Errorf("update task %s: %w", id, store.ErrConflict)
}

// PutResult stores result with the given time to live.
func (s *TaskStore) PutResult(ctx context.Context, id string, result *domain.Result, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("result ttl must be positive, got %s", ttl)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	ok, err := putResultScript.Run(ctx, s.rdb,
		[]string{taskKey(id), resultKey(id)},
		data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		s.logger.Error("failed to store result", "task_id", id, "error", err)
		return fmt.Errorf("failed to store result for %s: %w", id, err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	return nil
}

// GetResult returns the stored result or domain.ErrNotFound.
func (s *TaskStore) GetResult(ctx context.Context, id string) (*domain.Result, error) {
	raw, err := s.rdb.Get(ctx, resultKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: result %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result %s: %w", id, err)
	}

	var result domain.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result %s: %w", id, err)
	}
	return &result, nil
}

// ListBatch returns the member tasks of a batch. Purged members are skipped.
func (s *TaskStore) ListBatch(ctx context.Context, batchID string) ([]*domain.Task, error) {
	ids, err := s.rdb.LRange(ctx, batchKey(batchID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list batch %s: %w", batchID, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
	}
	return s.getMany(ctx, ids)
}

// ListProcessing returns PROCESSING tasks claimed before startedBefore.
func (s *TaskStore) ListProcessing(ctx context.Context, startedBefore time.Time) ([]*domain.Task, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, processingKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(startedBefore.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list processing tasks: %w", err)
	}

	tasks, err := s.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	processing := tasks[:0]
	for _, t := range tasks {
		if t.Status == domain.StatusProcessing {
			processing = append(processing, t)
		}
	}
	return processing, nil
}

// ListQueued returns QUEUED tasks last updated before updatedBefore.
func (s *TaskStore) ListQueued(ctx context.Context, updatedBefore time.Time) ([]*domain.Task, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, queuedKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(updatedBefore.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list queued tasks: %w", err)
	}

	tasks, err := s.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	queued := tasks[:0]
	for _, t := range tasks {
		if t.Status == domain.StatusQueued {
			queued = append(queued, t)
		}
	}
	return queued, nil
}

// RecordProgress appends entry to the capped progress history of id.
func (s *TaskStore) RecordProgress(ctx context.Context, id string, entry domain.ProgressEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode progress entry: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, progressKey(id), data)
		pipe.LTrim(ctx, progressKey(id), -store.ProgressHistoryLimit, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record progress for %s: %w", id, err)
	}
	return nil
}

// ProgressHistory returns the recorded entries, oldest first.
func (s *TaskStore) ProgressHistory(ctx context.Context, id string) ([]domain.ProgressEntry, error) {
	raws, err := s.rdb.LRange(ctx, progressKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read progress for %s: %w", id, err)
	}
	if len(raws) == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
	}

	entries := make([]domain.ProgressEntry, 0, len(raws))
	for _, raw := range raws {
		var e domain.ProgressEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to decode progress entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteTask removes a task with its result and history.
func (s *TaskStore) DeleteTask(ctx context.Context, id string) error {
	var del *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, taskKey(id))
		pipe.Del(ctx, resultKey(id), progressKey(id))
		pipe.ZRem(ctx, queuedKey, id)
		pipe.ZRem(ctx, processingKey, id)
		pipe.ZRem(ctx, finishedKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	return nil
}

// PurgeCompleted deletes terminal tasks finished before the given time.
func (s *TaskStore) PurgeCompleted(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, finishedKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list finished tasks: %w", err)
	}

	purged := 0
	for _, id := range ids {
		err := s.DeleteTask(ctx, id)
		switch {
		case err == nil:
			purged++
		case errors.Is(err, domain.ErrNotFound):
			s.rdb.ZRem(ctx, finishedKey, id)
		default:
			return purged, err
		}
	}
	return purged, nil
}

func (s *TaskStore) getMany(ctx context.Context, ids []string) ([]*domain.Task, error) {
	if len(ids) == 0 {
		return []*domain.Task{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = taskKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	tasks := make([]*domain.Task, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		task, err := decodeTask([]byte(raw))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func decodeTask(raw []byte) (*domain.Task, error) {
	var task domain.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
