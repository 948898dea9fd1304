package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/events"
	"github.com/private-doc-vault/docvault-ocr-service/internal/metrics"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/logger"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
)

// ServiceConfig holds admission settings.
type ServiceConfig struct {
	// MaxRetries is snapshotted onto every new task.
	MaxRetries int

	// Languages lists the accepted language hints. Empty accepts any.
	Languages []string
}

// QueueStats reports queue depths per tier and the dead-letter count.
type QueueStats struct {
	Depths      map[domain.Priority]int64 `json:"depths"`
	Total       int64                     `json:"total"`
	DeadLetters int64                     `json:"dead_letters"`
}

// Service admits tasks and answers queries about them. It is safe for
// concurrent use and keeps no task state of its own.
type Service struct {
	store     store.TaskStore
	queue     store.PriorityQueue
	emitter   events.EventEmitter
	metrics   *metrics.Metrics
	cfg       ServiceConfig
	languages map[string]bool
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(deps Dependencies, cfg ServiceConfig, logger *slog.Logger) *Service {
	var langs map[string]bool
	if len(cfg.Languages) > 0 {
		langs = make(map[string]bool, len(cfg.Languages))
		for _, l := range cfg.Languages {
			langs[strings.ToLower(l)] = true
		}
	}
	return &Service{
		store:     deps.Store,
		queue:     deps.Queue,
		emitter:   deps.Events,
		metrics:   deps.Metrics,
		cfg:       cfg,
		languages: langs,
		logger:    logger.With("component", "task_service"),
	}
}

// Submit validates spec, stores a QUEUED task and enqueues it. If the queue
// refuses the task (for example domain.ErrQueueFull) the stored task is
// removed again and the error returned.
func (s *Service) Submit(ctx context.Context, spec domain.TaskSpec) (*domain.Task, error) {
	spec, err := s.prepare(spec)
	if err != nil {
		return nil, err
	}
	return s.admit(ctx, spec)
}

// SubmitBatch validates every spec, then admits them under a new batch id.
// Nothing is admitted when any spec is invalid. When admission fails part
// way, the tasks admitted so far are returned with the error.
func (s *Service) SubmitBatch(ctx context.Context, specs []domain.TaskSpec) (string, []*domain.Task, error) {
	if len(specs) == 0 {
		return "", nil, fmt.Errorf("%w: batch is empty", domain.ErrInvalidSpec)
	}

	batchID := uuid.NewString()
	prepared := make([]domain.TaskSpec, len(specs))
	for i, spec := range specs {
		spec.BatchID = batchID
		p, err := s.prepare(spec)
		if err != nil {
			return "", nil, fmt.Errorf("document %d: %w", i, err)
		}
		prepared[i] = p
	}

	tasks := make([]*domain.Task, 0, len(prepared))
	for i, spec := range prepared {
		t, err := s.admit(ctx, spec)
		if err != nil {
			return batchID, tasks, fmt.Errorf("batch %s document %d: %w", batchID, i, err)
		}
		tasks = append(tasks, t)
	}

	s.logger.Info("batch queued", "batch_id", batchID, "tasks", len(tasks))
	return batchID, tasks, nil
}

// Status returns the task or domain.ErrNotFound.
func (s *Service) Status(ctx context.Context, id string) (*domain.Task, error) {
	return s.store.Get(ctx, id)
}

// Result returns the result of a completed task, or domain.ErrNotFound when
// none was produced or it has expired.
func (s *Service) Result(ctx context.Context, id string) (*domain.Result, error) {
	return s.store.GetResult(ctx, id)
}

// ProgressHistory returns the recent progress entries of a task.
func (s *Service) ProgressHistory(ctx context.Context, id string) ([]domain.ProgressEntry, error) {
	return s.store.ProgressHistory(ctx, id)
}

// BatchStatus aggregates the member tasks of a batch.
func (s *Service) BatchStatus(ctx context.Context, batchID string) (*domain.BatchStatus, error) {
	tasks, err := s.store.ListBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return domain.NewBatchStatus(batchID, tasks), nil
}

// Cancel cancels a QUEUED task. A task a worker has already claimed fails
// with domain.ErrNotQueued; a finished task with domain.ErrInvalidTransition.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case t.Status == domain.StatusProcessing:
		return nil, fmt.Errorf("%w: task %s is processing", domain.ErrNotQueued, id)
	case t.Status.IsTerminal():
		return nil, fmt.Errorf("%w: task %s is %s", domain.ErrInvalidTransition, id, t.Status)
	}

	// Removing the id first means no worker can claim it from here on.
	if err := s.queue.RemoveIfQueued(ctx, id); err != nil {
		return nil, err
	}

	cancelled, err := s.store.Update(ctx, id, domain.CancelUpdate())
	if err != nil {
		if rqErr := requeue(context.WithoutCancel(ctx), s.queue, id, t.Priority); rqErr != nil {
			s.logger.Error("failed to restore task after cancel failure",
				"task_id", id,
				"error", rqErr)
		}
		return nil, err
	}

	s.metrics.TaskCancelled()
	emit(ctx, s.emitter, s.logger, events.NewTaskEvent(events.EventCancelled, cancelled))
	logger.FromContextOrDefault(ctx, s.logger).Info("task cancelled", "task_id", id)
	return cancelled, nil
}

// QueueStats reports the current queue depths and refreshes the depth gauges.
func (s *Service) QueueStats(ctx context.Context) (*QueueStats, error) {
	depths, err := s.queue.Depths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue depths: %w", err)
	}
	dead, err := s.queue.DeadLetterCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count dead letters: %w", err)
	}

	stats := &QueueStats{Depths: depths, DeadLetters: dead}
	for _, n := range depths {
		stats.Total += n
	}
	s.metrics.SetQueueDepths(depths)
	s.metrics.SetDeadLetterDepth(dead)
	return stats, nil
}

// DeadLetters lists up to limit dead-lettered tasks, newest first.
func (s *Service) DeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error) {
	return s.queue.DeadLetters(ctx, limit)
}

// RetryDeadLetter resubmits a FAILED task as a new task with the same
// submission and removes it from the dead-letter list.
func (s *Service) RetryDeadLetter(ctx context.Context, id string) (*domain.Task, error) {
	failed, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if failed.Status != domain.StatusFailed {
		return nil, fmt.Errorf("%w: task %s is %s, not failed", domain.ErrInvalidTransition, id, failed.Status)
	}

	retried, err := s.admit(ctx, failed.Spec())
	if err != nil {
		return nil, err
	}

	if err := s.queue.RemoveDeadLetter(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("failed to remove dead letter",
			"task_id", id,
			"error", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("dead letter resubmitted",
		"task_id", id,
		"new_task_id", retried.ID)
	return retried, nil
}

// prepare normalizes a client submission and snapshots the retry policy.
func (s *Service) prepare(spec domain.TaskSpec) (domain.TaskSpec, error) {
	if spec.Priority == "" {
		spec.Priority = domain.PriorityNormal
	}
	spec.MaxRetries = s.cfg.MaxRetries

	langs := make([]string, 0, len(spec.Languages))
	seen := make(map[string]bool, len(spec.Languages))
	for _, l := range spec.Languages {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		if s.languages != nil && !s.languages[l] {
			return spec, fmt.Errorf("%w: unsupported language %q", domain.ErrInvalidSpec, l)
		}
		seen[l] = true
		langs = append(langs, l)
	}
	spec.Languages = langs

	if err := spec.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

func (s *Service) admit(ctx context.Context, spec domain.TaskSpec) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	t, err := s.store.Create(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := s.queue.Enqueue(ctx, t.ID, t.Priority); err != nil {
		// No worker can see the task yet; drop it rather than leave it QUEUED
		// outside the queue.
		if delErr := s.store.DeleteTask(context.WithoutCancel(ctx), t.ID); delErr != nil {
			log.Error("failed to remove unqueued task",
				"task_id", t.ID,
				"error", delErr)
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.metrics.TaskSubmitted(t.Priority)
	emit(ctx, s.emitter, s.logger, events.NewTaskEvent(events.EventQueued, t))
	log.Info("task queued",
		"task_id", t.ID,
		"document_id", t.DocumentID,
		"priority", t.Priority,
		"batch_id", t.BatchID)
	return t, nil
}
