package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/events"
	"github.com/private-doc-vault/docvault-ocr-service/internal/metrics"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
)

// stuckMessage is recorded on tasks reclaimed by the monitor.
const stuckMessage = "Reset after exceeding maximum processing duration"

// defaultOrphanAge is how long a QUEUED task may sit outside every tier
// before the monitor puts it back.
const defaultOrphanAge = time.Minute

// StuckTaskMonitor returns tasks whose worker stopped reporting to the queue.
// A task PROCESSING for longer than the maximum duration counts as a
// transient failure of its current attempt. It also restores QUEUED tasks
// that were left out of their tier by a failed queue write.
type StuckTaskMonitor struct {
	store          store.TaskStore
	queue          store.PriorityQueue
	emitter        events.EventEmitter
	metrics        *metrics.Metrics
	maxDuration    time.Duration
	interval       time.Duration
	orphanAge      time.Duration
	alertThreshold int
	logger         *slog.Logger
	now            func() time.Time
}

// MonitorOption configures a StuckTaskMonitor.
type MonitorOption func(*StuckTaskMonitor)

// WithAlertThreshold makes Check log a warning when more than n tasks are
// stuck at once. Zero disables the alert.
func WithAlertThreshold(n int) MonitorOption {
	return func(m *StuckTaskMonitor) { m.alertThreshold = n }
}

// WithOrphanAge sets how long a QUEUED task must have gone without an update
// before RecoverOrphans considers it.
func WithOrphanAge(d time.Duration) MonitorOption {
	return func(m *StuckTaskMonitor) {
		if d > 0 {
			m.orphanAge = d
		}
	}
}

// NewStuckTaskMonitor creates a monitor that checks every interval.
func NewStuckTaskMonitor(deps Dependencies, maxDuration, interval time.Duration, logger *slog.Logger, opts ...MonitorOption) *StuckTaskMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	m := &StuckTaskMonitor{
		store:       deps.Store,
		queue:       deps.Queue,
		emitter:     deps.Events,
		metrics:     deps.Metrics,
		maxDuration: maxDuration,
		interval:    interval,
		orphanAge:   defaultOrphanAge,
		logger:      logger.With("component", "stuck_task_monitor"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run checks periodically until ctx is cancelled.
func (m *StuckTaskMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				m.logger.Error("failed to check for stuck tasks", "error", err)
			}
			if _, err := m.RecoverOrphans(ctx); err != nil {
				m.logger.Error("failed to check for orphaned tasks", "error", err)
			}
		}
	}
}

// Check reclaims every stuck task once and returns how many it reclaimed. It
// also refreshes the queue depth gauges.
func (m *StuckTaskMonitor) Check(ctx context.Context) (int, error) {
	m.refreshGauges(ctx)

	stuck, err := m.store.ListProcessing(ctx, m.now().Add(-m.maxDuration))
	if err != nil {
		return 0, fmt.Errorf("failed to list processing tasks: %w", err)
	}
	if len(stuck) == 0 {
		return 0, nil
	}
	m.logger.Info("found stuck tasks", "count", len(stuck))
	if m.alertThreshold > 0 && len(stuck) > m.alertThreshold {
		m.logger.Warn("high stuck task count, check worker health and backend connectivity",
			"count", len(stuck),
			"threshold", m.alertThreshold,
			"max_duration", m.maxDuration)
	}

	reclaimed := 0
	for _, t := range stuck {
		if err := m.reclaim(ctx, t); err != nil {
			// A worker that finished in the meantime holds the outcome.
			if errors.Is(err, domain.ErrInvalidTransition) {
				m.logger.Debug("stuck task settled concurrently", "task_id", t.ID, "error", err)
				continue
			}
			m.logger.Error("failed to reclaim stuck task", "task_id", t.ID, "error", err)
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}

// RecoverOrphans puts QUEUED tasks that no tier holds back at the tail of
// their tier and returns how many it restored. Tasks still in a tier are
// left as they are.
func (m *StuckTaskMonitor) RecoverOrphans(ctx context.Context) (int, error) {
	queued, err := m.store.ListQueued(ctx, m.now().Add(-m.orphanAge))
	if err != nil {
		return 0, fmt.Errorf("failed to list queued tasks: %w", err)
	}

	restored := 0
	for _, t := range queued {
		err := m.queue.Requeue(ctx, t.ID, t.Priority)
		switch {
		case errors.Is(err, domain.ErrAlreadyQueued):
		case err != nil:
			m.logger.Error("failed to restore orphaned task", "task_id", t.ID, "error", err)
		default:
			restored++
			m.logger.Warn("restored orphaned queued task",
				"task_id", t.ID,
				"priority", t.Priority,
				"updated_at", t.UpdatedAt)
		}
	}
	return restored, nil
}

func (m *StuckTaskMonitor) reclaim(ctx context.Context, t *domain.Task) error {
	log := m.logger.With("task_id", t.ID, "started_at", t.StartedAt)
	status, retryCount := domain.NextAfterTransientFailure(t)

	if status == domain.StatusQueued {
		queued, err := m.store.Update(ctx, t.ID, domain.RequeueUpdate(t.ClaimToken, retryCount, stuckMessage))
		if err != nil {
			return err
		}
		if err := requeue(ctx, m.queue, queued.ID, queued.Priority); err != nil {
			return fmt.Errorf("task is queued but could not be returned to the queue: %w", err)
		}
		m.metrics.TaskRecovered()
		emit(ctx, m.emitter, log, events.NewTaskEvent(events.EventRetrying, queued))
		log.Info("requeued stuck task", "retry_count", retryCount)
		return nil
	}

	failed, err := m.store.Update(ctx, t.ID, domain.FailUpdate(t.ClaimToken, retryCount, stuckMessage))
	if err != nil {
		return err
	}
	if err := deadLetter(ctx, m.queue, failed.ID, stuckMessage); err != nil {
		log.Error("failed to dead-letter task", "error", err)
	} else {
		m.metrics.TaskDeadLettered()
	}
	var elapsed time.Duration
	if t.StartedAt != nil {
		elapsed = m.now().Sub(*t.StartedAt)
	}
	m.metrics.TaskFailed(metrics.ReasonExhausted, elapsed)

	event := events.NewTaskEvent(events.EventFailed, failed)
	event.Error = stuckMessage
	emit(ctx, m.emitter, log, event)
	log.Warn("stuck task failed, retries exhausted", "retry_count", retryCount)
	return nil
}

func (m *StuckTaskMonitor) refreshGauges(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	if depths, err := m.queue.Depths(ctx); err == nil {
		m.metrics.SetQueueDepths(depths)
	} else {
		m.logger.Warn("failed to read queue depths", "error", err)
	}
	if n, err := m.queue.DeadLetterCount(ctx); err == nil {
		m.metrics.SetDeadLetterDepth(n)
	}
}
