package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/events"
	"github.com/private-doc-vault/docvault-ocr-service/internal/metrics"
	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
	"github.com/private-doc-vault/docvault-ocr-service/internal/redact"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
)

// Stage progress checkpoints. Recognition advances linearly from
// progressConverted to progressRecognized as pages finish.
const (
	progressLoaded      = 10
	progressConverted   = 25
	progressRecognized  = 75
	progressExtracted   = 85
	progressCategorized = 95
)

// milestones are the progress values that produce a processing event.
var milestones = []int{25, 50, 75}

// WorkerConfig holds the settings of a single worker.
type WorkerConfig struct {
	// PollInterval is how long an idle worker waits before polling again.
	PollInterval time.Duration

	// MaxTaskDuration bounds one processing attempt. Zero disables the check.
	MaxTaskDuration time.Duration

	// ResultTTL is how long a result is kept after completion.
	ResultTTL time.Duration
}

// DefaultWorkerConfig returns a WorkerConfig with reasonable defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:    time.Second,
		MaxTaskDuration: 10 * time.Minute,
		ResultTTL:       24 * time.Hour,
	}
}

// Worker claims tasks from the queue and runs them through the processor.
// Workers share nothing in process; any number may run against one store.
type Worker struct {
	id        string
	store     store.TaskStore
	queue     store.PriorityQueue
	processor Processor
	files     FileStore
	emitter   events.EventEmitter
	metrics   *metrics.Metrics
	cfg       WorkerConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewWorker creates a Worker.
func NewWorker(id string, deps Dependencies, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWorkerConfig().PollInterval
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = DefaultWorkerConfig().ResultTTL
	}
	return &Worker{
		id:        id,
		store:     deps.Store,
		queue:     deps.Queue,
		processor: deps.Processor,
		files:     deps.Files,
		emitter:   deps.Events,
		metrics:   deps.Metrics,
		cfg:       cfg,
		logger:    logger.With("component", "worker", "worker_id", id),
		now:       time.Now,
	}
}

// ID returns the worker's identifier.
func (w *Worker) ID() string { return w.id }

// Run claims and processes tasks until ctx is cancelled. Cancellation is
// observed only between tasks: a task that was claimed is processed to an
// outcome before Run returns.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Debug("starting worker")
	defer w.logger.Debug("stopping worker")

	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error("failed to poll queue", "error", err)
		}
		if processed {
			continue
		}

		timer := time.NewTimer(w.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce dequeues at most one task and processes it. It reports whether a
// task was dequeued.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	entry, ok, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to dequeue: %w", err)
	}
	if !ok {
		return false, nil
	}

	// The claim boundary has passed; shutdown no longer interrupts the task.
	w.process(context.WithoutCancel(ctx), entry)
	return true, nil
}

func (w *Worker) process(ctx context.Context, entry store.Entry) {
	log := w.logger.With("task_id", entry.TaskID, "priority", entry.Priority)

	token := uuid.NewString()
	t, err := w.store.Update(ctx, entry.TaskID, domain.ClaimUpdate(token))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Warn("dropping queue entry for unknown task")
		return
	case errors.Is(err, domain.ErrInvalidTransition):
		log.Warn("dropping queue entry, task is not claimable", "error", err)
		return
	case err != nil:
		log.Error("failed to claim task, returning it to the queue", "error", err)
		if rqErr := requeue(ctx, w.queue, entry.TaskID, entry.Priority); rqErr != nil {
			log.Error("failed to return task to the queue", "error", rqErr)
		}
		return
	}

	log = log.With("document_id", t.DocumentID, "attempt", t.RetryCount+1)
	log.Info("processing task")
	w.metrics.TaskStarted()
	emit(ctx, w.emitter, log, events.NewTaskEvent(events.EventProcessing, t))

	start := w.now()
	run := &attempt{worker: w, task: t, token: token, start: start, log: log}
	result, err := run.execute(ctx)
	if err == nil {
		err = w.complete(ctx, run, result)
		if err == nil {
			return
		}
	}
	w.fail(ctx, run, err)
}

func (w *Worker) complete(ctx context.Context, run *attempt, result *domain.Result) error {
	done, err := w.store.Complete(ctx, run.task.ID, run.token, result, w.cfg.ResultTTL)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	run.record(ctx, done, "Processing completed")

	if err := w.files.Cleanup(ctx, done.FilePath); err != nil {
		run.log.Warn("failed to clean up task files", "error", err)
	}

	elapsed := w.now().Sub(run.start)
	w.metrics.TaskCompleted(elapsed)

	event := events.NewTaskEvent(events.EventCompleted, done)
	event.Result = result.Summary()
	emit(ctx, w.emitter, run.log, event)

	run.log.Info("task completed",
		"category", result.Categorization.Category,
		"pages", len(result.Pages),
		"duration_ms", elapsed.Milliseconds())
	return nil
}

// fail settles a failed attempt: requeue while retries remain, otherwise
// fail and dead-letter the task. A lost claim means another party already
// settled it.
func (w *Worker) fail(ctx context.Context, run *attempt, cause error) {
	log := run.log
	elapsed := w.now().Sub(run.start)

	// A lost claim or a task settled by the stuck task monitor: the outcome
	// of this attempt no longer counts.
	if errors.Is(cause, domain.ErrInvalidTransition) {
		log.Warn("claim lost, abandoning task", "error", cause)
		w.metrics.TaskAbandoned()
		return
	}

	msg := redact.Message(cause)
	status, retryCount := domain.StatusFailed, run.task.RetryCount
	reason := metrics.ReasonPermanent
	if !domain.IsPermanent(cause) {
		status, retryCount = domain.NextAfterTransientFailure(run.task)
		reason = metrics.ReasonExhausted
	}

	if status == domain.StatusQueued {
		queued, err := w.store.Update(ctx, run.task.ID, domain.RequeueUpdate(run.token, retryCount, msg))
		if err != nil {
			w.abandon(log, err)
			return
		}
		if err := requeue(ctx, w.queue, queued.ID, queued.Priority); err != nil {
			log.Error("task is queued but could not be returned to the queue, leaving it to the stuck task monitor", "error", err)
		}
		w.metrics.TaskRetried(elapsed)
		emit(ctx, w.emitter, log, events.NewTaskEvent(events.EventRetrying, queued))
		log.Warn("task failed, retrying",
			"retry_count", retryCount,
			"max_retries", queued.MaxRetries,
			"error", msg)
		return
	}

	failed, err := w.store.Update(ctx, run.task.ID, domain.FailUpdate(run.token, retryCount, msg))
	if err != nil {
		w.abandon(log, err)
		return
	}
	if err := deadLetter(ctx, w.queue, failed.ID, msg); err != nil {
		log.Error("failed to dead-letter task", "error", err)
	} else {
		w.metrics.TaskDeadLettered()
	}
	w.metrics.TaskFailed(reason, elapsed)

	event := events.NewTaskEvent(events.EventFailed, failed)
	event.Error = msg
	emit(ctx, w.emitter, log, event)
	log.Error("task failed",
		"reason", reason,
		"retry_count", retryCount,
		"error", msg)
}

func (w *Worker) abandon(log *slog.Logger, err error) {
	if errors.Is(err, domain.ErrInvalidTransition) {
		log.Warn("claim lost, abandoning task", "error", err)
	} else {
		log.Error("failed to record task outcome, leaving it to the stuck task monitor", "error", err)
	}
	w.metrics.TaskAbandoned()
}

// attempt is one processing episode of a claimed task.
type attempt struct {
	worker   *Worker
	task     *domain.Task
	token    string
	start    time.Time
	log      *slog.Logger
	reported int
}

func (a *attempt) execute(ctx context.Context) (*domain.Result, error) {
	w := a.worker
	t := a.task

	data, err := w.files.Open(ctx, t.FilePath)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if err := a.progress(ctx, progressLoaded, "Document loaded"); err != nil {
		return nil, err
	}

	if err := a.checkDeadline(); err != nil {
		return nil, err
	}
	pages, err := w.processor.Convert(ctx, filepath.Base(t.FilePath), data)
	if err != nil {
		return nil, err
	}
	if err := a.progress(ctx, progressConverted, fmt.Sprintf("Converted %d page(s)", len(pages))); err != nil {
		return nil, err
	}

	if err := a.checkDeadline(); err != nil {
		return nil, err
	}
	languages := w.processor.Languages(t.Languages)

	// Progress errors inside the callback are kept and returned after
	// recognition; the first one wins.
	var progressErr error
	pageResults, err := w.processor.RecognizePages(ctx, pages, languages, func(done, total int) {
		if progressErr != nil {
			return
		}
		p := progressConverted + (progressRecognized-progressConverted)*done/total
		progressErr = a.progress(ctx, p, fmt.Sprintf("Recognized page %d of %d", done, total))
	})
	if err != nil {
		return nil, err
	}
	if progressErr != nil {
		return nil, progressErr
	}
	text, confidence := pipeline.MergePages(pageResults)

	if err := a.checkDeadline(); err != nil {
		return nil, err
	}
	metadata, err := w.processor.ExtractMetadata(ctx, text, languages)
	if err != nil {
		return nil, err
	}
	if err := a.progress(ctx, progressExtracted, "Metadata extracted"); err != nil {
		return nil, err
	}

	if err := a.checkDeadline(); err != nil {
		return nil, err
	}
	categorization, err := w.processor.Categorize(ctx, text, languages)
	if err != nil {
		return nil, err
	}
	if err := a.progress(ctx, progressCategorized, "Document categorized"); err != nil {
		return nil, err
	}

	now := w.now()
	return &domain.Result{
		TaskID:           t.ID,
		Text:             text,
		Confidence:       confidence,
		Pages:            pageResults,
		Categorization:   categorization,
		Metadata:         metadata,
		ProcessingTimeMs: now.Sub(a.start).Milliseconds(),
		CreatedAt:        now.UTC(),
	}, nil
}

// progress writes a checkpoint under the claim token, records it in the
// history and emits an event for every milestone crossed.
func (a *attempt) progress(ctx context.Context, p int, message string) error {
	w := a.worker
	t, err := w.store.Update(ctx, a.task.ID, domain.ProgressUpdate(a.token, p, message))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return err
		}
		return domain.Transient(fmt.Errorf("record progress: %w", err))
	}
	a.task = t
	a.record(ctx, t, message)

	for _, m := range milestones {
		if a.reported < m && t.Progress >= m {
			event := events.NewTaskEvent(events.EventProcessing, t)
			event.Progress = m
			emit(ctx, w.emitter, a.log, event)
		}
	}
	a.reported = max(a.reported, t.Progress)
	return nil
}

// record appends the task's current state to its progress history. History
// is informational, so failures are only logged.
func (a *attempt) record(ctx context.Context, t *domain.Task, message string) {
	entry := domain.ProgressEntry{
		Progress:  t.Progress,
		Message:   message,
		Status:    t.Status,
		Timestamp: a.worker.now().UTC(),
	}
	if err := a.worker.store.RecordProgress(ctx, t.ID, entry); err != nil {
		a.log.Warn("failed to record progress history", "progress", t.Progress, "error", err)
	}
}

func (a *attempt) checkDeadline() error {
	limit := a.worker.cfg.MaxTaskDuration
	if limit <= 0 {
		return nil
	}
	if elapsed := a.worker.now().Sub(a.start); elapsed > limit {
		return fmt.Errorf("%w after %s", domain.ErrTaskTimeout, elapsed.Round(time.Millisecond))
	}
	return nil
}
