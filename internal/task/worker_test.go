package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/events"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/logger"
)

func TestWorker_CompletesTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	task := h.submit(t, "invoice.png", invoiceText, domain.PriorityNormal)

	processed, err := h.worker().RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	done := h.status(t, task.ID)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Empty(t, done.ClaimToken)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)

	result, err := h.svc.Result(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, result.TaskID)
	assert.Equal(t, invoiceText, result.Text)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, "invoice", result.Categorization.Category)
	assert.Equal(t, "en", result.Categorization.Language)
	assert.Contains(t, result.Metadata["invoice_numbers"], "INV-2026-001")
	assert.Contains(t, result.Metadata["dates"], "2026-01-15")

	assert.Equal(t, []string{"/docs/invoice.png"}, h.files.Cleaned())
}

func TestWorker_ProgressHistoryAndEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	task := h.submit(t, "two-pages.png", invoiceText+"\fPage two", domain.PriorityNormal)

	h.drain(t, h.worker())

	history, err := h.svc.ProgressHistory(ctx, task.ID)
	require.NoError(t, err)
	var progress []int
	for _, e := range history {
		progress = append(progress, e.Progress)
	}
	assert.Equal(t, []int{10, 25, 50, 75, 85, 95, 100}, progress)
	assert.Equal(t, domain.StatusCompleted, history[len(history)-1].Status)

	var processing []int
	var completed *events.TaskEvent
	for _, e := range h.events.Events() {
		switch e.Type {
		case events.EventProcessing:
			processing = append(processing, e.Progress)
		case events.EventCompleted:
			completed = e
		}
	}
	assert.Equal(t, []int{0, 25, 50, 75}, processing)

	require.NotNil(t, completed)
	require.NotNil(t, completed.Result)
	assert.Equal(t, "invoice", completed.Result.Category)
	assert.Equal(t, 2, completed.Result.PageCount)
	assert.Equal(t, 100, completed.Progress)
}

func TestWorker_PriorityOrder(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "low.png", "low", domain.PriorityLow)
	h.submit(t, "normal-1.png", "normal-1", domain.PriorityNormal)
	h.submit(t, "high.png", "high", domain.PriorityHigh)
	h.submit(t, "normal-2.png", "normal-2", domain.PriorityNormal)

	assert.Equal(t, 4, h.drain(t, h.worker()))
	assert.Equal(t, []string{"high", "normal-1", "normal-2", "low"}, h.recognizer.Seen())
}

func TestWorker_TransientFailureRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withMaxRetries(2))
	h.recognizer.failures = []error{
		domain.Transient(errEngineBusy),
		domain.Transient(errEngineBusy),
		domain.Transient(errEngineBusy),
	}
	task := h.submit(t, "a.png", invoiceText, domain.PriorityNormal)

	assert.Equal(t, 2, h.drain(t, h.worker()))
	assert.Equal(t, 2, h.recognizer.Calls(), "a task is attempted at most max_retries times")

	failed := h.status(t, task.ID)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Equal(t, 2, failed.RetryCount)
	assert.Contains(t, failed.Message, "engine busy")

	letters, err := h.svc.DeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, task.ID, letters[0].TaskID)

	types := h.events.Types(task.ID)
	assert.Equal(t, 1, countType(types, events.EventRetrying))
	assert.Equal(t, events.EventFailed, types[len(types)-1])

	_, err = h.svc.Result(ctx, task.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, h.files.Cleaned())
}

func TestWorker_TransientFailureThenSuccess(t *testing.T) {
	h := newHarness(t, withMaxRetries(3))
	h.recognizer.failures = []error{domain.Transient(errEngineBusy)}
	task := h.submit(t, "a.png", invoiceText, domain.PriorityNormal)

	w := h.worker()
	processed, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	requeued := h.status(t, task.ID)
	assert.Equal(t, domain.StatusQueued, requeued.Status)
	assert.Equal(t, 1, requeued.RetryCount)
	assert.Equal(t, 0, requeued.Progress)
	assert.Empty(t, requeued.ClaimToken)

	h.drain(t, w)
	done := h.status(t, task.ID)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 1, done.RetryCount)
}

func TestWorker_UnmarkedErrorsAreTransient(t *testing.T) {
	h := newHarness(t, withMaxRetries(2))
	h.recognizer.failures = []error{errEngineBusy}
	task := h.submit(t, "a.png", invoiceText, domain.PriorityNormal)

	h.drain(t, h.worker())
	done := h.status(t, task.ID)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 1, done.RetryCount)
}

func TestWorker_PermanentFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withMaxRetries(3))
	task := h.submit(t, "scan.png", "corrupt bytes", domain.PriorityNormal)

	assert.Equal(t, 1, h.drain(t, h.worker()))

	failed := h.status(t, task.ID)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Equal(t, 0, failed.RetryCount)
	assert.Contains(t, failed.Message, "corrupt document scan.png")
	assert.Zero(t, h.recognizer.Calls())

	count, err := h.queue.DeadLetterCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var failedEvent *events.TaskEvent
	for _, e := range h.events.Events() {
		if e.Type == events.EventFailed {
			failedEvent = e
		}
	}
	require.NotNil(t, failedEvent)
	assert.Contains(t, failedEvent.Error, "corrupt document")
}

func TestWorker_MissingDocumentIsPermanent(t *testing.T) {
	h := newHarness(t)
	task, err := h.svc.Submit(context.Background(), domain.TaskSpec{FilePath: "/docs/gone.png"})
	require.NoError(t, err)

	h.drain(t, h.worker())

	failed := h.status(t, task.ID)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Equal(t, 0, failed.RetryCount)
}

func TestWorker_UnknownLanguageIsPermanent(t *testing.T) {
	h := newHarness(t)
	h.files.put("/docs/a.png", invoiceText)

	// Admission without a language allowlist lets the hint through; the
	// categorize stage then has no tables for it.
	svc := NewService(h.deps, ServiceConfig{MaxRetries: 2}, logger.Discard())
	task, err := svc.Submit(context.Background(), domain.TaskSpec{
		FilePath:  "/docs/a.png",
		Languages: []string{"xx"},
	})
	require.NoError(t, err)

	h.drain(t, h.worker())

	failed := h.status(t, task.ID)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Equal(t, 0, failed.RetryCount)
	assert.Contains(t, failed.Message, "unknown language")
}

func TestWorker_MaxTaskDuration(t *testing.T) {
	h := newHarness(t, withMaxRetries(2))
	task := h.submit(t, "slow.png", invoiceText, domain.PriorityNormal)

	w := h.worker()
	w.cfg.MaxTaskDuration = 30 * time.Second
	var ticks atomic.Int64
	base := time.Now()
	w.now = func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Minute)
	}

	processed, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	requeued := h.status(t, task.ID)
	assert.Equal(t, domain.StatusQueued, requeued.Status)
	assert.Equal(t, 1, requeued.RetryCount)
	assert.Contains(t, requeued.Message, "maximum processing duration")
}

func TestWorker_ResultExpires(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	task := h.submit(t, "a.png", invoiceText, domain.PriorityNormal)

	h.drain(t, h.worker())

	_, err := h.svc.Result(ctx, task.ID)
	require.NoError(t, err)

	h.mr.FastForward(2 * testWorkerConfig().ResultTTL)

	_, err = h.svc.Result(ctx, task.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.StatusCompleted, h.status(t, task.ID).Status)
}

func TestWorker_ClaimLostAbandonsTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withMaxRetries(3))
	task := h.submit(t, "a.png", invoiceText, domain.PriorityNormal)

	entered, release := h.recognizer.hold()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.worker().RunOnce(ctx)
	}()
	waitFor(t, entered)

	// The monitor decides the worker is gone and requeues the task.
	monitor := NewStuckTaskMonitor(h.deps, time.Minute, time.Hour, logger.Discard())
	monitor.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := monitor.Check(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	release()
	<-done

	// The stale worker's outcome was discarded.
	requeued := h.status(t, task.ID)
	assert.Equal(t, domain.StatusQueued, requeued.Status)
	assert.Equal(t, 1, requeued.RetryCount)
	_, err = h.svc.Result(ctx, task.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The task is queued exactly once and completes on the next attempt.
	h.recognizer.gate = nil
	assert.Equal(t, 1, h.drain(t, h.worker()))
	assert.Equal(t, domain.StatusCompleted, h.status(t, task.ID).Status)
}

func TestWorker_ClaimLostAfterFinalCheckpoint(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		wantStatus domain.Status
	}{
		{"reclaimed task fails", 1, domain.StatusFailed},
		{"reclaimed task is requeued", 3, domain.StatusQueued},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, withMaxRetries(tc.maxRetries))
			task := h.submit(t, "a.png", invoiceText, domain.PriorityNormal)

			// The monitor reclaims the task after the last checkpoint, while the
			// worker is about to store its result.
			monitor := NewStuckTaskMonitor(h.deps, time.Minute, time.Hour, logger.Discard())
			monitor.now = func() time.Time { return time.Now().Add(time.Hour) }
			stale := h.deps
			stale.Store = &checkpointStore{
				TaskStore: h.store,
				at:        progressCategorized,
				onProgress: func() {
					n, err := monitor.Check(ctx)
					require.NoError(t, err)
					require.Equal(t, 1, n)
				},
			}

			processed, err := NewWorker("stale", stale, testWorkerConfig(), logger.Discard()).RunOnce(ctx)
			require.NoError(t, err)
			require.True(t, processed)

			got := h.status(t, task.ID)
			assert.Equal(t, tc.wantStatus, got.Status)
			assert.Equal(t, 1, got.RetryCount)
			_, err = h.store.GetResult(ctx, task.ID)
			assert.ErrorIs(t, err, domain.ErrNotFound, "no result for a reclaimed attempt")
			assert.Empty(t, h.files.Cleaned())

			if tc.wantStatus != domain.StatusQueued {
				return
			}
			assert.Equal(t, 1, h.drain(t, h.worker()))
			assert.Equal(t, domain.StatusCompleted, h.status(t, task.ID).Status)
			result, err := h.store.GetResult(ctx, task.ID)
			require.NoError(t, err)
			assert.Equal(t, task.ID, result.TaskID)
		})
	}
}

func TestWorker_DropsEntriesForCancelledTasks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	task := h.submit(t, "a.png", invoiceText, domain.PriorityNormal)

	// Simulate a stale queue entry for a task that can no longer be claimed.
	_, err := h.svc.Cancel(ctx, task.ID)
	require.NoError(t, err)
	require.NoError(t, h.queue.Requeue(ctx, task.ID, domain.PriorityNormal))

	processed, err := h.worker().RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, domain.StatusCancelled, h.status(t, task.ID).Status)
	assert.Zero(t, h.recognizer.Calls())
}

func TestWorker_RunStopsWhenIdleAndCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		h.worker().Run(ctx)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
