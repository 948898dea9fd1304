package task

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sethvargo/go-retry"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/events"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
)

// emit publishes event and logs, rather than returns, handler failures: a
// lost notification never changes the outcome of a task.
func emit(ctx context.Context, emitter events.EventEmitter, logger *slog.Logger, event *events.TaskEvent) {
	if emitter == nil {
		return
	}
	if err := emitter.EmitEvent(ctx, event); err != nil {
		logger.Warn("failed to emit event",
			"event_type", event.Type,
			"task_id", event.TaskID,
			"error", err)
	}
}

func queueWriteBackoff() retry.Backoff {
	return retry.WithMaxRetries(requeueAttempts, retry.NewExponential(requeueBackoff))
}

// requeue puts id back at the tail of its tier, retrying transport errors.
// An id that is already queued counts as success.
func requeue(ctx context.Context, q store.PriorityQueue, id string, priority domain.Priority) error {
	return retry.Do(ctx, queueWriteBackoff(), func(ctx context.Context) error {
		err := q.Requeue(ctx, id, priority)
		switch {
		case err == nil, errors.Is(err, domain.ErrAlreadyQueued):
			return nil
		case errors.Is(err, domain.ErrInvalidSpec):
			return err
		default:
			return retry.RetryableError(err)
		}
	})
}

// deadLetter records a FAILED task, retrying transport errors.
func deadLetter(ctx context.Context, q store.PriorityQueue, id, reason string) error {
	return retry.Do(ctx, queueWriteBackoff(), func(ctx context.Context) error {
		if err := q.DeadLetter(ctx, id, reason); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
