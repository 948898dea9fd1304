package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the service.
var (
	// ErrInvalidSpec is returned when a submission is malformed. It is rejected
	// before anything is enqueued and is never retried.
	ErrInvalidSpec = errors.New("invalid task spec")

	// ErrNotFound is returned for unknown task ids and for results that were
	// never produced or have expired.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyQueued is returned when enqueueing an id present in any tier.
	ErrAlreadyQueued = errors.New("task already queued")

	// ErrNotQueued is returned when removing an id that is not in any tier.
	ErrNotQueued = errors.New("task not queued")

	// ErrQueueFull is returned when the queue has reached its configured depth.
	ErrQueueFull = errors.New("task queue is full")

	// ErrInvalidTransition is returned when an update violates the lifecycle,
	// including any update to a task in a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrClaimLost is returned when an update carries a claim token that no
	// longer matches the task, e.g. after the stuck task monitor reassigned it.
	ErrClaimLost = fmt.Errorf("%w: claim lost", ErrInvalidTransition)

	// ErrInvalidUpdate is returned for out-of-range progress or retry counts.
	ErrInvalidUpdate = errors.New("invalid task update")

	// ErrTransient marks a stage failure that may succeed on another attempt.
	ErrTransient = errors.New("transient failure")

	// ErrPermanent marks a stage failure that will fail again on any retry.
	ErrPermanent = errors.New("permanent failure")

	// ErrTaskTimeout is returned when a task runs past its maximum duration.
	ErrTaskTimeout = fmt.Errorf("%w: task exceeded maximum processing duration", ErrTransient)
)

// Transient marks err as retry-eligible. A nil error stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent marks err as not retry-eligible. A nil error stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermanent) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether a stage error must fail the task immediately.
// Errors that carry no marker are treated as transient.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) || errors.Is(err, ErrInvalidSpec)
}
