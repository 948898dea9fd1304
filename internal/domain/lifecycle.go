package domain

import (
	"fmt"
	"time"
)

// transitions lists the allowed status changes. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusQueued, StatusFailed},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition if from -> to is not allowed.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// TaskUpdate is an atomic partial update of a task. Nil fields are left
// untouched. ExpectClaim, when set, must match the task's current claim token.
type TaskUpdate struct {
	Status      *Status
	Progress    *int
	Message     *string
	RetryCount  *int
	ClaimToken  string
	ExpectClaim string
}

// ClaimUpdate moves a queued task to PROCESSING under the given claim token.
func ClaimUpdate(token string) TaskUpdate {
	status := StatusProcessing
	msg := "Processing started"
	return TaskUpdate{Status: &status, Message: &msg, ClaimToken: token}
}

// ProgressUpdate records progress for the claim holder.
func ProgressUpdate(token string, progress int, message string) TaskUpdate {
	return TaskUpdate{Progress: &progress, Message: &message, ExpectClaim: token}
}

// CompleteUpdate moves a processing task to COMPLETED.
func CompleteUpdate(token string) TaskUpdate {
	status := StatusCompleted
	msg := "Processing completed"
	return TaskUpdate{Status: &status, Message: &msg, ExpectClaim: token}
}

// RequeueUpdate returns a processing task to QUEUED after a transient failure.
func RequeueUpdate(token string, retryCount int, message string) TaskUpdate {
	status := StatusQueued
	return TaskUpdate{Status: &status, RetryCount: &retryCount, Message: &message, ExpectClaim: token}
}

// FailUpdate moves a processing task to FAILED.
func FailUpdate(token string, retryCount int, message string) TaskUpdate {
	status := StatusFailed
	return TaskUpdate{Status: &status, RetryCount: &retryCount, Message: &message, ExpectClaim: token}
}

// CancelUpdate moves a queued task to CANCELLED.
func CancelUpdate() TaskUpdate {
	status := StatusCancelled
	msg := "Cancelled"
	return TaskUpdate{Status: &status, Message: &msg}
}

// ApplyUpdate validates upd against the lifecycle and applies it to t. On
// error t is left unchanged.
//
// Entering PROCESSING resets progress to 0 and installs the new claim token.
// Within a PROCESSING episode progress never decreases; a lower value is
// ignored. Leaving PROCESSING clears the claim.
func ApplyUpdate(t *Task, upd TaskUpdate, now time.Time) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, t.ID, t.Status)
	}
	if upd.ExpectClaim != "" && upd.ExpectClaim != t.ClaimToken {
		return fmt.Errorf("%w: task %s", ErrClaimLost, t.ID)
	}

	next := *t
	now = now.UTC()

	if upd.Status != nil {
		if err := ValidateTransition(t.Status, *upd.Status); err != nil {
			return err
		}
		next.Status = *upd.Status

		switch {
		case next.Status == StatusProcessing:
			if upd.ClaimToken == "" {
				return fmt.Errorf("%w: claim requires a token", ErrInvalidUpdate)
			}
			next.ClaimToken = upd.ClaimToken
			next.Progress = 0
			next.StartedAt = &now
		case next.Status == StatusQueued:
			next.ClaimToken = ""
			next.Progress = 0
			next.StartedAt = nil
		case next.Status.IsTerminal():
			next.ClaimToken = ""
			next.CompletedAt = &now
			if next.Status == StatusCompleted {
				next.Progress = 100
			}
		}
	}

	if upd.Progress != nil {
		p := *upd.Progress
		if p < 0 || p > 100 {
			return fmt.Errorf("%w: progress %d out of range", ErrInvalidUpdate, p)
		}
		if next.Status != StatusProcessing {
			return fmt.Errorf("%w: progress update while %s", ErrInvalidTransition, next.Status)
		}
		if p > next.Progress {
			next.Progress = p
		}
	}

	if upd.RetryCount != nil {
		rc := *upd.RetryCount
		if rc < 0 || rc > next.MaxRetries {
			return fmt.Errorf("%w: retry count %d outside 0..%d", ErrInvalidUpdate, rc, next.MaxRetries)
		}
		next.RetryCount = rc
	}

	if upd.Message != nil {
		next.Message = *upd.Message
	}

	next.UpdatedAt = now
	*t = next
	return nil
}

// NextAfterTransientFailure applies the retry policy to a task that failed
// transiently while PROCESSING. The retry count is incremented up to
// MaxRetries; the failure that reaches MaxRetries fails the task, so a task
// is attempted at most MaxRetries times (and once when MaxRetries is 0).
func NextAfterTransientFailure(t *Task) (Status, int) {
	rc := t.RetryCount
	if rc < t.MaxRetries {
		rc++
	}
	if rc >= t.MaxRetries {
		return StatusFailed, rc
	}
	return StatusQueued, rc
}
