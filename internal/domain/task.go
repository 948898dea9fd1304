package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the queue tier a task is admitted to.
type Priority string

// Possible priority values
const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Priorities lists the tiers in dequeue order.
var Priorities = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

// IsValid reports whether p is one of the three tiers.
func (p Priority) IsValid() bool {
	return p.Rank() >= 0
}

// Rank returns the dequeue position of the tier, or -1 for unknown tiers.
func (p Priority) Rank() int {
	for i, tier := range Priorities {
		if p == tier {
			return i
		}
	}
	return -1
}

// ParsePriority parses a tier name. An empty string yields PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidSpec, s)
	}
	return p, nil
}

// Status represents the lifecycle state of a task.
type Status string

// Possible status values
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TaskSpec is a validated submission. MaxRetries is filled in by the
// admission path from configuration and snapshotted onto the task.
type TaskSpec struct {
	DocumentID  string   `json:"document_id"`
	FilePath    string   `json:"file_path"`
	Languages   []string `json:"languages,omitempty"`
	Priority    Priority `json:"priority"`
	CallbackURL string   `json:"callback_url,omitempty"`
	BatchID     string   `json:"batch_id,omitempty"`
	MaxRetries  int      `json:"max_retries"`
}

// Validate checks the spec before it is stored.
func (s TaskSpec) Validate() error {
	if strings.TrimSpace(s.FilePath) == "" {
		return fmt.Errorf("%w: file path is required", ErrInvalidSpec)
	}
	if !s.Priority.IsValid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidSpec, s.Priority)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidSpec)
	}
	return nil
}

// Task is a single document OCR request tracked through its lifecycle.
type Task struct {
	ID          string     `json:"id"`
	DocumentID  string     `json:"document_id,omitempty"`
	FilePath    string     `json:"file_path"`
	Languages   []string   `json:"languages,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	BatchID     string     `json:"batch_id,omitempty"`
	CallbackURL string     `json:"callback_url,omitempty"`
	ClaimToken  string     `json:"claim_token,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTask creates a QUEUED task with progress 0 from a validated spec.
func NewTask(id string, spec TaskSpec, now time.Time) (*Task, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty task id", ErrInvalidSpec)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	now = now.UTC()
	return &Task{
		ID:          id,
		DocumentID:  spec.DocumentID,
		FilePath:    spec.FilePath,
		Languages:   append([]string(nil), spec.Languages...),
		Priority:    spec.Priority,
		Status:      StatusQueued,
		MaxRetries:  spec.MaxRetries,
		BatchID:     spec.BatchID,
		CallbackURL: spec.CallbackURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Spec rebuilds the submission a task was created from.
func (t *Task) Spec() TaskSpec {
	return TaskSpec{
		DocumentID:  t.DocumentID,
		FilePath:    t.FilePath,
		Languages:   append([]string(nil), t.Languages...),
		Priority:    t.Priority,
		CallbackURL: t.CallbackURL,
		BatchID:     t.BatchID,
		MaxRetries:  t.MaxRetries,
	}
}

// ProgressEntry is one step of a task's progress history.
type ProgressEntry struct {
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
