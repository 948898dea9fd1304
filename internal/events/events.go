package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
)

// EventType names a lifecycle event.
type EventType string

// Lifecycle event types
const (
	EventQueued     EventType = "task.queued"
	EventProcessing EventType = "task.processing"
	EventRetrying   EventType = "task.retrying"
	EventCompleted  EventType = "task.completed"
	EventFailed     EventType = "task.failed"
	EventCancelled  EventType = "task.cancelled"
)

// TaskEvent is a snapshot of a task at a lifecycle point. Receivers may see
// the same event more than once and should deduplicate on TaskID, Status and
// Timestamp.
type TaskEvent struct {
	ID          uuid.UUID             `json:"event_id"`
	Type        EventType             `json:"event"`
	TaskID      string                `json:"task_id"`
	DocumentID  string                `json:"document_id,omitempty"`
	BatchID     string                `json:"batch_id,omitempty"`
	Status      domain.Status         `json:"status"`
	Progress    int                   `json:"progress"`
	Message     string                `json:"message,omitempty"`
	Result      *domain.ResultSummary `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
	CallbackURL string                `json:"-"`
}

// NewTaskEvent creates an event of the given type from the current state of
// task.
func NewTaskEvent(eventType EventType, task *domain.Task) *TaskEvent {
	return &TaskEvent{
		ID:          uuid.New(),
		Type:        eventType,
		TaskID:      task.ID,
		DocumentID:  task.DocumentID,
		BatchID:     task.BatchID,
		Status:      task.Status,
		Progress:    task.Progress,
		Message:     task.Message,
		Timestamp:   time.Now().UTC(),
		CallbackURL: task.CallbackURL,
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event. Handlers must not block on
	// slow work; the emitter calls them inline.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}
