package events

import (
	"context"
	"sync"
)

// Recorder is an EventHandler that keeps every event it receives. It is
// safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []*TaskEvent
}

var _ EventHandler = (*Recorder)(nil)

// HandleEvent records event.
func (r *Recorder) HandleEvent(_ context.Context, event *TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []*TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*TaskEvent(nil), r.events...)
}

// Types returns the recorded event types for taskID in arrival order.
func (r *Recorder) Types(taskID string) []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []EventType
	for _, e := range r.events {
		if e.TaskID == taskID {
			types = append(types, e.Type)
		}
	}
	return types
}
