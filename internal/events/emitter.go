package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type subscription struct {
	handler EventHandler
	types   map[EventType]bool // nil receives every type
}

func (s subscription) wants(t EventType) bool {
	return s.types == nil || s.types[t]
}

// InMemoryEventEmitter dispatches events to handlers registered in process.
type InMemoryEventEmitter struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)

// NewInMemoryEventEmitter returns an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{logger: logger.With("component", "event_emitter")}
}

// RegisterHandler subscribes handler to the given event types, or to every
// type when none are given.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler, types ...EventType) {
	sub := subscription{handler: handler}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	e.mu.Lock()
	e.subs = append(e.subs, sub)
	n := len(e.subs)
	e.mu.Unlock()
	e.logger.Debug("registered event handler", "handler_count", n, "event_types", types)
}

// EmitEvent calls every handler subscribed to the event's type, in
// registration order. Handlers run inline; a handler that fails or panics
// does not stop delivery to the rest, and the first such error is returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskEvent) error {
	e.mu.RLock()
	subs := e.subs
	e.mu.RUnlock()

	var firstErr error
	delivered := 0
	for i, sub := range subs {
		if !sub.wants(event.Type) {
			continue
		}
		delivered++
		if err := dispatch(ctx, sub.handler, event); err != nil {
			e.logger.Error("event handler failed",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type,
				"task_id", event.TaskID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if delivered == 0 {
		e.logger.Debug("event had no subscribers",
			"event_type", event.Type,
			"task_id", event.TaskID)
	}
	return firstErr
}

func dispatch(ctx context.Context, h EventHandler, event *TaskEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return h.HandleEvent(ctx, event)
}
