// Package events defines task lifecycle events and the handler and emitter
// interfaces used to publish them.
//
// The task service and workers emit events without knowing who consumes
// them. The webhook notifier is the main handler; metrics and tests register
// their own.
package events
