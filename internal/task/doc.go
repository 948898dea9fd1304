// Package task runs the OCR task lifecycle on top of a shared task store and
// priority queue: admission and queries (Service), processing (Worker and
// Pool), recovery of tasks whose worker died (StuckTaskMonitor) and
// retention (Janitor).
//
// Any number of worker processes may share one store and queue. A task is
// claimed by moving it to PROCESSING under a fresh claim token; every later
// write by the worker carries that token, so a worker that lost its claim to
// the monitor can never overwrite the task again.
package task
