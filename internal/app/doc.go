// Package app assembles configured components for the server and worker
// commands: the task store backend, the event emitter with its webhook
// notifier, the recognition pipeline and the worker runtime.
package app
