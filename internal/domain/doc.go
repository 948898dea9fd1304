// Package domain contains the core entities of the OCR service: tasks, their
// results and the lifecycle rules every store and worker applies to them. It is
// independent of any storage backend or transport.
package domain
