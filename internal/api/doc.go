// Package api exposes task admission and queries over HTTP. It decodes and
// validates requests, calls the task service and maps domain errors to
// status codes without leaking internal details.
package api
