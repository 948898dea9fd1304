// Package store defines the persistence contracts shared by the admission
// path and the workers: the TaskStore holding task metadata and results, and
// the PriorityQueue holding task ids by tier. Implementations live under
// internal/platform.
package store
