// Package postgres implements the task store and priority queue from the
// internal/store package on PostgreSQL.
//
// Tasks are stored as JSONB documents next to the columns used for lookups
// (status, batch, claim and completion times). Updates lock the row with
// SELECT ... FOR UPDATE and apply domain.ApplyUpdate inside a transaction.
// The queue is a single table ordered by (tier_rank, seq); Dequeue deletes
// the head row with FOR UPDATE SKIP LOCKED so concurrent workers never claim
// the same id.
//
// The schema is managed by goose from the embedded migrations directory.
package postgres
