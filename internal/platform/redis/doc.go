// Package redis implements the task store and the priority queue on Redis.
//
// Layout, every key prefixed with the {ocr}: hash tag:
//
//	task:<id>            JSON task metadata
//	task:<id>:progress   capped list of progress entries
//	result:<id>          JSON result with an expiry
//	batch:<id>           list of member task ids
//	tasks:processing     sorted set of claimed ids by claim time
//	tasks:queued         sorted set of QUEUED ids by last update
//	tasks:finished       sorted set of terminal ids by completion time
//	queue:high|normal|low  FIFO lists of task ids
//	queue:members        set of ids currently in any tier
//	queue:dead_letter    hash of failed task id to dead letter record
//
// Multi-key invariants are kept with Lua scripts and WATCH/MULTI so that
// several worker processes can share one Redis instance. The shared hash tag
// places every key in one slot, which lets the same scripts and transactions
// run unchanged on Redis Cluster.
package redis
