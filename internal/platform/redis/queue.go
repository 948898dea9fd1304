package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
)

// enqueueScript appends ARGV[1] to KEYS[2] unless it is already a member.
// ARGV[2] is the depth limit across all tiers, 0 for none.
var enqueueScript = goredis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
  return -1
end
local max = tonumber(ARGV[2])
if max > 0 and redis.call('SCARD', KEYS[1]) >= max then
  return -2
end
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('SADD', KEYS[1], ARGV[1])
return 1
`)

// dequeueScript pops the head of the first non-empty tier. KEYS[2..] are the
// tiers in priority order and ARGV holds their names.
var dequeueScript = goredis.NewScript(`
for i = 2, #KEYS do
  local id = redis.call('LPOP', KEYS[i])
  if id then
    redis.call('SREM', KEYS[1], id)
    return {id, ARGV[i - 1]}
  end
end
return false
`)

// removeScript deletes ARGV[1] from whichever tier holds it.
var removeScript = goredis.NewScript(`
if redis.call('SREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
for i = 2, #KEYS do
  if redis.call('LREM', KEYS[i], 0, ARGV[1]) > 0 then
    return 1
  end
end
return 1
`)

// Queue implements store.PriorityQueue on Redis lists.
type Queue struct {
	rdb      goredis.UniversalClient
	maxDepth int64
	logger   *slog.Logger
	now      func() time.Time
}

var _ store.PriorityQueue = (*Queue)(nil)

// NewQueue creates a Queue. maxDepth caps the total number of queued ids;
// zero leaves the queue unbounded.
func NewQueue(rdb goredis.UniversalClient, maxDepth int64, logger *slog.Logger) *Queue {
	return &Queue{
		rdb:      rdb,
		maxDepth: maxDepth,
		logger:   logger.With("component", "redis_queue"),
		now:      time.Now,
	}
}

// Enqueue appends id to the tail of the tier.
func (q *Queue) Enqueue(ctx context.Context, id string, priority domain.Priority) error {
	return q.push(ctx, id, priority, q.maxDepth)
}

// Requeue appends id to the tail of the tier, ignoring the depth limit.
func (q *Queue) Requeue(ctx context.Context, id string, priority domain.Priority) error {
	return q.push(ctx, id, priority, 0)
}

func (q *Queue) push(ctx context.Context, id string, priority domain.Priority, maxDepth int64) error {
	if !priority.IsValid() {
		return fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidSpec, priority)
	}

	res, err := enqueueScript.Run(ctx, q.rdb,
		[]string{membersKey, tierKey(priority)},
		id, maxDepth,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", id, err)
	}

	switch res {
	case -1:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyQueued, id)
	case -2:
		return fmt.Errorf("%w: queue capacity %d reached", domain.ErrQueueFull, maxDepth)
	}

	q.logger.Debug("task enqueued", "task_id", id, "priority", priority)
	return nil
}

// Dequeue pops the head of the highest non-empty tier in one script call.
func (q *Queue) Dequeue(ctx context.Context) (store.Entry, bool, error) {
	args := make([]any, len(domain.Priorities))
	for i, p := range domain.Priorities {
		args[i] = string(p)
	}

	res, err := dequeueScript.Run(ctx, q.rdb,
		append([]string{membersKey}, tierKeys()...),
		args...,
	).StringSlice()
	if errors.Is(err, goredis.Nil) {
		return store.Entry{}, false, nil
	}
	if err != nil {
		return store.Entry{}, false, fmt.Errorf("failed to dequeue: %w", err)
	}
	if len(res) != 2 {
		return store.Entry{}, false, fmt.Errorf("unexpected dequeue reply %v", res)
	}

	return store.Entry{TaskID: res[0], Priority: domain.Priority(res[1])}, true, nil
}

// RemoveIfQueued removes id from its tier or fails with domain.ErrNotQueued.
func (q *Queue) RemoveIfQueued(ctx context.Context, id string) error {
	removed, err := removeScript.Run(ctx, q.rdb,
		append([]string{membersKey}, tierKeys()...),
		id,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to remove %s from queue: %w", id, err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotQueued, id)
	}
	return nil
}

// Depths returns the length of each tier.
func (q *Queue) Depths(ctx context.Context) (map[domain.Priority]int64, error) {
	cmds := make(map[domain.Priority]*goredis.IntCmd, len(domain.Priorities))
	_, err := q.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, p := range domain.Priorities {
			cmds[p] = pipe.LLen(ctx, tierKey(p))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read queue depths: %w", err)
	}

	depths := make(map[domain.Priority]int64, len(cmds))
	for p, cmd := range cmds {
		depths[p] = cmd.Val()
	}
	return depths, nil
}

// DeadLetter records a failed task.
func (q *Queue) DeadLetter(ctx context.Context, id, reason string) error {
	data, err := json.Marshal(store.DeadLetter{TaskID: id, Reason: reason, FailedAt: q.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}
	if err := q.rdb.HSet(ctx, deadLetterKey, id, data).Err(); err != nil {
		return fmt.Errorf("failed to dead-letter %s: %w", id, err)
	}
	return nil
}

// DeadLetters returns up to limit entries, newest first. A limit of zero or
// less returns every entry.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error) {
	raws, err := q.rdb.HGetAll(ctx, deadLetterKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}

	letters := make([]store.DeadLetter, 0, len(raws))
	for id, raw := range raws {
		var dl store.DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			q.logger.Warn("skipping malformed dead letter", "task_id", id, "error", err)
			continue
		}
		letters = append(letters, dl)
	}

	sort.Slice(letters, func(i, j int) bool {
		return letters[i].FailedAt.After(letters[j].FailedAt)
	})
	if limit > 0 && len(letters) > limit {
		letters = letters[:limit]
	}
	return letters, nil
}

// RemoveDeadLetter removes the entry for id.
func (q *Queue) RemoveDeadLetter(ctx context.Context, id string) error {
	n, err := q.rdb.HDel(ctx, deadLetterKey, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove dead letter %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: dead letter %s", domain.ErrNotFound, id)
	}
	return nil
}

// DeadLetterCount returns the number of dead-lettered tasks.
func (q *Queue) DeadLetterCount(ctx context.Context) (int64, error) {
	n, err := q.rdb.HLen(ctx, deadLetterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return n, nil
}
