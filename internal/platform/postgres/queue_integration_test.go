//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/logger"
)

func TestQueueIntegration_Ordering(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(openTestDB(t), 0, logger.Discard())

	require.NoError(t, q.Enqueue(ctx, "n-1", domain.PriorityNormal))
	require.NoError(t, q.Enqueue(ctx, "l-1", domain.PriorityLow))
	require.NoError(t, q.Enqueue(ctx, "h-1", domain.PriorityHigh))
	require.NoError(t, q.Enqueue(ctx, "n-2", domain.PriorityNormal))
	assert.ErrorIs(t, q.Enqueue(ctx, "n-1", domain.PriorityHigh), domain.ErrAlreadyQueued)

	var order []string
	for {
		entry, ok, err := q.Dequeue(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		order = append(order, entry.TaskID)
	}
	assert.Equal(t, []string{"h-1", "n-1", "n-2", "l-1"}, order)
}

func TestQueueIntegration_DepthLimit(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(openTestDB(t), 1, logger.Discard())

	require.NoError(t, q.Enqueue(ctx, "a", domain.PriorityNormal))
	assert.ErrorIs(t, q.Enqueue(ctx, "b", domain.PriorityNormal), domain.ErrQueueFull)
	require.NoError(t, q.Requeue(ctx, "c", domain.PriorityNormal))

	require.NoError(t, q.RemoveIfQueued(ctx, "a"))
	assert.ErrorIs(t, q.RemoveIfQueued(ctx, "a"), domain.ErrNotQueued)

	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depths[domain.PriorityNormal])
	assert.Equal(t, int64(0), depths[domain.PriorityHigh])
}

func TestQueueIntegration_ConcurrentDequeue(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(openTestDB(t), 0, logger.Discard())

	const total = 100
	for i := 0; i < total; i++ {
		require.NoError(t, q.Enqueue(ctx, fmt.Sprintf("task-%03d", i), domain.Priorities[i%3]))
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				entry, ok, err := q.Dequeue(ctx)
				if !assert.NoError(t, err) || !ok {
					return
				}
				mu.Lock()
				seen[entry.TaskID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %s delivered %d times", id, n)
	}
}

func TestQueueIntegration_DeadLetters(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(openTestDB(t), 0, logger.Discard())

	require.NoError(t, q.DeadLetter(ctx, "a", "corrupt"))
	require.NoError(t, q.DeadLetter(ctx, "b", "timeout"))

	n, err := q.DeadLetterCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	letters, err := q.DeadLetters(ctx, 1)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "b", letters[0].TaskID)

	require.NoError(t, q.RemoveDeadLetter(ctx, "b"))
	assert.ErrorIs(t, q.RemoveDeadLetter(ctx, "b"), domain.ErrNotFound)
}
