//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/logger"
)

// These tests share one database and must not run in parallel.

func TestTaskStoreIntegration_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(openTestDB(t), logger.Discard())

	task, err := s.Create(ctx, testSpec())
	require.NoError(t, err)

	_, err = s.Update(ctx, task.ID, domain.ClaimUpdate("claim-1"))
	require.NoError(t, err)

	processing, err := s.ListProcessing(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, processing, 1)

	_, err = s.Update(ctx, task.ID, domain.ProgressUpdate("claim-1", 50, "recognizing"))
	require.NoError(t, err)

	_, err = s.Update(ctx, task.ID, domain.CompleteUpdate("stale"))
	assert.ErrorIs(t, err, domain.ErrClaimLost)

	done, err := s.Update(ctx, task.ID, domain.CompleteUpdate("claim-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)

	_, err = s.Update(ctx, task.ID, domain.ProgressUpdate("", 10, "late"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	processing, err = s.ListProcessing(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, processing)
}

func TestTaskStoreIntegration_ListQueued(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(openTestDB(t), logger.Discard())

	task, err := s.Create(ctx, testSpec())
	require.NoError(t, err)

	queued, err := s.ListQueued(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, task.ID, queued[0].ID)

	_, err = s.Update(ctx, task.ID, domain.ClaimUpdate("claim-1"))
	require.NoError(t, err)

	queued, err = s.ListQueued(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestTaskStoreIntegration_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(openTestDB(t), logger.Discard())

	task, err := s.Create(ctx, testSpec())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(ctx, task.ID, domain.ClaimUpdate(string(rune('a'+i))))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	}
	assert.Equal(t, 1, wins)
}

func TestTaskStoreIntegration_Results(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(openTestDB(t), logger.Discard())

	task, err := s.Create(ctx, testSpec())
	require.NoError(t, err)

	err = s.PutResult(ctx, "00000000-0000-0000-0000-000000000000", &domain.Result{}, time.Hour)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.PutResult(ctx, task.ID, &domain.Result{TaskID: task.ID, Text: "hello"}, time.Hour))
	got, err := s.GetResult(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.GetResult(ctx, task.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTaskStoreIntegration_BatchAndProgress(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(openTestDB(t), logger.Discard())

	spec := testSpec()
	spec.BatchID = "batch-1"
	first, err := s.Create(ctx, spec)
	require.NoError(t, err)
	second, err := s.Create(ctx, spec)
	require.NoError(t, err)

	tasks, err := s.ListBatch(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, first.ID, tasks[0].ID)
	assert.Equal(t, second.ID, tasks[1].ID)

	for i := 1; i <= 12; i++ {
		require.NoError(t, s.RecordProgress(ctx, first.ID, domain.ProgressEntry{Progress: i}))
	}
	history, err := s.ProgressHistory(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, history, 10)
	assert.Equal(t, 3, history[0].Progress)

	history, err = s.ProgressHistory(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = s.ProgressHistory(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTaskStoreIntegration_PurgeCompleted(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(openTestDB(t), logger.Discard())

	s.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	old, err := s.Create(ctx, testSpec())
	require.NoError(t, err)
	_, err = s.Update(ctx, old.ID, domain.CancelUpdate())
	require.NoError(t, err)

	s.now = time.Now
	queued, err := s.Create(ctx, testSpec())
	require.NoError(t, err)

	purged, err := s.PurgeCompleted(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = s.Get(ctx, old.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Get(ctx, queued.ID)
	assert.NoError(t, err)
}
