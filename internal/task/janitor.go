package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/private-doc-vault/docvault-ocr-service/internal/metrics"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
)

// Janitor deletes terminal tasks older than the retention period.
type Janitor struct {
	store     store.TaskStore
	metrics   *metrics.Metrics
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewJanitor creates a Janitor. A retention of zero keeps tasks forever.
func NewJanitor(deps Dependencies, retention, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		store:     deps.Store,
		metrics:   deps.Metrics,
		retention: retention,
		interval:  interval,
		logger:    logger.With("component", "janitor"),
		now:       time.Now,
	}
}

// Run purges periodically until ctx is cancelled. It returns immediately
// when retention is disabled.
func (j *Janitor) Run(ctx context.Context) {
	if j.retention <= 0 {
		j.logger.Debug("retention disabled, janitor not started")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Purge(ctx); err != nil {
				j.logger.Error("failed to purge finished tasks", "error", err)
			}
		}
	}
}

// Purge deletes terminal tasks that finished before now minus the retention
// period and returns how many were removed.
func (j *Janitor) Purge(ctx context.Context) (int, error) {
	if j.retention <= 0 {
		return 0, nil
	}

	n, err := j.store.PurgeCompleted(ctx, j.now().Add(-j.retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge tasks: %w", err)
	}
	j.metrics.TasksPurged(n)
	if n > 0 {
		j.logger.Info("purged finished tasks", "count", n, "retention", j.retention)
	}
	return n, nil
}
