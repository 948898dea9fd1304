package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/private-doc-vault/docvault-ocr-service/internal/config"
	"github.com/private-doc-vault/docvault-ocr-service/internal/task"
)

// Workers runs a worker pool together with the stuck task monitor and the
// janitor.
type Workers struct {
	pool    *task.Pool
	monitor *task.StuckTaskMonitor
	janitor *task.Janitor

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewWorkers creates count workers named after name.
func NewWorkers(name string, count int, cfg *config.Config, deps task.Dependencies, logger *slog.Logger) *Workers {
	wc := task.WorkerConfig{
		PollInterval:    cfg.Worker.PollInterval,
		MaxTaskDuration: cfg.Worker.MaxTaskDuration,
		ResultTTL:       cfg.Result.TTL,
	}
	monitor := task.NewStuckTaskMonitor(deps, cfg.Worker.MaxTaskDuration, cfg.Worker.StuckCheckInterval, logger,
		task.WithAlertThreshold(cfg.Worker.StuckAlertThreshold))
	return &Workers{
		pool:    task.NewPool(name, count, deps, wc, logger),
		monitor: monitor,
		janitor: task.NewJanitor(deps, cfg.Worker.Retention, cfg.Worker.JanitorInterval, logger),
		logger:  logger.With("component", "workers"),
	}
}

// Size returns the number of workers in the pool.
func (w *Workers) Size() int { return w.pool.Size() }

// Start launches the pool and the watchdogs.
func (w *Workers) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.pool.Start(ctx)

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.monitor.Run(ctx)
	}()
	go func() {
		defer w.wg.Done()
		w.janitor.Run(ctx)
	}()
	w.logger.Info("workers started", "count", w.pool.Size())
}

// Stop cancels the watchdogs and waits for every in-flight task to reach
// its terminal transition.
func (w *Workers) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.pool.Stop()
	w.wg.Wait()
	w.logger.Info("workers stopped")
}
