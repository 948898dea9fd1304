package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Pool runs a fixed number of workers in this process.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewPool creates count workers sharing deps. Worker ids are prefixed with
// name so several processes can be told apart in logs.
func NewPool(name string, count int, deps Dependencies, cfg WorkerConfig, logger *slog.Logger) *Pool {
	if count < 1 {
		count = 1
	}
	workers := make([]*Worker, count)
	for i := range workers {
		workers[i] = NewWorker(fmt.Sprintf("%s-%d", name, i+1), deps, cfg, logger)
	}
	return &Pool{
		workers: workers,
		logger:  logger.With("component", "worker_pool"),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches the workers. They stop when ctx is cancelled or Stop is
// called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.logger.Info("starting worker pool", "workers", len(p.workers))
	for _, w := range p.workers {
		w := w
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run(ctx)
		}()
	}
}

// Stop signals the workers to stop claiming tasks and waits until every
// claimed task has reached an outcome.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}
