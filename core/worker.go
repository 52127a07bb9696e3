package core

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// WorkerPool runs independent per-entity computations in parallel within a
// stage. Each task reads immutable inputs and writes a disjoint output slot,
// so the pool needs no shared-state coordination beyond the queue itself.
type WorkerPool struct {
	workers int
	taskCh  chan func()
	wg      sync.WaitGroup
	logger  *zap.SugaredLogger
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// NewWorkerPool creates a pool; workers start on Start. Cancelling parentCtx
// stops the workers.
func NewWorkerPool(parentCtx context.Context, workers, queueSize int, logger *zap.SugaredLogger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(parentCtx)
	return &WorkerPool{
		workers: workers,
		taskCh:  make(chan func(), queueSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("worker pool already running")
	}
	p.running = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return nil
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskCh:
			if !ok {
				return
			}
			task()
		}
	}
}

// Submit enqueues a task, blocking if the queue is full. Returns the pool
// context's error if the pool is shutting down.
func (p *WorkerPool) Submit(task func()) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.taskCh <- task:
		return nil
	}
}

// Stop cancels the pool and waits for workers to exit. Safe to call more
// than once.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.logger.Debugw("worker pool stopped", "workers", p.workers)
}

// RunTasks fans tasks out over the pool and waits for all of them. Tasks must
// write only to disjoint output slots. Returns the first submit error.
func (p *WorkerPool) RunTasks(tasks []func()) error {
	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			task()
		}); err != nil {
			wg.Done()
			return err
		}
	}
	wg.Wait()
	return nil
}
