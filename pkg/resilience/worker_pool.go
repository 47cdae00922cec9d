package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrWorkerPoolClosed = errors.New("worker pool is closed")
	ErrQueueFull        = errors.New("worker pool queue is full")
)

// Job is a unit of work. The context is cancelled when the pool is shut down
// before the job finished.
type Job func(ctx context.Context)

// WorkerPool runs jobs on a fixed set of goroutines fed by a bounded queue.
type WorkerPool struct {
	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	onPanic func(recovered any)

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup

	running atomic.Int64
}

// NewWorkerPool starts workers goroutines with room for queueSize waiting jobs.
// onPanic receives values recovered from panicking jobs and may be nil.
func NewWorkerPool(workers, queueSize int, onPanic func(recovered any)) *WorkerPool {
	workers = max(workers, 1)
	if queueSize <= 0 {
		queueSize = workers
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		jobs:    make(chan Job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		onPanic: onPanic,
	}

	p.wg.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *WorkerPool) run(job Job) {
	p.running.Add(1)
	defer p.running.Add(-1)
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	job(p.ctx)
}

// Submit queues job, waiting for queue space until ctx ends.
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	if job == nil {
		return nil
	}

	// The read lock is held while sending so Close cannot close the channel underneath.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrWorkerPoolClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// TrySubmit queues job only when the queue has room. A full queue returns ErrQueueFull.
func (p *WorkerPool) TrySubmit(job Job) error {
	if job == nil {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrWorkerPoolClosed
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Running returns the number of jobs currently executing.
func (p *WorkerPool) Running() int {
	return int(p.running.Load())
}

// Close stops accepting jobs. Queued jobs still run.
func (p *WorkerPool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
}

// Wait blocks until every queued job has finished.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Shutdown closes the pool and waits for the queue to drain. When ctx ends first the
// context handed to running jobs is cancelled and Shutdown returns without waiting further.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("worker pool shutdown: %d jobs still running: %w", p.Running(), ctx.Err())
	}
}
