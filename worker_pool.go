package chainz

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// workerPool runs queued fire calls for FireAsync.
//
// The worker pool:
//   - Runs each queued fire call on one worker, so the listeners of a
//     single call stay strictly sequential
//   - Lets separate fire calls proceed concurrently
//   - Rejects work with ErrQueueFull instead of queuing without bound
//   - Drains queued calls on shutdown
type workerPool struct {
	logger zerolog.Logger

	// Channel for receiving fire tasks
	tasks chan fireTask

	// WaitGroup to track worker goroutines for graceful shutdown
	wg sync.WaitGroup

	mu sync.RWMutex

	// Tracks if the pool has been closed
	closed bool

	// Metrics pointer for atomic updates
	metrics *Metrics
}

// fireTask is a single queued fire call.
type fireTask struct {
	ctx context.Context
	run func(context.Context)
}

// newWorkerPool creates and starts a worker pool.
func newWorkerPool(workers, queueSize int, logger zerolog.Logger, metrics *Metrics) *workerPool {
	pool := &workerPool{
		logger:  logger,
		tasks:   make(chan fireTask, queueSize),
		metrics: metrics,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}

	return pool
}

// submit queues a fire call.
//
// Returns ErrQueueFull if the pool cannot accept more tasks and
// ErrChainClosed once the pool has been closed.
func (p *workerPool) submit(task fireTask) error {
	// The read lock keeps close() from closing the channel between the
	// closed check and the send.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrChainClosed
	}

	select {
	case p.tasks <- task:
		atomic.AddInt64(&p.metrics.QueueDepth, 1)
		atomic.AddInt64(&p.metrics.AsyncQueued, 1)
		return nil
	default:
		atomic.AddInt64(&p.metrics.AsyncRejected, 1)
		return ErrQueueFull
	}
}

// close stops accepting tasks, lets workers finish everything already
// queued and waits for them to exit.
func (p *workerPool) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	close(p.tasks)
	p.wg.Wait()
}

// worker processes tasks until the channel is closed.
func (p *workerPool) worker() {
	defer p.wg.Done()

	for task := range p.tasks {
		atomic.AddInt64(&p.metrics.QueueDepth, -1)
		p.execute(task)
	}
}

// execute runs a task with panic recovery so one bad call cannot take
// down a worker.
func (p *workerPool) execute(task fireTask) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("fire task panicked")
		}
	}()
	task.run(task.ctx)
}
