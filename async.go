package chainz

import "context"

// Result is the outcome of a FireAsync call.
type Result[R any] struct {
	Err    error
	Values []R
}

// FireAsync queues a Fire on the chain's worker pool and returns a
// channel that receives exactly one Result before being closed.
//
// The listener and hook lists are captured when FireAsync is called.
// Each queued call still runs its listeners one at a time; separate
// calls may run concurrently on different workers.
//
// Returns ErrQueueFull when the worker queue is full and ErrChainClosed
// after Close.
func (c *Chain[T, R]) FireAsync(ctx context.Context, args T) (<-chan Result[R], error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrChainClosed
	}
	if c.workers == nil {
		c.workers = newWorkerPool(c.cfg.workers, c.cfg.queueSize, c.logger, &c.metrics)
	}
	pool := c.workers
	s := c.snapshotLocked()
	c.mu.Unlock()

	out := make(chan Result[R], 1)
	task := fireTask{
		ctx: ctx,
		run: func(ctx context.Context) {
			var res Result[R]
			defer func() {
				if r := recover(); r != nil {
					res = Result[R]{Err: panicError(r)}
				}
				out <- res
				close(out)
			}()
			res.Values, res.Err = c.run(ctx, s, args)
		},
	}

	if err := pool.submit(task); err != nil {
		return nil, err
	}
	return out, nil
}
