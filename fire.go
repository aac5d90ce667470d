package chainz

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
)

// Fire runs every listener in order with args and returns their results.
//
// Listeners run one at a time; each one, including its hooks, settles
// before the next starts. For every listener Fire:
//  1. Copies args (see WithArgsCopier)
//  2. Runs the Pre hooks
//  3. Invokes the listener
//  4. Runs the Post hooks and records the result
//
// A failure in steps 2-4, including a panic, runs every PostFail hook
// with the error and the listener's argument copy, then aborts: later
// listeners are skipped and Fire returns a *FireError wrapping the
// failure. A cancelled ctx stops the chain before the next listener and
// returns ctx.Err().
//
// On success the result slice holds one value per listener, in firing
// order, zero values included.
func (c *Chain[T, R]) Fire(ctx context.Context, args T) ([]R, error) {
	s, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	return c.run(ctx, s, args)
}

// run executes a snapshot in promise mode.
func (c *Chain[T, R]) run(ctx context.Context, s snapshot[T, R], args T) ([]R, error) {
	atomic.AddInt64(&c.metrics.FiresStarted, 1)
	ctx, span := c.telemetry.startFire(ctx, c.name, len(s.entries))

	results := make([]R, 0, len(s.entries))
	for i, e := range s.entries {
		if err := ctx.Err(); err != nil {
			c.settle(ctx, span, err)
			return nil, err
		}

		value, err := c.invoke(ctx, s, i, e, args)
		if err != nil {
			c.settle(ctx, span, err)
			return nil, err
		}
		results = append(results, value)
	}

	c.settle(ctx, span, nil)
	return results, nil
}

// settle records the outcome of a promise-mode run.
func (c *Chain[T, R]) settle(ctx context.Context, span trace.Span, err error) {
	if err != nil {
		atomic.AddInt64(&c.metrics.FiresFailed, 1)
	} else {
		atomic.AddInt64(&c.metrics.FiresSucceeded, 1)
	}
	c.telemetry.endFire(ctx, span, c.name, err)
}

// invoke runs one listener with its hooks.
func (c *Chain[T, R]) invoke(ctx context.Context, s snapshot[T, R], index int, e *entry[T, R], args T) (R, error) {
	var zero R

	local := c.copyArgs(args)
	view := e.view()

	ctx, span := c.telemetry.startListener(ctx, c.name, e.key, index)
	start := c.clock.Now()
	atomic.AddInt64(&c.metrics.ListenersInvoked, 1)

	c.logger.Debug().Str("key", e.key).Int("index", index).Msg("running listener")

	stage := StagePre
	err := runHooks(ctx, c.logger, StagePre, s.pre, view, local)

	var value R
	if err == nil {
		stage = StageListener
		value, err = c.call(ctx, e, local)
	}
	if err == nil {
		stage = StagePost
		err = runHooks(ctx, c.logger, StagePost, s.post, view, local)
	}

	if err == nil {
		c.telemetry.endListener(ctx, span, c.name, e.key, c.clock.Now().Sub(start), nil)
		return value, nil
	}

	atomic.AddInt64(&c.metrics.ListenersFailed, 1)
	if stage != StageListener {
		atomic.AddInt64(&c.metrics.HooksFailed, 1)
	}

	c.logger.Warn().Err(err).
		Str("key", e.key).
		Int("index", index).
		Str("stage", string(stage)).
		Msg("listener failed")

	fireErr := &FireError{Err: err, Key: e.key, Index: index, Stage: stage}
	fireErr.PostFail = runFailHooks(ctx, c.logger, s.postFail, view, err, local)
	for _, hookErr := range fireErr.PostFail {
		c.logger.Warn().Err(hookErr).Str("key", e.key).Int("index", index).Msg("postFail hook failed")
	}

	c.telemetry.endListener(ctx, span, c.name, e.key, c.clock.Now().Sub(start), err)
	return zero, fireErr
}

// call invokes the listener itself, bounded by the configured timeout.
func (c *Chain[T, R]) call(ctx context.Context, e *entry[T, R], args T) (value R, err error) {
	if c.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = c.clock.WithTimeout(ctx, c.cfg.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("key", e.key).Interface("panic", r).Msg("listener panicked")
			err = panicError(r)
		}
	}()

	if e.fn != nil {
		return e.fn(ctx, e.receiver, args)
	}
	return value, c.await(ctx, e, args)
}

// await runs a continuation-style listener in promise mode and waits for
// it to call next or for ctx to end.
func (c *Chain[T, R]) await(ctx context.Context, e *entry[T, R], args T) error {
	done := make(chan error, 1)
	var called atomic.Bool

	e.next(ctx, e.receiver, args, func(err error) {
		if !called.CompareAndSwap(false, true) {
			c.logger.Warn().Str("key", e.key).Msg("next called more than once")
			return
		}
		done <- err
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Chain[T, R]) copyArgs(args T) T {
	if c.copier != nil {
		return c.copier(args)
	}
	return args
}

// FireWithCallback runs the chain in continuation style and reports the
// outcome through done.
//
// Each listener receives a next function and must call it to let the
// following listener run. Listeners registered with Add are called
// directly and advance as soon as they return. No hooks run in this
// mode. The first error stops the chain and is passed to done; done
// receives nil once every listener has called next without error.
// done is called exactly once, possibly on a goroutine owned by a
// listener.
//
// A listener that panics before calling next fails the chain with
// ErrListenerPanicked. Panics raised after next has been called are not
// recovered; they propagate to whoever called next, including panics
// raised by done.
func (c *Chain[T, R]) FireWithCallback(ctx context.Context, args T, done func(error)) {
	var settled atomic.Bool
	finish := func(err error) {
		if !settled.CompareAndSwap(false, true) {
			return
		}
		if err != nil {
			atomic.AddInt64(&c.metrics.FiresFailed, 1)
		} else {
			atomic.AddInt64(&c.metrics.FiresSucceeded, 1)
		}
		if done != nil {
			done(err)
		}
	}

	s, err := c.snapshot()
	if err != nil {
		if done != nil {
			done(err)
		}
		return
	}

	atomic.AddInt64(&c.metrics.FiresStarted, 1)
	c.step(ctx, s.entries, 0, args, finish)
}

// step runs entries[i] and hands the chain on through its next function.
func (c *Chain[T, R]) step(ctx context.Context, entries []*entry[T, R], i int, args T, finish func(error)) {
	if i == len(entries) {
		finish(nil)
		return
	}
	if err := ctx.Err(); err != nil {
		finish(err)
		return
	}

	e := entries[i]
	atomic.AddInt64(&c.metrics.ListenersInvoked, 1)
	c.logger.Debug().Str("key", e.key).Int("index", i).Msg("running listener")

	var called atomic.Bool
	next := func(err error) {
		if !called.CompareAndSwap(false, true) {
			c.logger.Warn().Str("key", e.key).Msg("next called more than once")
			return
		}
		if err != nil {
			atomic.AddInt64(&c.metrics.ListenersFailed, 1)
			c.logger.Warn().Err(err).Str("key", e.key).Int("index", i).Msg("listener failed")
			finish(err)
			return
		}
		c.step(ctx, entries, i+1, args, finish)
	}

	c.callNext(ctx, e, c.copyArgs(args), next)
}

// Continuation progress of a single callNext invocation.
const (
	nextPending int32 = iota
	nextRunning
	nextReturned
)

// callNext invokes a listener in continuation style. A panic before the
// listener calls next becomes an error for next. Once next has been
// called the chain has moved on, so a later panic is re-raised: one
// raised by the rest of the chain or by done passes through untouched,
// and one raised by the listener itself is logged first.
func (c *Chain[T, R]) callNext(ctx context.Context, e *entry[T, R], args T, next func(error)) {
	if e.next == nil {
		next(c.callPlain(ctx, e, args))
		return
	}

	var state atomic.Int32
	tracked := func(err error) {
		first := state.CompareAndSwap(nextPending, nextRunning)
		next(err)
		if first {
			state.Store(nextReturned)
		}
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch state.Load() {
		case nextPending:
			c.logger.Error().Str("key", e.key).Interface("panic", r).Msg("listener panicked")
			tracked(panicError(r))
		case nextReturned:
			c.logger.Error().Str("key", e.key).Interface("panic", r).Msg("listener panicked after calling next")
			panic(r)
		default:
			panic(r)
		}
	}()
	e.next(ctx, e.receiver, args, tracked)
}

// callPlain runs a ListenerFunc for FireWithCallback, discarding its value.
func (c *Chain[T, R]) callPlain(ctx context.Context, e *entry[T, R], args T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("key", e.key).Interface("panic", r).Msg("listener panicked")
			err = panicError(r)
		}
	}()
	_, err = e.fn(ctx, e.receiver, args)
	return err
}
