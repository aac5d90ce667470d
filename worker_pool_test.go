package chainz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitResult[R any](t *testing.T, ch <-chan Result[R]) Result[R] {
	t.Helper()
	select {
	case res, ok := <-ch:
		if !ok {
			t.Fatal("result channel closed without a result")
		}
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("FireAsync did not deliver within timeout")
	}
	return Result[R]{}
}

func TestFireAsyncDeliversResults(t *testing.T) {
	chain := New[int, int]()
	defer chain.Close()

	mustAdd(chain, "inc", func(ctx context.Context, recv any, n int) (int, error) { return n + 1, nil })
	mustAdd(chain, "dec", func(ctx context.Context, recv any, n int) (int, error) { return n - 1, nil })

	ch, err := chain.FireAsync(context.Background(), 10)
	require.NoError(t, err)

	res := waitResult(t, ch)
	require.NoError(t, res.Err)
	assert.Equal(t, []int{11, 9}, res.Values)

	_, open := <-ch
	assert.False(t, open, "channel should be closed after the result")
}

func TestFireAsyncDeliversErrors(t *testing.T) {
	chain := New[int, int]()
	defer chain.Close()

	boom := errors.New("boom")
	mustAdd(chain, "fails", func(ctx context.Context, recv any, n int) (int, error) { return 0, boom })

	ch, err := chain.FireAsync(context.Background(), 1)
	require.NoError(t, err)

	res := waitResult(t, ch)
	assert.ErrorIs(t, res.Err, boom)
	assert.Nil(t, res.Values)
}

func TestFireAsyncSnapshotsAtCall(t *testing.T) {
	chain := New[int, string](WithWorkers(1))
	defer chain.Close()

	release := make(chan struct{})
	mustAdd(chain, "gate", func(ctx context.Context, recv any, n int) (string, error) {
		<-release
		return "gate", nil
	})

	first, err := chain.FireAsync(context.Background(), 1)
	require.NoError(t, err)
	second, err := chain.FireAsync(context.Background(), 2)
	require.NoError(t, err)

	// Registered after both calls were queued: neither should see it.
	mustAdd(chain, "late", func(ctx context.Context, recv any, n int) (string, error) { return "late", nil })
	close(release)

	assert.Equal(t, []string{"gate"}, waitResult(t, first).Values)
	assert.Equal(t, []string{"gate"}, waitResult(t, second).Values)
}

func TestFireAsyncQueueFull(t *testing.T) {
	chain := New[int, int](WithWorkers(1), WithQueueSize(1))

	release := make(chan struct{})
	started := make(chan struct{}, 10)
	mustAdd(chain, "block", func(ctx context.Context, recv any, n int) (int, error) {
		started <- struct{}{}
		<-release
		return n, nil
	})

	// One call occupies the worker, one waits in the queue.
	_, err := chain.FireAsync(context.Background(), 1)
	require.NoError(t, err)
	<-started
	_, err = chain.FireAsync(context.Background(), 2)
	require.NoError(t, err)

	_, err = chain.FireAsync(context.Background(), 3)
	assert.ErrorIs(t, err, ErrQueueFull)

	metrics := chain.Metrics()
	assert.Equal(t, int64(2), metrics.AsyncQueued)
	assert.Equal(t, int64(1), metrics.AsyncRejected)
	assert.Equal(t, int64(1), metrics.QueueCapacity)

	close(release)
	require.NoError(t, chain.Close())
	assert.Equal(t, int64(0), chain.Metrics().QueueDepth)
}

func TestFireAsyncConcurrentCallsStaySequential(t *testing.T) {
	chain := New[int, int](WithWorkers(4), WithQueueSize(64))
	defer chain.Close()

	var running, maxRunning int32
	perCall := make(map[int]*int32)
	var mu sync.Mutex
	for i := 0; i < 32; i++ {
		perCall[i] = new(int32)
	}

	for i := 0; i < 3; i++ {
		mustAdd(chain, "step", func(ctx context.Context, recv any, n int) (int, error) {
			mu.Lock()
			counter := perCall[n]
			mu.Unlock()

			if atomic.AddInt32(counter, 1) != 1 {
				return 0, errors.New("listeners of one call overlapped")
			}
			cur := atomic.AddInt32(&running, 1)
			for {
				prev := atomic.LoadInt32(&maxRunning)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxRunning, prev, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(counter, -1)
			return n, nil
		})
	}

	channels := make([]<-chan Result[int], 0, 32)
	for i := 0; i < 32; i++ {
		ch, err := chain.FireAsync(context.Background(), i)
		require.NoError(t, err)
		channels = append(channels, ch)
	}

	for i, ch := range channels {
		res := waitResult(t, ch)
		require.NoError(t, res.Err)
		assert.Equal(t, []int{i, i, i}, res.Values)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&maxRunning), int32(4))
}

func TestFireAsyncPanicInHookIsDelivered(t *testing.T) {
	chain := New[int, int]()
	defer chain.Close()

	mustAdd(chain, "a", func(ctx context.Context, recv any, n int) (int, error) { return n, nil })
	chain.PostFail(func(ctx context.Context, e Entry, err error, n int) error { return nil })
	chain.Pre(func(ctx context.Context, e Entry, n int) error { panic("pre exploded") })

	ch, err := chain.FireAsync(context.Background(), 1)
	require.NoError(t, err)
	assert.ErrorIs(t, waitResult(t, ch).Err, ErrListenerPanicked)

	// The worker survives and serves the next call.
	ch, err = chain.FireAsync(context.Background(), 2)
	require.NoError(t, err)
	assert.Error(t, waitResult(t, ch).Err)
}

func TestCloseDrainsQueuedFires(t *testing.T) {
	chain := New[int, int](WithWorkers(1), WithQueueSize(8))

	var ran int32
	mustAdd(chain, "count", func(ctx context.Context, recv any, n int) (int, error) {
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&ran, 1)
		return n, nil
	})

	channels := make([]<-chan Result[int], 0, 5)
	for i := 0; i < 5; i++ {
		ch, err := chain.FireAsync(context.Background(), i)
		require.NoError(t, err)
		channels = append(channels, ch)
	}

	require.NoError(t, chain.Close())
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
	for _, ch := range channels {
		res := waitResult(t, ch)
		assert.NoError(t, res.Err)
	}
}
