package chainz

import (
	"context"
	"sync"
)

// recorder collects listener and hook activity in the order it happened.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// named returns a listener that records its key and returns it.
func named(r *recorder, name string) ListenerFunc[string, string] {
	return func(ctx context.Context, recv any, args string) (string, error) {
		r.add(name)
		return name, nil
	}
}

// vote returns a listener that always casts v.
func vote(v Tristate) ListenerFunc[int, Tristate] {
	return func(ctx context.Context, recv any, args int) (Tristate, error) {
		return v, nil
	}
}

func mustAdd[T, R any](c *Chain[T, R], key Key, fn ListenerFunc[T, R], opts ...EntryOption) Handle {
	h, err := c.Add(key, fn, opts...)
	if err != nil {
		panic(err)
	}
	return h
}

func mustInsert[T, R any](c *Chain[T, R], pos Position, key Key, fn ListenerFunc[T, R]) Handle {
	h, err := c.Insert(pos, key, fn)
	if err != nil {
		panic(err)
	}
	return h
}
