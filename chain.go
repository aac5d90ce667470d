package chainz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Chain during creation.
type Option func(*config)

// config holds internal configuration for chain creation.
type config struct {
	clock     clockz.Clock // Time abstraction for deterministic testing
	logger    zerolog.Logger
	tracer    trace.Tracer
	meter     metric.Meter
	copier    any // func(T) T, checked against the chain's T in New
	name      string
	timeout   time.Duration
	workers   int
	queueSize int
}

// WithName labels the chain in logs and telemetry. Default is "chain".
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLogger sets the logger used for listener lifecycle events.
// Default is zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithClock sets the clock implementation for timeouts and durations.
// Default is clockz.RealClock.
func WithClock(clock clockz.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithTimeout bounds each listener invocation in Fire with a deadline on
// the context it receives. Listeners must honour ctx for the deadline to
// take effect; continuation-style listeners are abandoned once it
// passes. Default is no timeout (0).
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithWorkers sets the number of goroutines serving FireAsync.
// Default is 4 workers.
func WithWorkers(count int) Option {
	return func(c *config) {
		c.workers = count
	}
}

// WithQueueSize sets how many FireAsync calls may wait for a worker.
// Default is 0, which auto-calculates as workers * 2.
func WithQueueSize(size int) Option {
	return func(c *config) {
		c.queueSize = size
	}
}

// WithArgsCopier installs a deep-copy function applied to the fire
// arguments before every listener. Without it each listener receives a
// plain value copy of T, which shares any pointers, maps or slices.
//
// The function type must match the chain's argument type; New panics
// otherwise.
func WithArgsCopier[T any](copier func(T) T) Option {
	return func(c *config) {
		c.copier = copier
	}
}

// WithTracer sets the tracer used for fire and listener spans.
// Default is the global otel tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		c.tracer = tracer
	}
}

// WithMeter sets the meter used for listener and fire instruments.
// Default is the global otel meter provider.
func WithMeter(meter metric.Meter) Option {
	return func(c *config) {
		c.meter = meter
	}
}

// EntryOption configures a single listener entry at registration.
type EntryOption func(*entryConfig)

type entryConfig struct {
	receiver    any
	hasReceiver bool
}

// WithReceiver sets the receiver the listener is invoked against and
// that hooks see as Entry.Receiver. Default is the chain itself.
func WithReceiver(receiver any) EntryOption {
	return func(c *entryConfig) {
		c.receiver = receiver
		c.hasReceiver = true
	}
}

// maxListeners bounds a single chain to prevent unbounded registration.
const maxListeners = 10000

// ListenerFunc is a listener run by Fire. It receives the entry's
// receiver and its own copy of the fire arguments.
type ListenerFunc[T, R any] func(ctx context.Context, recv any, args T) (R, error)

// NextFunc is a continuation-style listener. It must call next exactly
// once to let the chain continue; a non-nil error stops the chain.
type NextFunc[T any] func(ctx context.Context, recv any, args T, next func(error))

// Entry is the read-only view of a listener entry handed to hooks.
type Entry struct {
	Receiver any
	ID       string
	Key      Key
}

// entry is a registered listener. Exactly one of fn and next is set.
type entry[T, R any] struct {
	receiver any
	fn       ListenerFunc[T, R]
	next     NextFunc[T]
	id       string
	key      Key
}

func (e *entry[T, R]) view() Entry {
	return Entry{ID: e.id, Key: e.key, Receiver: e.receiver}
}

// Chain is an ordered, keyed listener chain.
//
// This struct provides:
//   - Ordered listener storage with positional insertion and removal
//   - Pre, post and post-failure hooks around every listener
//   - Sequential firing in promise and continuation styles
//   - A worker pool for FireAsync and service lifecycle
//
// Thread Safety:
// Registration is guarded by a read-write mutex. Fire snapshots the
// listener and hook lists under the read lock and then runs without
// holding it, so listeners may register or remove entries freely.
type Chain[T, R any] struct {
	clock     clockz.Clock
	logger    zerolog.Logger
	telemetry *telemetry
	copier    func(T) T
	workers   *workerPool
	entries   []*entry[T, R]
	pre       []HookFunc[T]
	post      []HookFunc[T]
	postFail  []FailHookFunc[T]
	name      string
	cfg       config
	mu        sync.RWMutex
	closed    bool

	metrics Metrics
}

// New creates an empty chain with the specified options.
//
// Default configuration:
//   - Name "chain", no-op logger, real clock
//   - No per-listener timeout
//   - 4 workers for FireAsync, started on first use
//   - Global otel tracer and meter providers
//
// Example:
//
//	chain := chainz.New[Request, chainz.Tristate](
//	    chainz.WithName("authorize"),
//	    chainz.WithLogger(logger),
//	    chainz.WithTimeout(2*time.Second),
//	)
//	defer chain.Close()
func New[T, R any](opts ...Option) *Chain[T, R] {
	cfg := config{
		clock:   clockz.RealClock,
		logger:  zerolog.Nop(),
		name:    "chain",
		workers: 4,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.workers <= 0 {
		cfg.workers = 1
	}
	if cfg.queueSize == 0 {
		cfg.queueSize = cfg.workers * 2
	}

	c := &Chain[T, R]{
		clock:     cfg.clock,
		logger:    cfg.logger.With().Str("chain", cfg.name).Logger(),
		telemetry: newTelemetry(cfg.tracer, cfg.meter),
		name:      cfg.name,
		cfg:       cfg,
	}

	if cfg.copier != nil {
		copier, ok := cfg.copier.(func(T) T)
		if !ok {
			panic(fmt.Sprintf("chainz: WithArgsCopier function %T does not match argument type", cfg.copier))
		}
		c.copier = copier
	}

	return c
}

// Name returns the chain's label.
func (c *Chain[T, R]) Name() string {
	return c.name
}

// Add appends a listener under key.
func (c *Chain[T, R]) Add(key Key, fn ListenerFunc[T, R], opts ...EntryOption) (Handle, error) {
	if fn == nil {
		return Handle{}, ErrNilListener
	}
	return c.register(Position{}, &entry[T, R]{key: key, fn: fn}, opts)
}

// AddNext appends a continuation-style listener under key.
func (c *Chain[T, R]) AddNext(key Key, fn NextFunc[T], opts ...EntryOption) (Handle, error) {
	if fn == nil {
		return Handle{}, ErrNilListener
	}
	return c.register(Position{}, &entry[T, R]{key: key, next: fn}, opts)
}

// Insert places a listener at pos. See Position for the resolution rules.
func (c *Chain[T, R]) Insert(pos Position, key Key, fn ListenerFunc[T, R], opts ...EntryOption) (Handle, error) {
	if fn == nil {
		return Handle{}, ErrNilListener
	}
	return c.register(pos, &entry[T, R]{key: key, fn: fn}, opts)
}

// InsertNext places a continuation-style listener at pos.
func (c *Chain[T, R]) InsertNext(pos Position, key Key, fn NextFunc[T], opts ...EntryOption) (Handle, error) {
	if fn == nil {
		return Handle{}, ErrNilListener
	}
	return c.register(pos, &entry[T, R]{key: key, next: fn}, opts)
}

func (c *Chain[T, R]) register(pos Position, e *entry[T, R], opts []EntryOption) (Handle, error) {
	var ec entryConfig
	for _, opt := range opts {
		opt(&ec)
	}
	e.receiver = c
	if ec.hasReceiver {
		e.receiver = ec.receiver
	}
	e.id = uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Handle{}, ErrChainClosed
	}
	if len(c.entries) >= maxListeners {
		return Handle{}, ErrTooManyListeners
	}

	i := resolvePosition(pos, c.entries)
	c.entries = append(c.entries, nil)
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = e
	atomic.StoreInt64(&c.metrics.RegisteredListeners, int64(len(c.entries)))

	c.logger.Debug().Str("key", e.key).Str("id", e.id).Int("index", i).Msg("listener registered")

	id := e.id
	return Handle{
		ID:  id,
		Key: e.key,
		remove: func() error {
			return c.removeEntry(id)
		},
	}, nil
}

// removeEntry drops the single entry with id.
func (c *Chain[T, R]) removeEntry(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.id == id {
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			atomic.StoreInt64(&c.metrics.RegisteredListeners, int64(len(c.entries)))
			return nil
		}
	}
	return ErrEntryNotFound
}

// Remove drops every entry registered under key and returns how many
// were removed.
func (c *Chain[T, R]) Remove(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := make([]*entry[T, R], 0, len(c.entries))
	for _, e := range c.entries {
		if e.key != key {
			kept = append(kept, e)
		}
	}
	removed := len(c.entries) - len(kept)
	c.entries = kept
	atomic.StoreInt64(&c.metrics.RegisteredListeners, int64(len(c.entries)))

	if removed > 0 {
		c.logger.Debug().Str("key", key).Int("removed", removed).Msg("listeners removed")
	}
	return removed
}

// Len returns the number of registered listeners.
func (c *Chain[T, R]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the listener keys in firing order.
func (c *Chain[T, R]) Keys() []Key {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]Key, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.key
	}
	return keys
}

// Pre appends a hook run before every listener in Fire.
func (c *Chain[T, R]) Pre(fn HookFunc[T]) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.pre = append(c.pre, fn)
	c.mu.Unlock()
}

// Post appends a hook run after every successful listener in Fire.
func (c *Chain[T, R]) Post(fn HookFunc[T]) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.post = append(c.post, fn)
	c.mu.Unlock()
}

// PostFail appends a hook run when a listener, or one of its pre or
// post hooks, fails in Fire.
func (c *Chain[T, R]) PostFail(fn FailHookFunc[T]) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.postFail = append(c.postFail, fn)
	c.mu.Unlock()
}

// snapshot is the immutable view of a chain a single fire call runs on.
type snapshot[T, R any] struct {
	entries  []*entry[T, R]
	pre      []HookFunc[T]
	post     []HookFunc[T]
	postFail []FailHookFunc[T]
}

func (c *Chain[T, R]) snapshot() (snapshot[T, R], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return snapshot[T, R]{}, ErrChainClosed
	}
	return c.snapshotLocked(), nil
}

// snapshotLocked copies the slices; callers hold c.mu.
func (c *Chain[T, R]) snapshotLocked() snapshot[T, R] {
	return snapshot[T, R]{
		entries:  append([]*entry[T, R](nil), c.entries...),
		pre:      append([]HookFunc[T](nil), c.pre...),
		post:     append([]HookFunc[T](nil), c.post...),
		postFail: append([]FailHookFunc[T](nil), c.postFail...),
	}
}

// Metrics returns a snapshot of the chain counters.
func (c *Chain[T, R]) Metrics() Metrics {
	c.mu.RLock()
	var capacity int64
	if c.workers != nil {
		capacity = int64(cap(c.workers.tasks))
	}
	c.mu.RUnlock()

	return Metrics{
		FiresStarted:        atomic.LoadInt64(&c.metrics.FiresStarted),
		FiresSucceeded:      atomic.LoadInt64(&c.metrics.FiresSucceeded),
		FiresFailed:         atomic.LoadInt64(&c.metrics.FiresFailed),
		ListenersInvoked:    atomic.LoadInt64(&c.metrics.ListenersInvoked),
		ListenersFailed:     atomic.LoadInt64(&c.metrics.ListenersFailed),
		HooksFailed:         atomic.LoadInt64(&c.metrics.HooksFailed),
		AsyncQueued:         atomic.LoadInt64(&c.metrics.AsyncQueued),
		AsyncRejected:       atomic.LoadInt64(&c.metrics.AsyncRejected),
		QueueDepth:          atomic.LoadInt64(&c.metrics.QueueDepth),
		QueueCapacity:       capacity,
		RegisteredListeners: atomic.LoadInt64(&c.metrics.RegisteredListeners),
	}
}

// Close shuts the chain down. Fire calls already queued through
// FireAsync are drained before Close returns; every later registration
// or fire returns ErrChainClosed.
func (c *Chain[T, R]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.closed = true
	pool := c.workers
	c.mu.Unlock()

	if pool != nil {
		pool.close()
	}

	c.logger.Debug().Msg("chain closed")
	return nil
}
