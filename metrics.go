package chainz

// Metrics provides observability data for a chain.
// Counter fields are updated with atomic operations.
type Metrics struct {
	// Fire Counters
	FiresStarted   int64 // Fire, FireWithCallback and FireAsync runs begun
	FiresSucceeded int64 // Runs where every listener succeeded
	FiresFailed    int64 // Runs aborted by a listener, hook or context

	// Listener Counters
	ListenersInvoked int64 // Listener invocations started
	ListenersFailed  int64 // Invocations that ended the run
	HooksFailed      int64 // Pre or post hooks that failed a listener

	// Async Queue Metrics
	AsyncQueued   int64 // FireAsync calls accepted by the worker queue
	AsyncRejected int64 // FireAsync calls rejected with ErrQueueFull
	QueueDepth    int64 // Fire calls waiting for a worker
	QueueCapacity int64 // Worker queue capacity (0 until first FireAsync)

	// Registration Metrics
	RegisteredListeners int64 // Current listener entries
}
