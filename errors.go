package chainz

import (
	"errors"
	"fmt"
	"strings"
)

// Registration Errors
//
// These errors are returned when managing listener entries.

// ErrAlreadyRemoved is returned when removing an entry through a
// handle that has already been used.
var ErrAlreadyRemoved = errors.New("listener already removed")

// ErrEntryNotFound is returned when a handle's entry no longer exists,
// typically because it was dropped by Remove(key).
var ErrEntryNotFound = errors.New("listener not found")

// ErrNilListener is returned when registering a nil callback.
var ErrNilListener = errors.New("listener callback is nil")

// ErrTooManyListeners is returned when registration would exceed
// maxListeners entries on a single chain.
var ErrTooManyListeners = errors.New("listener limit exceeded")

// Lifecycle Errors

// ErrChainClosed is returned by every registration and fire operation
// after Close has been called.
var ErrChainClosed = errors.New("chain is closed")

// ErrAlreadyClosed is returned when calling Close twice.
var ErrAlreadyClosed = errors.New("chain already closed")

// ErrQueueFull is returned by FireAsync when the worker queue cannot
// accept another fire call.
var ErrQueueFull = errors.New("fire queue is full")

// Execution Errors

// ErrListenerPanicked wraps the value recovered from a panicking
// listener or hook.
var ErrListenerPanicked = errors.New("listener panicked")

// Stage names the step of a listener invocation that failed.
type Stage string

const (
	StagePre      Stage = "pre"
	StageListener Stage = "listener"
	StagePost     Stage = "post"
)

// FireError is the terminal error of a Fire call. It records which
// listener failed and at which stage, and unwraps to the original error
// so errors.Is and errors.As see through it.
//
// Errors returned by PostFail hooks are never dropped: they are kept in
// PostFail and reported by Error.
type FireError struct {
	Err      error
	PostFail []error
	Key      Key
	Stage    Stage
	Index    int
}

func (e *FireError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "listener %q (#%d) failed in %s: %v", e.Key, e.Index, e.Stage, e.Err)
	if len(e.PostFail) > 0 {
		b.WriteString("; postFail hooks: ")
		for i, err := range e.PostFail {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(err.Error())
		}
	}
	return b.String()
}

func (e *FireError) Unwrap() error {
	return e.Err
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrListenerPanicked, err)
	}
	return fmt.Errorf("%w: %v", ErrListenerPanicked, r)
}
