package chainz

import (
	"context"

	"github.com/rs/zerolog"
)

// HookFunc runs before (Pre) or after (Post) every listener in Fire.
// It sees the listener's Entry and a value copy of the arguments the
// listener receives. Pointers, maps and slices inside them are shared
// with the listener, so a Pre hook can prepare data through them;
// assigning to the hook's own copy of a field does not reach the
// listener. A non-nil error fails the listener.
type HookFunc[T any] func(ctx context.Context, e Entry, args T) error

// FailHookFunc runs when a listener fails in Fire. It receives the
// failure ahead of the listener's copy of the arguments. All PostFail
// hooks run even if some of them fail; their errors are reported on
// the FireError.
type FailHookFunc[T any] func(ctx context.Context, e Entry, err error, args T) error

// runHooks invokes hooks in registration order and stops at the first
// error or panic.
func runHooks[T any](ctx context.Context, logger zerolog.Logger, stage Stage, hooks []HookFunc[T], e Entry, args T) error {
	for i, hook := range hooks {
		if err := runHook(ctx, logger, stage, i, hook, e, args); err != nil {
			return err
		}
	}
	return nil
}

func runHook[T any](ctx context.Context, logger zerolog.Logger, stage Stage, index int, hook HookFunc[T], e Entry, args T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("key", e.Key).
				Str("stage", string(stage)).
				Int("hook", index).
				Interface("panic", r).
				Msg("hook panicked")
			err = panicError(r)
		}
	}()
	return hook(ctx, e, args)
}

// runFailHooks invokes every hook and returns the errors they produced.
func runFailHooks[T any](ctx context.Context, logger zerolog.Logger, hooks []FailHookFunc[T], e Entry, cause error, args T) []error {
	var errs []error
	for i, hook := range hooks {
		if err := runFailHook(ctx, logger, i, hook, e, cause, args); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func runFailHook[T any](ctx context.Context, logger zerolog.Logger, index int, hook FailHookFunc[T], e Entry, cause error, args T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("key", e.Key).
				Str("stage", "postFail").
				Int("hook", index).
				Interface("panic", r).
				Msg("hook panicked")
			err = panicError(r)
		}
	}()
	return hook(ctx, e, cause, args)
}
