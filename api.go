// Package chainz provides an ordered, keyed listener chain for running a
// named pipeline stage across registered extensions.
//
// A chain executes its listeners strictly one at a time, in the order
// they were registered or inserted, and wraps every invocation with
// optional pre, post and post-failure hooks:
//   - Registration by key, with insertion at an index or relative to
//     existing keys (after the last match, before the first match)
//   - Removal of every entry sharing a key, or of a single entry by handle
//   - Two firing protocols: Fire (ordered result list, first error
//     aborts) and FireWithCallback (continuation style, no hooks)
//   - Tri-state consensus over boolean listeners via FireAndJoinResults
//
// Basic Usage:
//
//	chain := chainz.New[Request, chainz.Tristate]()
//
//	chain.Add("auth", func(ctx context.Context, recv any, req Request) (chainz.Tristate, error) {
//		return chainz.FromBool(req.User != ""), nil
//	})
//
//	// Run "audit" ahead of everything registered under "auth"
//	chain.Insert(chainz.Before("auth"), "audit", auditListener)
//
//	allowed, err := chainz.FireAndJoinResults(ctx, chain, req)
//	if err != nil {
//		return err
//	}
//
// Hooks:
//
//	chain.Pre(func(ctx context.Context, e chainz.Entry, req Request) error {
//		log.Printf("running %s", e.Key)
//		return nil
//	})
//	chain.PostFail(func(ctx context.Context, e chainz.Entry, err error, req Request) error {
//		log.Printf("%s failed: %v", e.Key, err)
//		return nil
//	})
//
// Every fire call works on a snapshot of the listener and hook lists
// taken when it starts, so registration changes never affect calls that
// are already running. Separate fire calls may run concurrently.
package chainz

// Key identifies a listener entry. Keys are not required to be unique:
// insertion searches match the first (Before) or last (After) entry
// with a key, and Remove drops every entry with it.
//
//	const (
//		StageValidate Key = "validate"
//		StagePersist  Key = "persist"
//	)
type Key = string
