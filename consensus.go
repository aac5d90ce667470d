package chainz

import "context"

// Tristate is a boolean vote that may abstain.
type Tristate int8

const (
	// Unset abstains. It is the zero value.
	Unset Tristate = iota
	True
	False
)

// FromBool converts a plain boolean vote.
func FromBool(b bool) Tristate {
	if b {
		return True
	}
	return False
}

// Bool reports the vote as a boolean; ok is false for Unset.
func (t Tristate) Bool() (value, ok bool) {
	switch t {
	case True:
		return true, true
	case False:
		return false, true
	default:
		return false, false
	}
}

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unset"
	}
}

// Join reduces votes to a single consensus, checking in order:
//  1. at least one True and no False: True
//  2. at least one False and no True: False
//  3. every vote Unset (or no votes): Unset
//  4. a mix of True and False: True
func Join(results []Tristate) Tristate {
	var successes, failures, dontCare int
	for _, r := range results {
		switch r {
		case True:
			successes++
		case False:
			failures++
		default:
			dontCare++
		}
	}

	n := len(results)
	switch {
	case successes > 0 && successes+dontCare == n:
		return True
	case failures > 0 && failures+dontCare == n:
		return False
	case dontCare == n:
		return Unset
	default:
		return True
	}
}

// FireAndJoinResults fires the chain and reduces the listener votes
// with Join. A failed fire returns Unset with the error.
func FireAndJoinResults[T any](ctx context.Context, c *Chain[T, Tristate], args T) (Tristate, error) {
	results, err := c.Fire(ctx, args)
	if err != nil {
		return Unset, err
	}
	return Join(results), nil
}
