package chainz

// Position tells Insert where a new entry goes. The zero value appends.
//
//	chain.Insert(chainz.At(0), "first", fn)             // literal index
//	chain.Insert(chainz.After("auth"), "audit", fn)     // after the last "auth"
//	chain.Insert(chainz.Before("render"), "minify", fn) // before the first "render"
//
// When both an after and a before key resolve, after wins. Keys that
// match nothing fall back to appending; that is not an error.
type Position struct {
	after     Key
	before    Key
	index     int
	hasIndex  bool
	hasAfter  bool
	hasBefore bool
}

// At positions the entry at a literal index with slice-splice
// semantics: a negative index counts back from the end, and indexes
// past either end are clamped.
func At(index int) Position {
	return Position{index: index, hasIndex: true}
}

// After positions the entry immediately after the last entry with key.
func After(key Key) Position {
	return Position{after: key, hasAfter: true}
}

// Before positions the entry immediately before the first entry with key.
func Before(key Key) Position {
	return Position{before: key, hasBefore: true}
}

// Between combines After and Before. The after key takes priority.
func Between(after, before Key) Position {
	return Position{after: after, before: before, hasAfter: true, hasBefore: true}
}

// resolvePosition returns the insertion index of p within entries.
func resolvePosition[T, R any](p Position, entries []*entry[T, R]) int {
	n := len(entries)

	if p.hasIndex {
		i := p.index
		if i < 0 {
			i += n
			if i < 0 {
				i = 0
			}
		}
		if i > n {
			i = n
		}
		return i
	}

	afterIdx, beforeIdx := -1, -1
	for i, e := range entries {
		if p.hasAfter && e.key == p.after {
			afterIdx = i + 1
		}
		if p.hasBefore && beforeIdx < 0 && e.key == p.before {
			beforeIdx = i
		}
	}

	switch {
	case afterIdx >= 0:
		return afterIdx
	case beforeIdx >= 0:
		return beforeIdx
	default:
		return n
	}
}
