package chainz

// Handle refers to a single registered listener entry.
//
// Handles are returned by Add, AddNext, Insert and InsertNext. Remove(key)
// drops every entry sharing a key; a handle removes exactly one.
//
// Example:
//
//	h, err := chain.Add("audit", auditListener)
//	if err != nil {
//	    return err
//	}
//
//	// Later, drop only this listener
//	if err := h.Remove(); err != nil {
//	    log.Printf("failed to remove: %v", err)
//	}
type Handle struct {
	remove func() error
	ID     string
	Key    Key
}

// Remove drops the entry this handle was returned for.
//
// Returns:
//   - nil: entry removed
//   - ErrAlreadyRemoved: the handle was already used, or is the zero Handle
//   - ErrEntryNotFound: the entry was dropped some other way, e.g. Remove(key)
func (h *Handle) Remove() error {
	if h.remove == nil {
		return ErrAlreadyRemoved
	}
	err := h.remove()
	h.remove = nil
	return err
}
