package channel

import "sync"

// Deduplicator guards at-most-once processing per event identifier within a
// retention window. The window is cleared wholesale by a periodic job rather
// than per-id TTL eviction: reset is O(1) and the accepted cost is that a
// retransmission straddling a reset boundary may be admitted twice.
// Safe for concurrent use.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		seen: make(map[string]struct{}),
	}
}

// Admit records id and reports whether it is new in the current window.
// It returns true for first-seen ids and false for duplicates. Events
// without an identifier cannot be deduplicated and are always admitted.
func (d *Deduplicator) Admit(id string) bool {
	if id == "" {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, dup := d.seen[id]; dup {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}

// Reset clears the entire window.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{})
}

// Len returns the number of ids recorded in the current window.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
