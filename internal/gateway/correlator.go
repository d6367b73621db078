package gateway

import (
	"fmt"
	"sync"
)

// Result is the terminal outcome of one pending request: exactly one of
// Frame or Err is set.
type Result struct {
	Frame *Frame
	Err   error
}

// Correlator matches response frames to in-flight requests by ID and
// guarantees each request completes exactly once: a response, a timeout
// rejection, or a cancellation — whichever lands first wins, the rest are
// no-ops. Safe for concurrent use.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]chan Result
}

// NewCorrelator creates an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{
		pending: make(map[string]chan Result),
	}
}

// Register adds id to the pending table before the request is written to
// the wire (register-then-send). The returned channel delivers exactly one
// Result.
func (c *Correlator) Register(id string) (<-chan Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	ch := make(chan Result, 1)
	c.pending[id] = ch
	return ch, nil
}

// Resolve delivers a response frame to the request with a matching ID and
// removes it from the table. It reports whether a pending request was
// completed; late or unknown responses return false and have no effect.
func (c *Correlator) Resolve(frame *Frame) bool {
	ch, ok := c.take(frame.ID)
	if !ok {
		return false
	}
	ch <- Result{Frame: frame}
	return true
}

// Reject completes the request with err and removes it from the table.
// Returns false if the request already completed.
func (c *Correlator) Reject(id string, err error) bool {
	ch, ok := c.take(id)
	if !ok {
		return false
	}
	ch <- Result{Err: err}
	return true
}

// RejectAll completes every pending request with err and empties the table.
// Called when the connection drops so no caller is left waiting silently.
func (c *Correlator) RejectAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, ch := range c.pending {
		ch <- Result{Err: err}
		delete(c.pending, id)
	}
}

// Len returns the number of in-flight requests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) take(id string) (chan Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return ch, ok
}
