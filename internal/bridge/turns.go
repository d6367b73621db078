package bridge

import (
	"sync"

	"github.com/flemzord/larkbridge/internal/gateway"
)

// streamBuffer bounds each turn's event queue. The gateway delivers deltas
// far slower than the worker consumes them; overflow means the worker is
// stuck in a send and the event is dropped rather than blocking the
// session's read loop.
const streamBuffer = 32

// turnRegistry fans gateway stream events out to the worker goroutine
// running the matching turn, keyed by run ID. Safe for concurrent use.
type turnRegistry struct {
	mu    sync.Mutex
	turns map[string]chan gateway.StreamEvent
}

func newTurnRegistry() *turnRegistry {
	return &turnRegistry{
		turns: make(map[string]chan gateway.StreamEvent),
	}
}

// register creates the event queue for a run. The caller must call
// unregister with the same run ID when the turn ends.
func (r *turnRegistry) register(runID string) <-chan gateway.StreamEvent {
	ch := make(chan gateway.StreamEvent, streamBuffer)
	r.mu.Lock()
	r.turns[runID] = ch
	r.mu.Unlock()
	return ch
}

func (r *turnRegistry) unregister(runID string) {
	r.mu.Lock()
	delete(r.turns, runID)
	r.mu.Unlock()
}

// dispatch forwards a stream event to its turn. It reports false when the
// run is unknown (turn already ended) or the queue is full.
func (r *turnRegistry) dispatch(ev gateway.StreamEvent) bool {
	r.mu.Lock()
	ch, ok := r.turns[ev.RunID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

// len returns the number of turns currently in flight.
func (r *turnRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}
