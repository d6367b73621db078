package bridge

import "sync"

// LaneLock provides per-conversation serialization: turns within one
// conversation are processed one at a time while different conversations
// proceed concurrently.
//
// A global mutex protects the lane map and is held only briefly to look up
// or create the per-conversation mutex; each lane then locks independently.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[ConversationKey]*lane
}

// lane holds per-conversation synchronization metadata. refs counts
// goroutines holding or waiting on the lane; stale marks lanes eligible
// for cleanup once refs drops to zero.
type lane struct {
	mu    sync.Mutex
	refs  int
	stale bool
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{
		lanes: make(map[ConversationKey]*lane),
	}
}

// Acquire gets or creates the per-conversation mutex and locks it.
// The caller must call Release with the same key when done.
func (l *LaneLock) Acquire(key ConversationKey) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{}
		l.lanes[key] = ln
	}
	ln.refs++
	ln.stale = false
	l.mu.Unlock()

	// Lock outside the global mutex so other conversations are not blocked.
	ln.mu.Lock()
}

// Release unlocks the per-conversation mutex for the given key.
func (l *LaneLock) Release(key ConversationKey) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	ln.refs--
	if ln.refs == 0 && ln.stale {
		delete(l.lanes, key)
	}
	l.mu.Unlock()

	ln.mu.Unlock()
}

// Cleanup removes lane entries for conversations that are no longer live.
// activeKeys should contain only the keys of current conversations.
func (l *LaneLock) Cleanup(activeKeys map[ConversationKey]struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, ln := range l.lanes {
		if _, active := activeKeys[key]; !active {
			ln.stale = true
			if ln.refs == 0 {
				delete(l.lanes, key)
			}
			continue
		}
		ln.stale = false
	}
}
