package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryConversationStore is a concurrency-safe, in-memory
// ConversationStore. The `now` function is injectable for deterministic
// testing.
type InMemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[ConversationKey]*Conversation

	// maxConversations caps live conversations. Zero means unlimited.
	maxConversations int

	now func() time.Time
}

// NewInMemoryConversationStore creates a ready-to-use store.
func NewInMemoryConversationStore() *InMemoryConversationStore {
	return &InMemoryConversationStore{
		conversations: make(map[ConversationKey]*Conversation),
		now:           time.Now,
	}
}

// SetMaxConversations caps live conversations. Zero means unlimited.
func (s *InMemoryConversationStore) SetMaxConversations(limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxConversations = limit
}

// GetOrCreate returns the existing conversation for key or creates one.
// When the cap is reached no conversation is created and (nil, false) is
// returned.
func (s *InMemoryConversationStore) GetOrCreate(key ConversationKey) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[key]; ok {
		return conv, false
	}

	if s.maxConversations > 0 && len(s.conversations) >= s.maxConversations {
		return nil, false
	}

	now := s.now()
	conv := &Conversation{
		ID:           uuid.New().String(),
		Key:          key,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.conversations[key] = conv
	return conv, true
}

// Get returns the conversation for key, or nil if none exists.
func (s *InMemoryConversationStore) Get(key ConversationKey) *Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversations[key]
}

// Touch updates LastActiveAt. No-op if the conversation does not exist.
func (s *InMemoryConversationStore) Touch(key ConversationKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[key]; ok {
		conv.LastActiveAt = s.now()
	}
}

// AppendExchange records a completed turn under the store lock so readers
// iterating with Range never observe a partial append.
func (s *InMemoryConversationStore) AppendExchange(key ConversationKey, ex Exchange, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key]
	if !ok {
		return
	}
	conv.AppendExchange(ex, limit)
	conv.LastActiveAt = s.now()
}

// Delete removes the conversation for key.
func (s *InMemoryConversationStore) Delete(key ConversationKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, key)
}

// Prune removes conversations idle longer than maxIdle and returns the
// number removed. Called periodically by the maintenance scheduler.
func (s *InMemoryConversationStore) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pruned := 0
	for key, conv := range s.conversations {
		if now.Sub(conv.LastActiveAt) > maxIdle {
			delete(s.conversations, key)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of live conversations.
func (s *InMemoryConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// Range calls fn for each conversation until fn returns false. The lock is
// held for the entire iteration — keep fn fast.
func (s *InMemoryConversationStore) Range(fn func(ConversationKey, *Conversation) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, conv := range s.conversations {
		if !fn(key, conv) {
			return
		}
	}
}

// ActiveKeys returns a snapshot of live conversation keys for lane cleanup.
func (s *InMemoryConversationStore) ActiveKeys() map[ConversationKey]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[ConversationKey]struct{}, len(s.conversations))
	for key := range s.conversations {
		keys[key] = struct{}{}
	}
	return keys
}
