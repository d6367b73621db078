package bridge

import (
	"time"

	"github.com/flemzord/larkbridge/pkg/message"
)

// ConversationKey uniquely identifies a conversation lane. Turns with the
// same key are serialized; turns with different keys run concurrently.
type ConversationKey struct {
	Channel  string
	ChatID   string
	SenderID string
}

// KeyFromMessage derives a ConversationKey from an inbound message.
func KeyFromMessage(msg message.InboundMessage) ConversationKey {
	return ConversationKey{
		Channel:  msg.Channel,
		ChatID:   msg.Chat.ID,
		SenderID: msg.Sender.ID,
	}
}

// Exchange is one completed turn retained in the conversation window.
type Exchange struct {
	UserText  string    `json:"user_text"`
	ReplyText string    `json:"reply_text"`
	At        time.Time `json:"at"`
}

// Conversation is the bounded in-memory state of one chat+sender pair.
// The backend holds the authoritative conversation history; this window
// exists for the ops surface and idle pruning.
type Conversation struct {
	ID           string          `json:"id"`
	Key          ConversationKey `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActiveAt time.Time       `json:"last_active_at"`
	History      []Exchange      `json:"history,omitempty"`
}

// AppendExchange records a completed turn, trimming the window to limit
// entries. A limit <= 0 keeps no history.
func (c *Conversation) AppendExchange(ex Exchange, limit int) {
	if limit <= 0 {
		return
	}
	c.History = append(c.History, ex)
	if excess := len(c.History) - limit; excess > 0 {
		c.History = c.History[excess:]
	}
}

// ConversationStore manages conversation lifecycle.
// Implementations must be safe for concurrent use.
type ConversationStore interface {
	// GetOrCreate returns an existing conversation or creates a new one.
	// The bool return indicates whether it was newly created.
	GetOrCreate(key ConversationKey) (*Conversation, bool)

	// Get returns the conversation for the key, or nil if none exists.
	Get(key ConversationKey) *Conversation

	// Touch updates the conversation's LastActiveAt timestamp.
	Touch(key ConversationKey)

	// Delete removes the conversation for the key.
	Delete(key ConversationKey)

	// Prune removes conversations idle longer than maxIdle and returns
	// how many were removed.
	Prune(maxIdle time.Duration) int

	// Len returns the number of live conversations.
	Len() int

	// Range calls fn for each conversation until fn returns false.
	Range(fn func(ConversationKey, *Conversation) bool)
}
