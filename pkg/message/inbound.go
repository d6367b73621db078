package message

import "time"

// InboundMessage is the canonical representation of one admissible chat
// event. It is constructed exactly once per unique event id by the channel's
// normalizer and is immutable afterward.
type InboundMessage struct {
	// EventID is the platform-assigned event identifier. Unique per
	// emission, but the platform may redeliver the same event.
	EventID string `json:"event_id"`

	// Channel is the module ID of the channel that produced the message
	// (e.g. "channel.lark").
	Channel string `json:"channel"`

	Sender Sender `json:"sender"`
	Chat   Chat   `json:"chat"`

	// Text is the message text with mention markup already stripped.
	Text string `json:"text"`

	// MentionsBot is true when the bot itself was mentioned.
	MentionsBot bool `json:"mentions_bot,omitempty"`

	// Attachments lists media references in platform order.
	Attachments []Attachment `json:"attachments,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// IsGroup reports whether the message was sent in a group chat.
func (m *InboundMessage) IsGroup() bool {
	return m.Chat.IsGroup()
}

// HasAttachments reports whether the message carries any media references.
func (m *InboundMessage) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// IsEmpty reports whether the message carries neither text nor attachments.
// Empty messages are dropped by the normalizer and must never reach the
// bridge.
func (m *InboundMessage) IsEmpty() bool {
	return m.Text == "" && len(m.Attachments) == 0
}
