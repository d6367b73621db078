package message

// OutboundMessage represents one message to be delivered to a platform.
type OutboundMessage struct {
	// Channel names the delivery channel (e.g. "lark"). The dispatcher uses
	// it to pick the registered channel; an empty value means the default.
	Channel string `json:"channel,omitempty"`

	Chat Chat `json:"chat"`

	// Text is the message body. Channels enforce their own length limit;
	// callers that may exceed it should segment first.
	Text string `json:"text,omitempty"`

	// MediaURL, when set, is fetched and uploaded by the channel. On upload
	// failure the channel falls back to sending the URL as text.
	MediaURL string `json:"media_url,omitempty"`
}

// NewTextMessage creates an outbound message carrying only text.
func NewTextMessage(chat Chat, text string) OutboundMessage {
	return OutboundMessage{Chat: chat, Text: text}
}

// HasMedia reports whether the message carries a media payload.
func (m *OutboundMessage) HasMedia() bool {
	return m.MediaURL != ""
}
