// Package message defines the platform-agnostic data contract between the
// chat channel and the bridge. It covers chat classification, senders,
// attachments, and mention metadata.
package message

// ChatKind indicates the kind of conversation.
type ChatKind string

const (
	// ChatDirect is a one-to-one conversation with the bot.
	ChatDirect ChatKind = "direct"
	// ChatGroup is a multi-participant group conversation.
	ChatGroup ChatKind = "group"
)

// AttachmentKind discriminates the media variant carried by an Attachment.
type AttachmentKind string

// Supported attachment kinds.
const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
	AttachmentAudio AttachmentKind = "audio"
)

// Sender identifies the author of an inbound message.
type Sender struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID    string   `json:"id"`
	Kind  ChatKind `json:"kind"`
	Title string   `json:"title,omitempty"`
}

// IsGroup reports whether the chat is a group conversation.
func (c Chat) IsGroup() bool {
	return c.Kind == ChatGroup
}

// IsDirect reports whether the chat is a direct conversation.
func (c Chat) IsDirect() bool {
	return c.Kind == ChatDirect
}

// Attachment is one media reference attached to a message. The Key is an
// opaque platform resource key; the bridge never downloads it.
type Attachment struct {
	Kind AttachmentKind `json:"kind"`
	Key  string         `json:"key"`
}

// Target is a tagged union addressing an outbound destination. Exactly one
// of Direct or Group must be set.
type Target struct {
	Direct string `json:"direct,omitempty"`
	Group  string `json:"group,omitempty"`
}

// Chat resolves the target into a Chat value.
func (t Target) Chat() Chat {
	if t.Direct != "" {
		return Chat{ID: t.Direct, Kind: ChatDirect}
	}
	return Chat{ID: t.Group, Kind: ChatGroup}
}

// IsValid reports whether exactly one arm of the union is set.
func (t Target) IsValid() bool {
	return (t.Direct != "") != (t.Group != "")
}
