package lark

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/flemzord/larkbridge/pkg/message"
)

// mentionKeyPattern matches Lark mention placeholders left in message text
// after the platform substitutes @-mentions (@_user_1, @_all, ...).
var mentionKeyPattern = regexp.MustCompile(` ?@_(?:user_\d+|all)`)

// normalizer converts raw Lark message events into the canonical inbound
// contract and applies the admission policy.
type normalizer struct {
	botOpenID      string
	requireMention bool
	voice          bool
	channelName    string
}

// eventID extracts the dedup identifier: the v2 event header id, falling
// back to the message id. Events without either cannot be deduplicated.
func eventID(event *larkim.P2MessageReceiveV1) string {
	if event.EventV2Base != nil && event.EventV2Base.Header != nil && event.EventV2Base.Header.EventID != "" {
		return event.EventV2Base.Header.EventID
	}
	if event.Event != nil && event.Event.Message != nil {
		return stringValue(event.Event.Message.MessageId)
	}
	return ""
}

// normalize converts one message event. The second return is false when the
// event is inadmissible: malformed, self-originated, gated by the mention
// policy, or empty after parsing. Rejections are silent by contract.
func (n *normalizer) normalize(event *larkim.P2MessageReceiveV1) (message.InboundMessage, bool) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return message.InboundMessage{}, false
	}
	raw := event.Event.Message
	sender := event.Event.Sender

	chatID := stringValue(raw.ChatId)
	if chatID == "" {
		return message.InboundMessage{}, false
	}

	// Self-origin check: the bot must never answer itself.
	senderID := extractSenderID(sender)
	if sender != nil && stringValue(sender.SenderType) == "app" {
		return message.InboundMessage{}, false
	}
	if n.botOpenID != "" && senderID == n.botOpenID {
		return message.InboundMessage{}, false
	}

	kind := message.ChatGroup
	if stringValue(raw.ChatType) == "p2p" {
		kind = message.ChatDirect
	}

	mentionsBot := n.mentionsBot(raw.Mentions)
	if kind == message.ChatGroup && n.requireMention && !mentionsBot {
		return message.InboundMessage{}, false
	}

	text, attachments := n.parseContent(raw)

	msg := message.InboundMessage{
		EventID:     eventID(event),
		Channel:     n.channelName,
		Sender:      message.Sender{ID: senderID},
		Chat:        message.Chat{ID: chatID, Kind: kind},
		Text:        text,
		MentionsBot: mentionsBot,
		Attachments: attachments,
		ReceivedAt:  time.Now(),
	}
	if msg.IsEmpty() {
		return message.InboundMessage{}, false
	}
	return msg, true
}

// mentionsBot reports whether any mention targets the bot's open id.
func (n *normalizer) mentionsBot(mentions []*larkim.MentionEvent) bool {
	if n.botOpenID == "" {
		return false
	}
	for _, m := range mentions {
		if m == nil || m.Id == nil {
			continue
		}
		if stringValue(m.Id.OpenId) == n.botOpenID {
			return true
		}
	}
	return false
}

// parseContent extracts text and attachments according to the declared
// message type. Unknown types yield a generic placeholder label so the
// conversation still shows something happened.
func (n *normalizer) parseContent(raw *larkim.EventMessage) (string, []message.Attachment) {
	content := stringValue(raw.Content)
	msgType := stringValue(raw.MessageType)

	switch msgType {
	case "text":
		return stripMentions(parseTextContent(content)), nil

	case "post":
		return stripMentions(parsePostContent(content)), nil

	case "image":
		key := parseResourceKey(content, "image_key")
		var atts []message.Attachment
		if key != "" {
			atts = append(atts, message.Attachment{Kind: message.AttachmentImage, Key: key})
		}
		return "[image]", atts

	case "file":
		key := parseResourceKey(content, "file_key")
		var atts []message.Attachment
		if key != "" {
			atts = append(atts, message.Attachment{Kind: message.AttachmentFile, Key: key})
		}
		return "[file]", atts

	case "audio":
		var atts []message.Attachment
		if n.voice {
			if key := parseResourceKey(content, "file_key"); key != "" {
				atts = append(atts, message.Attachment{Kind: message.AttachmentAudio, Key: key})
			}
		}
		return "[audio]", atts

	default:
		if msgType == "" {
			return "", nil
		}
		return "[" + msgType + "]", nil
	}
}

// parseTextContent decodes the modern `{"text": ...}` payload, falling back
// to the raw content for legacy events that carry bare text.
func parseTextContent(content string) string {
	if content == "" {
		return ""
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err == nil && payload.Text != "" {
		return payload.Text
	}
	return content
}

// parsePostContent flattens a rich-text post into plain text: text runs are
// concatenated, paragraphs separated by newlines, other tags skipped.
func parsePostContent(content string) string {
	var post struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag  string `json:"tag"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &post); err != nil {
		return content
	}

	var lines []string
	if post.Title != "" {
		lines = append(lines, post.Title)
	}
	for _, para := range post.Content {
		var b strings.Builder
		for _, run := range para {
			if run.Tag == "text" || run.Tag == "a" {
				b.WriteString(run.Text)
			}
		}
		if b.Len() > 0 {
			lines = append(lines, b.String())
		}
	}
	return strings.Join(lines, "\n")
}

// parseResourceKey extracts a single key field from a JSON content payload.
func parseResourceKey(content, field string) string {
	var payload map[string]string
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return ""
	}
	return payload[field]
}

// stripMentions removes mention placeholder tokens (with the space that
// precedes a mid-sentence mention) and trims the residual whitespace.
func stripMentions(text string) string {
	return strings.TrimSpace(mentionKeyPattern.ReplaceAllString(text, ""))
}

// extractSenderID prefers the open id, then union and user ids.
func extractSenderID(sender *larkim.EventSender) string {
	if sender == nil || sender.SenderId == nil {
		return ""
	}
	if id := stringValue(sender.SenderId.OpenId); id != "" {
		return id
	}
	if id := stringValue(sender.SenderId.UnionId); id != "" {
		return id
	}
	return stringValue(sender.SenderId.UserId)
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
