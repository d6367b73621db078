package lark

import (
	"testing"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/flemzord/larkbridge/pkg/message"
)

const botID = "ou_bot"

func ptr(s string) *string { return &s }

type eventOpts struct {
	eventID    string
	messageID  string
	chatID     string
	chatType   string
	senderID   string
	senderType string
	msgType    string
	content    string
	mentions   []*larkim.MentionEvent
}

func buildEvent(o eventOpts) *larkim.P2MessageReceiveV1 {
	if o.chatID == "" {
		o.chatID = "oc_chat"
	}
	if o.chatType == "" {
		o.chatType = "group"
	}
	if o.senderID == "" {
		o.senderID = "ou_user"
	}
	if o.senderType == "" {
		o.senderType = "user"
	}
	if o.msgType == "" {
		o.msgType = "text"
	}

	ev := &larkim.P2MessageReceiveV1{
		Event: &larkim.P2MessageReceiveV1Data{
			Sender: &larkim.EventSender{
				SenderId:   &larkim.UserId{OpenId: ptr(o.senderID)},
				SenderType: ptr(o.senderType),
			},
			Message: &larkim.EventMessage{
				MessageId:   ptr(o.messageID),
				ChatId:      ptr(o.chatID),
				ChatType:    ptr(o.chatType),
				MessageType: ptr(o.msgType),
				Content:     ptr(o.content),
				Mentions:    o.mentions,
			},
		},
	}
	if o.eventID != "" {
		ev.EventV2Base = &larkevent.EventV2Base{
			Header: &larkevent.EventHeader{EventID: o.eventID},
		}
	}
	return ev
}

func botMention() *larkim.MentionEvent {
	return &larkim.MentionEvent{
		Key:  ptr("@_user_1"),
		Id:   &larkim.UserId{OpenId: ptr(botID)},
		Name: ptr("bridge-bot"),
	}
}

func newTestNormalizer() *normalizer {
	return &normalizer{
		botOpenID:      botID,
		requireMention: true,
		channelName:    "channel.lark",
	}
}

func TestNormalize_GroupTextWithMention(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	ev := buildEvent(eventOpts{
		eventID:  "ev-1",
		content:  `{"text":"hello @_user_1 world"}`,
		mentions: []*larkim.MentionEvent{botMention()},
	})

	msg, ok := n.normalize(ev)
	if !ok {
		t.Fatal("expected admission")
	}
	if msg.Text != "hello world" {
		t.Errorf("text = %q, want %q", msg.Text, "hello world")
	}
	if !msg.MentionsBot {
		t.Error("MentionsBot should be true")
	}
	if msg.EventID != "ev-1" || msg.Channel != "channel.lark" {
		t.Errorf("unexpected identity fields %+v", msg)
	}
	if msg.Chat.Kind != message.ChatGroup {
		t.Errorf("chat kind = %q, want group", msg.Chat.Kind)
	}
}

func TestNormalize_GroupWithoutMentionRejected(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	ev := buildEvent(eventOpts{content: `{"text":"hi"}`})

	if _, ok := n.normalize(ev); ok {
		t.Fatal("group message without bot mention must be rejected")
	}
}

func TestNormalize_MentionPolicyDisabled(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	n.requireMention = false
	ev := buildEvent(eventOpts{content: `{"text":"hi"}`})

	msg, ok := n.normalize(ev)
	if !ok {
		t.Fatal("expected admission with policy disabled")
	}
	if msg.MentionsBot {
		t.Error("MentionsBot should be false")
	}
}

func TestNormalize_DirectChatNeverGated(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	ev := buildEvent(eventOpts{chatType: "p2p", content: `{"text":"hi"}`})

	msg, ok := n.normalize(ev)
	if !ok {
		t.Fatal("direct chat must bypass the mention gate")
	}
	if msg.Chat.Kind != message.ChatDirect {
		t.Errorf("chat kind = %q, want direct", msg.Chat.Kind)
	}
}

func TestNormalize_SelfOriginRejected(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()

	byType := buildEvent(eventOpts{
		chatType: "p2p", senderType: "app", content: `{"text":"echo"}`,
	})
	if _, ok := n.normalize(byType); ok {
		t.Error("app-typed sender must be rejected")
	}

	byID := buildEvent(eventOpts{
		chatType: "p2p", senderID: botID, content: `{"text":"echo"}`,
	})
	if _, ok := n.normalize(byID); ok {
		t.Error("bot's own open id must be rejected")
	}
}

func TestNormalize_ContentKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		msgType  string
		content  string
		voice    bool
		wantText string
		wantAtts int
	}{
		{"image", "image", `{"image_key":"img_k"}`, false, "[image]", 1},
		{"file", "file", `{"file_key":"file_k"}`, false, "[file]", 1},
		{"audio without voice", "audio", `{"file_key":"aud_k"}`, false, "[audio]", 0},
		{"audio with voice", "audio", `{"file_key":"aud_k"}`, true, "[audio]", 1},
		{"unknown kind", "sticker", `{}`, false, "[sticker]", 0},
		{"legacy bare text", "text", "plain legacy", false, "plain legacy", 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			n := newTestNormalizer()
			n.requireMention = false
			n.voice = tc.voice
			ev := buildEvent(eventOpts{msgType: tc.msgType, content: tc.content})

			msg, ok := n.normalize(ev)
			if !ok {
				t.Fatal("expected admission")
			}
			if msg.Text != tc.wantText {
				t.Errorf("text = %q, want %q", msg.Text, tc.wantText)
			}
			if len(msg.Attachments) != tc.wantAtts {
				t.Errorf("attachments = %d, want %d", len(msg.Attachments), tc.wantAtts)
			}
		})
	}
}

func TestNormalize_PostContent(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	n.requireMention = false
	content := `{"title":"Report","content":[[{"tag":"text","text":"line one"}],[{"tag":"text","text":"line "},{"tag":"a","text":"two"}]]}`
	ev := buildEvent(eventOpts{msgType: "post", content: content})

	msg, ok := n.normalize(ev)
	if !ok {
		t.Fatal("expected admission")
	}
	want := "Report\nline one\nline two"
	if msg.Text != want {
		t.Errorf("text = %q, want %q", msg.Text, want)
	}
}

func TestNormalize_EmptyDropped(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	n.requireMention = false
	ev := buildEvent(eventOpts{content: `{"text":"  "}`})

	if _, ok := n.normalize(ev); ok {
		t.Fatal("whitespace-only message must be dropped")
	}
}

func TestEventID_HeaderThenMessageFallback(t *testing.T) {
	t.Parallel()

	withHeader := buildEvent(eventOpts{eventID: "ev-h", messageID: "om-1"})
	if got := eventID(withHeader); got != "ev-h" {
		t.Errorf("eventID = %q, want header id", got)
	}

	withoutHeader := buildEvent(eventOpts{messageID: "om-1"})
	if got := eventID(withoutHeader); got != "om-1" {
		t.Errorf("eventID = %q, want message id fallback", got)
	}
}

func TestStripMentions(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"hello @_user_1 world", "hello world"},
		{"@_user_1 leading", "leading"},
		{"trailing @_user_2", "trailing"},
		{"@_all everyone", "everyone"},
		{"no mentions here", "no mentions here"},
		{"line1\nline2", "line1\nline2"},
	}
	for _, tc := range cases {
		tc := tc
		if got := stripMentions(tc.in); got != tc.want {
			t.Errorf("stripMentions(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
