package message

import "testing"

func TestChatKindPredicates(t *testing.T) {
	t.Parallel()

	direct := Chat{ID: "u1", Kind: ChatDirect}
	if !direct.IsDirect() || direct.IsGroup() {
		t.Errorf("direct chat misclassified: %+v", direct)
	}

	group := Chat{ID: "g1", Kind: ChatGroup}
	if !group.IsGroup() || group.IsDirect() {
		t.Errorf("group chat misclassified: %+v", group)
	}
}

func TestTargetChat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target Target
		want   Chat
		valid  bool
	}{
		{"direct", Target{Direct: "ou_1"}, Chat{ID: "ou_1", Kind: ChatDirect}, true},
		{"group", Target{Group: "oc_1"}, Chat{ID: "oc_1", Kind: ChatGroup}, true},
		{"both set", Target{Direct: "a", Group: "b"}, Chat{}, false},
		{"neither set", Target{}, Chat{}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.target.IsValid(); got != tt.valid {
				t.Fatalf("IsValid() = %v, want %v", got, tt.valid)
			}
			if !tt.valid {
				return
			}
			if got := tt.target.Chat(); got != tt.want {
				t.Errorf("Chat() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInboundMessageIsEmpty(t *testing.T) {
	t.Parallel()

	empty := InboundMessage{EventID: "e1"}
	if !empty.IsEmpty() {
		t.Error("message without text or attachments should be empty")
	}

	withText := InboundMessage{EventID: "e2", Text: "hi"}
	if withText.IsEmpty() {
		t.Error("message with text should not be empty")
	}

	withMedia := InboundMessage{
		EventID:     "e3",
		Attachments: []Attachment{{Kind: AttachmentImage, Key: "img_v2_x"}},
	}
	if withMedia.IsEmpty() {
		t.Error("message with attachments should not be empty")
	}
	if !withMedia.HasAttachments() {
		t.Error("HasAttachments should be true")
	}
}
