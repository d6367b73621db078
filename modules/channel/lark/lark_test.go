package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/flemzord/larkbridge/internal/channel"
	"github.com/flemzord/larkbridge/pkg/message"
)

// fakeAPI records api calls and allows error injection.
type fakeAPI struct {
	mu       sync.Mutex
	texts    []string
	cards    []string
	patches  []string
	deleted  []string
	images   []string
	nextID   int
	uploaded string

	SendTextErr    error
	UploadImageErr error
	PatchCardErr   error
}

func (f *fakeAPI) id() string {
	f.nextID++
	return fmt.Sprintf("om_%d", f.nextID)
}

func (f *fakeAPI) SendText(_ context.Context, _ string, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendTextErr != nil {
		return "", f.SendTextErr
	}
	f.texts = append(f.texts, text)
	return f.id(), nil
}

func (f *fakeAPI) SendCard(_ context.Context, _ string, card string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards = append(f.cards, card)
	return f.id(), nil
}

func (f *fakeAPI) PatchCard(_ context.Context, _ string, card string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PatchCardErr != nil {
		return f.PatchCardErr
	}
	f.patches = append(f.patches, card)
	return nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) SendImage(_ context.Context, _ string, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, key)
	return f.id(), nil
}

func (f *fakeAPI) UploadImage(_ context.Context, r io.Reader) (string, error) {
	if f.UploadImageErr != nil {
		return "", f.UploadImageErr
	}
	_, _ = io.Copy(io.Discard, r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = "img_key_1"
	return f.uploaded, nil
}

func (f *fakeAPI) BotInfo(_ context.Context) (string, string, error) {
	return botID, "bridge-bot", nil
}

func newTestLark(t *testing.T, mutate func(*Config)) (*Lark, *fakeAPI) {
	t.Helper()

	cfg := Config{
		AppID:       "cli_app",
		AppSecret:   "secret",
		Placeholder: "Working…",
	}
	cfg.defaults()
	if mutate != nil {
		mutate(&cfg)
	}

	api := &fakeAPI{}
	l := &Lark{
		config: cfg,
		api:    api,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		dedup:  channel.NewDeduplicator(),
	}
	l.norm = &normalizer{
		botOpenID:      botID,
		requireMention: *cfg.RequireMention,
		voice:          cfg.Voice,
		channelName:    "channel.lark",
	}
	l.allowList = channel.NewAllowList(cfg.AllowSenders, cfg.AllowChats)
	return l, api
}

func TestSend_SegmentsLongText(t *testing.T) {
	t.Parallel()

	l, api := newTestLark(t, func(c *Config) { c.ChunkLimit = 10 })

	msg := message.NewTextMessage(message.Chat{ID: "oc_1"}, strings.Repeat("x", 25))
	if err := l.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(api.texts) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(api.texts))
	}
	if got := strings.Join(api.texts, ""); got != strings.Repeat("x", 25) {
		t.Errorf("chunks do not reassemble the input: %q", got)
	}
}

func TestSend_EmptyChatID(t *testing.T) {
	t.Parallel()

	l, _ := newTestLark(t, nil)
	err := l.Send(context.Background(), message.NewTextMessage(message.Chat{}, "hi"))
	if err == nil {
		t.Fatal("expected error for empty chat ID")
	}
}

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestSend_MediaUploadFallsBackToLink(t *testing.T) {
	t.Parallel()

	l, api := newTestLark(t, nil)
	l.httpCli = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("host unreachable")
	})}

	msg := message.OutboundMessage{
		Chat:     message.Chat{ID: "oc_1"},
		MediaURL: "https://example.com/diagram.png",
	}
	if err := l.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(api.texts) != 1 || api.texts[0] != "https://example.com/diagram.png" {
		t.Fatalf("expected link fallback text, got %v", api.texts)
	}
}

func TestPlaceholder_StreamingUsesCard(t *testing.T) {
	t.Parallel()

	l, api := newTestLark(t, nil)

	id, err := l.SendPlaceholder(context.Background(), message.Chat{ID: "oc_1"})
	if err != nil {
		t.Fatalf("SendPlaceholder: %v", err)
	}
	if id == "" {
		t.Fatal("expected placeholder id")
	}
	if len(api.cards) != 1 {
		t.Fatalf("expected 1 card, got %d cards / %d texts", len(api.cards), len(api.texts))
	}
	if !strings.Contains(api.cards[0], "Working…") {
		t.Errorf("card missing placeholder text: %s", api.cards[0])
	}
}

func TestPlaceholder_NonStreamingUsesText(t *testing.T) {
	t.Parallel()

	l, api := newTestLark(t, func(c *Config) {
		v := false
		c.Streaming = &v
	})

	if _, err := l.SendPlaceholder(context.Background(), message.Chat{ID: "oc_1"}); err != nil {
		t.Fatalf("SendPlaceholder: %v", err)
	}
	if len(api.texts) != 1 || len(api.cards) != 0 {
		t.Fatalf("expected plain text placeholder, got %d texts / %d cards", len(api.texts), len(api.cards))
	}
}

func TestPlaceholder_DisabledBySilentNoop(t *testing.T) {
	t.Parallel()

	l, api := newTestLark(t, func(c *Config) { c.Placeholder = "" })

	id, err := l.SendPlaceholder(context.Background(), message.Chat{ID: "oc_1"})
	if err != nil || id != "" {
		t.Fatalf("disabled placeholder should be a silent no-op, got id=%q err=%v", id, err)
	}
	if len(api.texts)+len(api.cards) != 0 {
		t.Error("nothing should have been sent")
	}
}

func TestPatchCard_CompleteSwitchesTemplate(t *testing.T) {
	t.Parallel()

	l, api := newTestLark(t, nil)

	if err := l.PatchCard(context.Background(), "om_1", "partial", false); err != nil {
		t.Fatalf("PatchCard: %v", err)
	}
	if err := l.PatchCard(context.Background(), "om_1", "done", true); err != nil {
		t.Fatalf("PatchCard complete: %v", err)
	}

	if len(api.patches) != 2 {
		t.Fatalf("expected 2 patches, got %d", len(api.patches))
	}
	if !strings.Contains(api.patches[0], "Working…") {
		t.Error("in-progress patch should carry the working header")
	}
	if strings.Contains(api.patches[1], "Working…") {
		t.Error("complete patch must drop the working header")
	}

	var doc cardDoc
	if err := json.Unmarshal([]byte(api.patches[1]), &doc); err != nil {
		t.Fatalf("complete card is not valid JSON: %v", err)
	}
	if len(doc.Elements) != 1 || doc.Elements[0].Text.Content != "done" {
		t.Errorf("unexpected card body %+v", doc)
	}
}

func TestSupportsCards_FollowsConfig(t *testing.T) {
	t.Parallel()

	l, _ := newTestLark(t, nil)
	if !l.SupportsCards() {
		t.Error("streaming default should enable cards")
	}

	off, _ := newTestLark(t, func(c *Config) {
		v := false
		c.Streaming = &v
	})
	if off.SupportsCards() {
		t.Error("streaming disabled should disable cards")
	}
}

func TestHandleEvent_DedupAndDelivery(t *testing.T) {
	t.Parallel()

	l, _ := newTestLark(t, nil)

	var mu sync.Mutex
	var delivered []message.InboundMessage
	l.SetInbox(func(msg message.InboundMessage) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, msg)
		return nil
	})

	ev := buildEvent(eventOpts{
		eventID:  "ev-dup",
		content:  `{"text":"hello @_user_1"}`,
		mentions: []*larkim.MentionEvent{botMention()},
	})

	l.handleEvent(ev)
	l.handleEvent(ev) // platform redelivery

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", len(delivered))
	}
	if delivered[0].Text != "hello" {
		t.Errorf("text = %q, want %q", delivered[0].Text, "hello")
	}
}

func TestHandleEvent_AllowListFilters(t *testing.T) {
	t.Parallel()

	l, _ := newTestLark(t, func(c *Config) {
		c.AllowSenders = []string{"ou_other"}
	})

	var delivered int
	l.SetInbox(func(message.InboundMessage) error {
		delivered++
		return nil
	})

	l.handleEvent(buildEvent(eventOpts{
		eventID:  "ev-denied",
		content:  `{"text":"hi"}`,
		mentions: []*larkim.MentionEvent{botMention()},
	}))

	if delivered != 0 {
		t.Fatalf("denied sender must not reach the inbox, got %d deliveries", delivered)
	}
}

func TestResetDedup(t *testing.T) {
	t.Parallel()

	l, _ := newTestLark(t, nil)
	l.dedup.Admit("a")
	l.dedup.Admit("b")

	if n := l.ResetDedup(); n != 2 {
		t.Fatalf("ResetDedup = %d, want 2", n)
	}
	if !l.dedup.Admit("a") {
		t.Error("entry should be admitted again after reset")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", nil, false},
		{"missing app_id", func(c *Config) { c.AppID = "" }, true},
		{"missing app_secret", func(c *Config) { c.AppSecret = "" }, true},
		{"chunk limit too small", func(c *Config) { c.ChunkLimit = -1 }, true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Config{AppID: "cli_app", AppSecret: "secret"}
			cfg.defaults()
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			err := cfg.validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
