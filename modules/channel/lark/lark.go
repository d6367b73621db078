package lark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/larkbridge/internal/channel"
	"github.com/flemzord/larkbridge/internal/core"
	"github.com/flemzord/larkbridge/pkg/message"
)

func init() {
	core.RegisterModule(&Lark{})
}

// Compile-time interface guards.
var (
	_ channel.Channel            = (*Lark)(nil)
	_ channel.CardChannel        = (*Lark)(nil)
	_ channel.PlaceholderChannel = (*Lark)(nil)
	_ core.Configurable          = (*Lark)(nil)
	_ core.Provisioner           = (*Lark)(nil)
	_ core.Validator             = (*Lark)(nil)
	_ core.Starter               = (*Lark)(nil)
	_ core.Stopper               = (*Lark)(nil)
)

// Lark implements the Lark/Feishu channel module.
type Lark struct {
	config    Config
	api       api
	logger    *slog.Logger
	allowList *channel.AllowList
	dedup     *channel.Deduplicator
	inbox     func(message.InboundMessage) error
	norm      *normalizer
	httpCli   *http.Client

	wsClient *larkws.Client
	cancel   context.CancelFunc
}

// ModuleInfo implements core.Module.
func (l *Lark) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.lark",
		New: func() core.Module { return &Lark{} },
	}
}

// Configure implements core.Configurable.
func (l *Lark) Configure(node *yaml.Node) error {
	if err := node.Decode(&l.config); err != nil {
		return fmt.Errorf("lark: decode config: %w", err)
	}
	l.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (l *Lark) Provision(ctx *core.AppContext) error {
	l.logger = ctx.Logger
	l.api = newAPIClient(l.config.AppID, l.config.AppSecret)
	l.allowList = channel.NewAllowList(l.config.AllowSenders, l.config.AllowChats)
	l.dedup = channel.NewDeduplicator()
	l.httpCli = &http.Client{Timeout: 30 * time.Second}
	l.norm = &normalizer{
		requireMention: *l.config.RequireMention,
		voice:          l.config.Voice,
		channelName:    string(l.ModuleInfo().ID),
	}
	return nil
}

// Validate implements core.Validator.
func (l *Lark) Validate() error {
	return l.config.validate()
}

// Start implements core.Starter. It fetches the bot identity (needed for
// self-origin and mention checks), then opens the SDK event websocket.
func (l *Lark) Start() error {
	if l.inbox == nil {
		return errors.New("lark: inbox not set, call SetInbox before Start")
	}

	openID, name, err := l.api.BotInfo(context.Background())
	if err != nil {
		return fmt.Errorf("lark: bot info failed (check app credentials): %w", err)
	}
	l.norm.botOpenID = openID
	l.logger.Info("lark bot authenticated", "open_id", openID, "name", name)

	dispatcher := larkdispatcher.NewEventDispatcher(l.config.VerificationToken, l.config.EncryptKey).
		OnP2MessageReceiveV1(func(_ context.Context, event *larkim.P2MessageReceiveV1) error {
			// The SDK must ACK promptly or the platform redelivers; handle
			// off the event goroutine.
			go l.handleEvent(event)
			return nil
		})

	runCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.wsClient = larkws.NewClient(
		l.config.AppID,
		l.config.AppSecret,
		larkws.WithEventHandler(dispatcher),
	)

	go func() {
		l.logger.Info("lark event websocket starting")
		if err := l.wsClient.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("lark event websocket stopped", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper.
func (l *Lark) Stop(_ context.Context) error {
	l.logger.Info("lark channel stopping")
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.wsClient = nil
	return nil
}

// SetInbox implements channel.Channel.
func (l *Lark) SetInbox(fn func(msg message.InboundMessage) error) {
	l.inbox = fn
}

// ResetDedup clears the event dedup cache, returning the number of entries
// dropped. Called by the maintenance scheduler.
func (l *Lark) ResetDedup() int {
	n := l.dedup.Len()
	l.dedup.Reset()
	return n
}

// handleEvent runs the inbound pipeline for one raw event:
// dedup → allow-list → normalize → inbox.
func (l *Lark) handleEvent(event *larkim.P2MessageReceiveV1) {
	if !l.dedup.Admit(eventID(event)) {
		l.logger.Debug("lark: duplicate event dropped", "event_id", eventID(event))
		return
	}

	msg, ok := l.norm.normalize(event)
	if !ok {
		// Inadmissible by policy, not an error.
		return
	}
	if !l.allowList.IsAllowed(msg) {
		l.logger.Debug("lark: sender not in allow list",
			"sender_id", msg.Sender.ID,
			"chat_id", msg.Chat.ID,
		)
		return
	}

	if err := l.inbox(msg); err != nil {
		l.logger.Warn("lark: inbound message not accepted",
			"event_id", msg.EventID,
			"error", err,
		)
	}
}

// Send implements channel.Channel. Text beyond the configured limit is
// segmented into ordered chunks; media is uploaded with a text fallback
// carrying the link.
func (l *Lark) Send(ctx context.Context, msg message.OutboundMessage) error {
	if msg.Chat.ID == "" {
		return errors.New("lark: chat ID is empty")
	}

	if msg.HasMedia() {
		if err := l.sendMedia(ctx, msg.Chat.ID, msg.MediaURL); err != nil {
			l.logger.Warn("lark: media upload failed, sending link instead",
				"chat_id", msg.Chat.ID,
				"error", err,
			)
			if _, err := l.api.SendText(ctx, msg.Chat.ID, msg.MediaURL); err != nil {
				return err
			}
		}
	}

	for _, chunk := range channel.Segment(msg.Text, l.config.ChunkLimit) {
		if _, err := l.api.SendText(ctx, msg.Chat.ID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendMedia fetches the media URL and uploads it as an image message.
func (l *Lark) sendMedia(ctx context.Context, chatID, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("lark: media request: %w", err)
	}
	resp, err := l.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("lark: fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lark: fetch media: unexpected status %d", resp.StatusCode)
	}

	// Bound the upload: the platform rejects images over 10MB anyway.
	key, err := l.api.UploadImage(ctx, io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return err
	}
	_, err = l.api.SendImage(ctx, chatID, key)
	return err
}

// SupportsCards implements channel.CardChannel.
func (l *Lark) SupportsCards() bool {
	return *l.config.Streaming
}

// CreateCard implements channel.CardChannel.
func (l *Lark) CreateCard(ctx context.Context, chat message.Chat, text string) (string, error) {
	return l.api.SendCard(ctx, chat.ID, progressCard(text))
}

// PatchCard implements channel.CardChannel.
func (l *Lark) PatchCard(ctx context.Context, cardID, text string, complete bool) error {
	card := progressCard(text)
	if complete {
		card = completeCard(text)
	}
	return l.api.PatchCard(ctx, cardID, card)
}

// SendPlaceholder implements channel.PlaceholderChannel. In streaming mode
// the placeholder is a card so the reply can adopt and patch it in place;
// otherwise it is a plain message removed when content arrives.
func (l *Lark) SendPlaceholder(ctx context.Context, chat message.Chat) (string, error) {
	if l.config.Placeholder == "" {
		// Disabled by config; not an error, the turn proceeds without one.
		return "", nil
	}
	if l.SupportsCards() {
		return l.api.SendCard(ctx, chat.ID, progressCard(l.config.Placeholder))
	}
	return l.api.SendText(ctx, chat.ID, l.config.Placeholder)
}

// RemovePlaceholder implements channel.PlaceholderChannel.
func (l *Lark) RemovePlaceholder(ctx context.Context, id string) error {
	return l.api.DeleteMessage(ctx, id)
}
