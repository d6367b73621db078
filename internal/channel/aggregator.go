package channel

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/flemzord/larkbridge/pkg/message"
)

// DefaultDivider visually separates successive partial payloads inside a
// streaming card.
const DefaultDivider = "\n\n---\n\n"

// AggregatorConfig controls how a ReplyAggregator renders one turn's reply.
type AggregatorConfig struct {
	// Streaming selects card rendering when the channel supports it.
	Streaming bool

	// ChunkLimit bounds each outbound text message. Zero means
	// DefaultChunkLimit.
	ChunkLimit int

	// Divider separates partial payloads in the card. Empty means
	// DefaultDivider.
	Divider string

	// OnFirstContent, if set, runs once before the first chunked text or
	// media send of the turn. The router uses it to remove the working
	// placeholder.
	OnFirstContent func(ctx context.Context)
}

// ReplyAggregator turns a backend reply — zero or more partial payloads
// followed by a completion signal — into outbound sends for one turn.
//
// In streaming mode it maintains a single live card: partials are appended
// to the accumulated text and the card is patched in place; the final patch
// marks it complete. If any card call fails the aggregator degrades to
// chunked text for the remainder of the turn and flushes what the card had
// accumulated. In non-streaming mode every payload is segmented and sent as
// ordered text messages.
//
// A turn runs on a single worker; the aggregator is not safe for concurrent
// use.
type ReplyAggregator struct {
	chat   message.Chat
	sender TextSender
	cards  CardEditor
	cfg    AggregatorConfig
	logger *slog.Logger

	cardID     string
	parts      []string
	degraded   bool
	done       bool
	contentOut bool
	delivered  bool
}

// NewReplyAggregator creates an aggregator for one turn addressed to chat.
// Pass a nil cards editor when the channel has no card support; streaming
// is then ignored.
func NewReplyAggregator(chat message.Chat, sender TextSender, cards CardEditor, cfg AggregatorConfig, logger *slog.Logger) *ReplyAggregator {
	if cfg.ChunkLimit <= 0 {
		cfg.ChunkLimit = DefaultChunkLimit
	}
	if cfg.Divider == "" {
		cfg.Divider = DefaultDivider
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ReplyAggregator{
		chat:   chat,
		sender: sender,
		cards:  cards,
		cfg:    cfg,
		logger: logger,
	}
}

// AdoptCard seeds the aggregator with an existing card, typically the
// working placeholder, so the first partial patches it instead of creating
// a second artifact.
func (a *ReplyAggregator) AdoptCard(cardID string) {
	a.cardID = cardID
}

// Partial renders one partial payload. Empty payloads are ignored.
func (a *ReplyAggregator) Partial(ctx context.Context, text string) error {
	if a.done {
		return ErrTurnDone
	}
	if text == "" {
		return nil
	}

	if !a.streamingActive() {
		return a.sendChunks(ctx, text)
	}

	a.parts = append(a.parts, text)
	joined := strings.Join(a.parts, a.cfg.Divider)

	var err error
	if a.cardID == "" {
		a.cardID, err = a.cards.CreateCard(ctx, a.chat, joined)
	} else {
		err = a.cards.PatchCard(ctx, a.cardID, joined, false)
	}
	if err == nil {
		a.delivered = true
		return nil
	}
	return a.degrade(ctx, joined, err)
}

// Final renders the completion payload and closes the turn. In streaming
// mode the card receives one last patch marking it complete; afterwards any
// further payload returns ErrTurnDone.
func (a *ReplyAggregator) Final(ctx context.Context, text string) error {
	if a.done {
		return ErrTurnDone
	}
	a.done = true

	if !a.streamingActive() {
		if text == "" {
			return nil
		}
		return a.sendChunks(ctx, text)
	}

	if text != "" {
		a.parts = append(a.parts, text)
	}
	joined := strings.Join(a.parts, a.cfg.Divider)
	if joined == "" {
		return nil
	}

	var err error
	if a.cardID == "" {
		// The whole reply arrived in the final payload.
		a.cardID, err = a.cards.CreateCard(ctx, a.chat, joined)
	}
	if err == nil {
		err = a.cards.PatchCard(ctx, a.cardID, joined, true)
	}
	if err == nil {
		a.delivered = true
		return nil
	}
	return a.degrade(ctx, joined, err)
}

// Media sends a media payload for the turn. Callers send media before the
// text of the same turn.
func (a *ReplyAggregator) Media(ctx context.Context, url string) error {
	if a.done {
		return ErrTurnDone
	}
	a.notifyFirstContent(ctx)
	if err := a.sender.Send(ctx, message.OutboundMessage{Chat: a.chat, MediaURL: url}); err != nil {
		return err
	}
	a.delivered = true
	return nil
}

// Degraded reports whether the turn fell back from card rendering to
// chunked text.
func (a *ReplyAggregator) Degraded() bool {
	return a.degraded
}

// Delivered reports whether any content reached the platform this turn.
// The router uses it to decide whether a dangling placeholder should be
// cleaned up after a failed turn.
func (a *ReplyAggregator) Delivered() bool {
	return a.delivered
}

// CardID returns the live card identifier, or "" when no card exists.
func (a *ReplyAggregator) CardID() string {
	return a.cardID
}

func (a *ReplyAggregator) streamingActive() bool {
	return a.cfg.Streaming && !a.degraded && a.cards != nil
}

// degrade switches the turn to chunked text permanently and flushes what the
// card had accumulated. No retry is attempted against the failing card
// endpoint.
func (a *ReplyAggregator) degrade(ctx context.Context, accumulated string, cause error) error {
	a.degraded = true
	a.parts = nil
	a.logger.Warn("card update failed, degrading to chunked text",
		"chat", a.chat.ID,
		"error", cause,
	)
	return a.sendChunks(ctx, accumulated)
}

func (a *ReplyAggregator) sendChunks(ctx context.Context, text string) error {
	a.notifyFirstContent(ctx)
	for _, chunk := range Segment(text, a.cfg.ChunkLimit) {
		out := message.NewTextMessage(a.chat, chunk)
		if err := a.sender.Send(ctx, out); err != nil {
			return err
		}
		a.delivered = true
	}
	return nil
}

func (a *ReplyAggregator) notifyFirstContent(ctx context.Context) {
	if a.contentOut {
		return
	}
	a.contentOut = true
	if a.cfg.OnFirstContent != nil {
		a.cfg.OnFirstContent(ctx)
	}
}
