// Package channel defines the bridge between messaging platforms and the
// turn router. It provides the Channel interface, event deduplication, text
// segmentation, reply aggregation, and allow-list filtering.
package channel

import (
	"context"

	"github.com/flemzord/larkbridge/internal/core"
	"github.com/flemzord/larkbridge/pkg/message"
)

// Channel is the bridge between a messaging platform and the router.
// Every concrete channel (Lark today) must implement this interface.
//
// A channel receives events from its platform, deduplicates and normalizes
// them, and pushes the result to the router via the inbox callback. It also
// receives outbound messages from the router via Send().
//
// Channels may optionally implement CardChannel or PlaceholderChannel for
// richer interactions.
type Channel interface {
	core.Module

	// Send delivers an outbound message to the platform. Text longer than
	// the channel's limit is segmented into ordered chunks.
	Send(ctx context.Context, msg message.OutboundMessage) error

	// SetInbox gives the channel a function to push inbound messages to the
	// router. The router calls this during wiring, before Start().
	SetInbox(fn func(msg message.InboundMessage) error)
}

// CardChannel is implemented by channels that support an editable card
// artifact, used to render a streaming reply in place instead of sending
// many messages.
type CardChannel interface {
	Channel

	// SupportsCards reports whether card rendering is currently available.
	// A channel may disable it dynamically (platform errors, config toggle).
	SupportsCards() bool

	// CreateCard posts a new in-progress card and returns its identifier.
	CreateCard(ctx context.Context, chat message.Chat, text string) (string, error)

	// PatchCard replaces the card's content in place. When complete is true
	// the card is rendered in its finished state.
	PatchCard(ctx context.Context, cardID, text string, complete bool) error
}

// PlaceholderChannel is implemented by channels that can post a provisional
// "working" indicator before the backend reply arrives.
type PlaceholderChannel interface {
	Channel

	// SendPlaceholder posts the working indicator and returns its identifier.
	SendPlaceholder(ctx context.Context, chat message.Chat) (string, error)

	// RemovePlaceholder deletes a previously posted indicator.
	RemovePlaceholder(ctx context.Context, id string) error
}

// TextSender is the minimal sending surface the aggregator needs.
// Channel satisfies it.
type TextSender interface {
	Send(ctx context.Context, msg message.OutboundMessage) error
}

// CardEditor is the card surface the aggregator needs. CardChannel satisfies it.
type CardEditor interface {
	CreateCard(ctx context.Context, chat message.Chat, text string) (string, error)
	PatchCard(ctx context.Context, cardID, text string, complete bool) error
}
