package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/flemzord/larkbridge/internal/core"
	"github.com/flemzord/larkbridge/pkg/message"
)

// MockChannel is a test double that implements Channel, CardChannel, and
// PlaceholderChannel. It records sent messages and card operations and
// allows simulating inbound messages via SimulateMessage.
type MockChannel struct {
	name      string
	allowList *AllowList

	mu       sync.Mutex
	inbox    func(msg message.InboundMessage) error
	sent     []message.OutboundMessage
	cards    map[string]MockCard
	creates  int
	patches  int
	nextCard int

	// SendFunc, if set, replaces the default recording behavior.
	SendFunc func(ctx context.Context, msg message.OutboundMessage) error

	// CreateCardErr and PatchCardErr force card operations to fail.
	CreateCardErr error
	PatchCardErr  error

	// CardsDisabled makes SupportsCards report false.
	CardsDisabled bool
}

// MockCard is the recorded state of one card artifact.
type MockCard struct {
	Chat     message.Chat
	Text     string
	Complete bool
}

var (
	_ Channel            = (*MockChannel)(nil)
	_ CardChannel        = (*MockChannel)(nil)
	_ PlaceholderChannel = (*MockChannel)(nil)
)

// NewMockChannel creates a MockChannel with the given name. Pass a nil
// allowList for unrestricted admission.
func NewMockChannel(name string, allowList *AllowList) *MockChannel {
	return &MockChannel{
		name:      name,
		allowList: allowList,
		cards:     make(map[string]MockCard),
	}
}

// ModuleInfo implements core.Module.
func (m *MockChannel) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID: core.ModuleID("channel." + m.name),
		New: func() core.Module {
			return NewMockChannel(m.name, m.allowList)
		},
	}
}

// Send records the outbound message. If SendFunc is set, it delegates to it.
func (m *MockChannel) Send(ctx context.Context, msg message.OutboundMessage) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// SetInbox stores the inbox callback provided by the router.
func (m *MockChannel) SetInbox(fn func(msg message.InboundMessage) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = fn
}

// SupportsCards implements CardChannel.
func (m *MockChannel) SupportsCards() bool {
	return !m.CardsDisabled
}

// CreateCard implements CardChannel. It records the card and returns a
// generated identifier.
func (m *MockChannel) CreateCard(_ context.Context, chat message.Chat, text string) (string, error) {
	if m.CreateCardErr != nil {
		return "", m.CreateCardErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCard++
	m.creates++
	id := fmt.Sprintf("card-%d", m.nextCard)
	m.cards[id] = MockCard{Chat: chat, Text: text}
	return id, nil
}

// PatchCard implements CardChannel. It updates the recorded card in place.
func (m *MockChannel) PatchCard(_ context.Context, cardID, text string, complete bool) error {
	if m.PatchCardErr != nil {
		return m.PatchCardErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[cardID]
	if !ok {
		return fmt.Errorf("mock: unknown card %q", cardID)
	}
	m.patches++
	card.Text = text
	card.Complete = complete
	m.cards[cardID] = card
	return nil
}

// SendPlaceholder implements PlaceholderChannel by creating a card.
func (m *MockChannel) SendPlaceholder(ctx context.Context, chat message.Chat) (string, error) {
	return m.CreateCard(ctx, chat, "…")
}

// RemovePlaceholder implements PlaceholderChannel.
func (m *MockChannel) RemovePlaceholder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cards, id)
	return nil
}

// SimulateMessage pushes an inbound message through the allow-list and into
// the inbox. It returns ErrDenied if the sender is not allowed and ErrNoInbox
// if SetInbox has not been called.
func (m *MockChannel) SimulateMessage(msg message.InboundMessage) error {
	m.mu.Lock()
	inbox := m.inbox
	m.mu.Unlock()

	if !m.allowList.IsAllowed(msg) {
		return ErrDenied
	}
	if inbox == nil {
		return ErrNoInbox
	}

	msg.Channel = m.name
	return inbox(msg)
}

// SentMessages returns a copy of all outbound messages recorded by Send.
func (m *MockChannel) SentMessages() []message.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]message.OutboundMessage, len(m.sent))
	copy(cp, m.sent)
	return cp
}

// Card returns the recorded state of a card, or false if it does not exist.
func (m *MockChannel) Card(id string) (MockCard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[id]
	return card, ok
}

// CardOps returns the number of creates and patches performed.
func (m *MockChannel) CardOps() (creates, patches int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.patches
}
