package channel

import (
	"strings"

	"github.com/flemzord/larkbridge/pkg/message"
)

// AllowList restricts which senders and group chats may interact with a
// channel. A nil AllowList places no restriction; the mention policy in the
// normalizer remains the primary admission gate.
type AllowList struct {
	senders map[string]struct{}
	chats   map[string]struct{}
}

// NewAllowList builds an AllowList with O(1) lookups. IDs are trimmed and
// lowercased at construction time. When both lists are empty it returns nil,
// meaning unrestricted.
func NewAllowList(senders, chats []string) *AllowList {
	if len(senders) == 0 && len(chats) == 0 {
		return nil
	}
	a := &AllowList{
		senders: make(map[string]struct{}, len(senders)),
		chats:   make(map[string]struct{}, len(chats)),
	}
	for _, s := range senders {
		a.senders[normalizeID(s)] = struct{}{}
	}
	for _, c := range chats {
		a.chats[normalizeID(c)] = struct{}{}
	}
	return a
}

// IsAllowed reports whether the message may enter the pipeline.
//
// Rules:
//   - A nil AllowList allows everything.
//   - A sender ID matching a sender entry → allow.
//   - A chat ID matching a chat entry → allow.
//   - Otherwise → deny.
func (a *AllowList) IsAllowed(msg message.InboundMessage) bool {
	if a == nil {
		return true
	}
	if _, ok := a.senders[normalizeID(msg.Sender.ID)]; ok {
		return true
	}
	if _, ok := a.chats[normalizeID(msg.Chat.ID)]; ok {
		return true
	}
	return false
}

func normalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
