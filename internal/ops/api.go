package ops

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flemzord/larkbridge/internal/bridge"
	"github.com/flemzord/larkbridge/internal/channel"
	"github.com/flemzord/larkbridge/pkg/message"
)

// SendRequest is the JSON body for POST /api/send.
type SendRequest struct {
	Channel  string `json:"channel,omitempty"`
	ChatID   string `json:"chat_id"`
	ChatKind string `json:"chat_kind,omitempty"` // "direct" or "group"
	Text     string `json:"text"`
	MediaURL string `json:"media_url,omitempty"`
}

// SendResult is the JSON response for POST /api/send. Failures are reported
// in-band rather than as bare error text.
type SendResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeSendResult(w http.ResponseWriter, status int, res SendResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

// handleSend delivers an operator-initiated message through the channel
// dispatcher.
func (s *Server) handleSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.dispatcher == nil {
			writeSendResult(w, http.StatusServiceUnavailable, SendResult{Error: "no channels available"})
			return
		}

		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeSendResult(w, http.StatusBadRequest, SendResult{Error: "invalid JSON body"})
			return
		}
		if req.ChatID == "" {
			writeSendResult(w, http.StatusBadRequest, SendResult{Error: "chat_id is required"})
			return
		}
		if req.Text == "" && req.MediaURL == "" {
			writeSendResult(w, http.StatusBadRequest, SendResult{Error: "text or media_url is required"})
			return
		}

		kind := message.ChatGroup
		if req.ChatKind == string(message.ChatDirect) {
			kind = message.ChatDirect
		}

		err := s.dispatcher.Send(r.Context(), message.OutboundMessage{
			Channel:  req.Channel,
			Chat:     message.Chat{ID: req.ChatID, Kind: kind},
			Text:     req.Text,
			MediaURL: req.MediaURL,
		})
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, channel.ErrNoChannel) {
				status = http.StatusNotFound
			}
			writeSendResult(w, status, SendResult{Error: err.Error()})
			return
		}

		writeSendResult(w, http.StatusOK, SendResult{OK: true})
	}
}

// conversationJSON is a serializable conversation snapshot.
type conversationJSON struct {
	ID           string `json:"id"`
	Channel      string `json:"channel"`
	ChatID       string `json:"chat_id"`
	SenderID     string `json:"sender_id"`
	CreatedAt    string `json:"created_at"`
	LastActiveAt string `json:"last_active_at"`
	HistoryLen   int    `json:"history_len"`
}

// handleListConversations returns all active conversations as JSON.
func (s *Server) handleListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		conversations := []conversationJSON{}

		if s.bridge != nil {
			s.bridge.Conversations().Range(func(key bridge.ConversationKey, conv *bridge.Conversation) bool {
				conversations = append(conversations, conversationJSON{
					ID:           conv.ID,
					Channel:      key.Channel,
					ChatID:       key.ChatID,
					SenderID:     key.SenderID,
					CreatedAt:    conv.CreatedAt.Format("2006-01-02T15:04:05Z"),
					LastActiveAt: conv.LastActiveAt.Format("2006-01-02T15:04:05Z"),
					HistoryLen:   len(conv.History),
				})
				return true
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(conversations)
	}
}
