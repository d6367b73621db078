// Package gateway implements the persistent client session to the backend
// AI gateway: a WebSocket connection speaking a request/response envelope
// with challenge-based handshake, request correlation, and reconnection.
package gateway

import "encoding/json"

// Protocol version window advertised during the handshake.
const (
	minProtocol = 3
	maxProtocol = 3
)

// Frame types on the wire.
const (
	frameRequest  = "req"
	frameResponse = "res"
	frameEvent    = "event"
)

// Well-known method and event names.
const (
	methodConnect    = "connect"
	eventChallenge   = "connect.challenge"
	EventAgentStream = "agent.stream"
)

// Frame is the wire envelope. Requests carry ID, Method, and Params;
// responses echo the ID with OK and either Payload or Error; events carry
// Event and Payload and no ID.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Event   string          `json:"event,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
}

// FrameError is the error object carried by failed responses.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FrameError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// challengePayload is the connect.challenge event payload.
type challengePayload struct {
	Nonce string `json:"nonce"`
	TS    int64  `json:"ts"`
}

// connectParams is sent as the "connect" request.
type connectParams struct {
	MinProtocol int           `json:"minProtocol"`
	MaxProtocol int           `json:"maxProtocol"`
	Client      connectClient `json:"client"`
	Auth        *connectAuth  `json:"auth,omitempty"`
	Role        string        `json:"role"`
	Scopes      []string      `json:"scopes"`
	Caps        []string      `json:"caps"`
}

type connectClient struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

type connectAuth struct {
	Token string `json:"token,omitempty"`
}

// AgentParams is the "agent" request params: one conversation turn.
type AgentParams struct {
	Message     string            `json:"message"`
	SessionID   string            `json:"sessionId,omitempty"`
	RunID       string            `json:"runId,omitempty"`
	Timeout     int               `json:"timeout,omitempty"`
	Attachments []AgentAttachment `json:"attachments,omitempty"`
}

// AgentAttachment is one inbound media reference forwarded with a turn.
// The key is the platform resource key; the backend resolves it through
// its own platform credentials.
type AgentAttachment struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

// AgentResult is the "agent" response payload.
type AgentResult struct {
	RunID   string `json:"runId"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
	Result  struct {
		Payloads []ReplyPayload `json:"payloads"`
	} `json:"result"`
}

// ReplyPayload is one piece of reply content.
type ReplyPayload struct {
	Text     string  `json:"text"`
	MediaURL *string `json:"mediaUrl,omitempty"`
}

// StreamEvent is the agent.stream event payload: a partial or final piece
// of a running turn.
type StreamEvent struct {
	RunID    string  `json:"runId"`
	Stream   string  `json:"stream"` // "delta" or "final"
	Text     string  `json:"text,omitempty"`
	MediaURL *string `json:"mediaUrl,omitempty"`
}

// Stream values carried by StreamEvent.
const (
	StreamDelta = "delta"
	StreamFinal = "final"
)
