package gateway

import "time"

// Defaults for the session config.
const (
	defaultMaxAttempts      = 10
	defaultReconnectBase    = 2 * time.Second
	defaultRequestTimeout   = 60 * time.Second
	defaultAgentTimeout     = 120 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second

	// backoffCap bounds the backoff multiplier: delay = min(attempt, cap) * base.
	backoffCap = 5
)

// Config holds YAML configuration for the gateway session module.
type Config struct {
	// URL is the gateway WebSocket endpoint,
	// e.g. "ws://localhost:18789/ws/gateway".
	URL string `yaml:"url"`

	// Token authenticates the connect request.
	Token string `yaml:"token"`

	// ClientID identifies this client to the gateway.
	ClientID string `yaml:"client_id"`

	// Scopes requested during the handshake.
	Scopes []string `yaml:"scopes"`

	// RequestTimeout is the default deadline for correlated requests.
	RequestTimeout string `yaml:"request_timeout"`

	// AgentTimeout is the deadline for agent turn requests, which run much
	// longer than control-plane calls.
	AgentTimeout string `yaml:"agent_timeout"`

	// ReconnectBase is the backoff unit between reconnect attempts.
	ReconnectBase string `yaml:"reconnect_base"`

	// MaxAttempts bounds consecutive failed connects before the session
	// gives up. The counter resets on every successful handshake.
	MaxAttempts int `yaml:"max_attempts"`

	// PingInterval drives the keepalive ping loop.
	PingInterval string `yaml:"ping_interval"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.ClientID == "" {
		c.ClientID = "larkbridge"
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"operator.admin"}
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = "60s"
	}
	if c.AgentTimeout == "" {
		c.AgentTimeout = "120s"
	}
	if c.ReconnectBase == "" {
		c.ReconnectBase = "2s"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.PingInterval == "" {
		c.PingInterval = "30s"
	}
}
