package lark

import "fmt"

// Config holds the Lark channel configuration.
type Config struct {
	AppID             string `yaml:"app_id"`
	AppSecret         string `yaml:"app_secret"`
	VerificationToken string `yaml:"verification_token"`
	EncryptKey        string `yaml:"encrypt_key"`

	// RequireMention gates group messages on an @-mention of the bot.
	// Direct chats are never gated. Defaults to true.
	RequireMention *bool `yaml:"require_mention"`

	// Streaming selects live-card rendering for replies. Defaults to true.
	Streaming *bool `yaml:"streaming"`

	// ChunkLimit bounds outbound text messages in bytes. Defaults to 4000.
	ChunkLimit int `yaml:"chunk_limit"`

	// Placeholder is the working-indicator text sent before the reply.
	// Empty disables the placeholder.
	Placeholder string `yaml:"placeholder"`

	// Voice forwards audio attachments to the bridge. When false only the
	// synthesized label survives.
	Voice bool `yaml:"voice"`

	AllowSenders []string `yaml:"allow_senders"`
	AllowChats   []string `yaml:"allow_chats"`
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.RequireMention == nil {
		v := true
		c.RequireMention = &v
	}
	if c.Streaming == nil {
		v := true
		c.Streaming = &v
	}
	if c.ChunkLimit == 0 {
		c.ChunkLimit = 4000
	}
}

// validate checks field constraints beyond basic presence checks.
func (c *Config) validate() error {
	if c.AppID == "" {
		return fmt.Errorf("lark: app_id is required")
	}
	if c.AppSecret == "" {
		return fmt.Errorf("lark: app_secret is required")
	}
	if c.ChunkLimit < 1 || c.ChunkLimit > 100_000 {
		return fmt.Errorf("lark: chunk_limit must be 1-100000, got %d", c.ChunkLimit)
	}
	return nil
}
