// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for larkbridge.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "channel.lark").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Bridge configures the router between the channel and the gateway
	// session. All fields are optional.
	Bridge *BridgeConfig `yaml:"bridge,omitempty"`
}

// BridgeConfig holds routing and maintenance settings that do not belong to
// any single module.
type BridgeConfig struct {
	// Workers is the number of turn workers. Zero means the default.
	Workers int `yaml:"workers"`

	// InboxSize bounds the inbound message queue. Zero means the default.
	InboxSize int `yaml:"inbox_size"`

	// MaxIdle is how long a conversation window may stay idle before the
	// maintenance job prunes it (e.g. "30m").
	MaxIdle string `yaml:"max_idle"`

	// HistoryWindow is the number of exchanges retained per conversation.
	// Zero means the default.
	HistoryWindow int `yaml:"history_window"`

	// DedupSchedule is the cron expression for the dedup full-window reset
	// (default "*/5 * * * *").
	DedupSchedule string `yaml:"dedup_schedule"`

	// PruneSchedule is the cron expression for idle-window pruning
	// (default "*/10 * * * *").
	PruneSchedule string `yaml:"prune_schedule"`
}
