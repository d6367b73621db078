package cron

import (
	"context"
	"fmt"
	"log/slog"
)

// ConversationPruner is the subset of the bridge router needed by the
// prune job. Defined here to avoid a dependency on the bridge package.
type ConversationPruner interface {
	PruneConversations() int
}

// DedupResetter is implemented by channels that keep an event dedup cache.
type DedupResetter interface {
	ResetDedup() int
}

// ConversationPruneJob drops conversations idle past the router's window
// and releases their lanes.
type ConversationPruneJob struct {
	Pruner       ConversationPruner
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

// Compile-time interface check.
var _ Job = (*ConversationPruneJob)(nil)

// Name implements Job.
func (j *ConversationPruneJob) Name() string { return "conversation_prune" }

// Schedule implements Job.
func (j *ConversationPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run prunes idle conversations.
func (j *ConversationPruneJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: conversation prune cancelled: %w", ctx.Err())
	}
	pruned := j.Pruner.PruneConversations()
	if pruned > 0 {
		j.Logger.Info("cron: pruned idle conversations", "count", pruned)
	}
	return nil
}

// DedupResetJob resets channel event-dedup caches wholesale. The caches
// absorb platform delivery retries, which arrive within seconds; anything
// older is safe to forget, and a periodic full reset bounds memory without
// per-entry timestamps.
type DedupResetJob struct {
	Channels     map[string]DedupResetter
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*DedupResetJob)(nil)

// Name implements Job.
func (j *DedupResetJob) Name() string { return "dedup_reset" }

// Schedule implements Job.
func (j *DedupResetJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run clears every registered channel's dedup cache.
func (j *DedupResetJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: dedup reset cancelled: %w", ctx.Err())
	}
	for name, ch := range j.Channels {
		cleared := ch.ResetDedup()
		if cleared > 0 {
			j.Logger.Debug("cron: dedup cache reset", "channel", name, "entries", cleared)
		}
	}
	return nil
}
