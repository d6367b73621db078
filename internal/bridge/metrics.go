package bridge

import (
	"sync/atomic"
	"time"
)

// Metrics tracks bridge-level counters using atomic operations for
// lock-free concurrency.
type Metrics struct {
	messages     atomic.Int64
	turns        atomic.Int64
	errors       atomic.Int64
	degraded     atomic.Int64
	dropped      atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// RecordMessage records an accepted inbound message.
func (m *Metrics) RecordMessage() {
	m.messages.Add(1)
}

// RecordTurn records a completed turn and its latency.
func (m *Metrics) RecordTurn(latency time.Duration) {
	m.turns.Add(1)
	m.totalLatency.Add(int64(latency))
}

// RecordError records a failed turn.
func (m *Metrics) RecordError() {
	m.errors.Add(1)
}

// RecordDegraded records a turn that fell back from card rendering to
// chunked text.
func (m *Metrics) RecordDegraded() {
	m.degraded.Add(1)
}

// RecordDropped records a message dropped at the inbox.
func (m *Metrics) RecordDropped() {
	m.dropped.Add(1)
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	turns := m.turns.Load()
	snap := MetricsSnapshot{
		Messages: m.messages.Load(),
		Turns:    turns,
		Errors:   m.errors.Load(),
		Degraded: m.degraded.Load(),
		Dropped:  m.dropped.Load(),
	}
	if turns > 0 {
		snap.AvgLatency = time.Duration(m.totalLatency.Load() / turns)
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Messages   int64         `json:"messages"`
	Turns      int64         `json:"turns"`
	Errors     int64         `json:"errors"`
	Degraded   int64         `json:"degraded"`
	Dropped    int64         `json:"dropped"`
	AvgLatency time.Duration `json:"avg_latency_ns"`
}
