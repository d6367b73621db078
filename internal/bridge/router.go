package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/larkbridge/internal/channel"
	"github.com/flemzord/larkbridge/internal/gateway"
	"github.com/flemzord/larkbridge/pkg/message"
)

const (
	defaultInboxSize     = 256
	defaultMaxIdle       = 30 * time.Minute
	defaultHistoryWindow = 20
)

// AgentClient dispatches one conversation turn to the backend gateway.
// *gateway.Session satisfies it.
type AgentClient interface {
	Agent(ctx context.Context, params gateway.AgentParams) (*gateway.AgentResult, error)
}

// Config holds the configuration for a Router.
type Config struct {
	WorkerCount   int
	InboxSize     int
	MaxIdle       time.Duration
	HistoryWindow int
	ChunkLimit    int
	Dispatcher    *channel.Dispatcher
	Agent         AgentClient
	Logger        *slog.Logger

	// MaxConversations caps live conversations. Zero means unlimited.
	MaxConversations int
}

// withDefaults returns a copy of the config with zero values replaced.
func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = defaultMaxIdle
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = defaultHistoryWindow
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Router is the central dispatch layer. It consumes inbound messages,
// serializes turns per conversation, dispatches them to the gateway, and
// renders the streamed reply back through the channel layer.
type Router struct {
	config   Config
	inbox    chan envelope
	inboxMu  sync.RWMutex
	store    *InMemoryConversationStore
	lanes    *LaneLock
	pool     *WorkerPool
	turns    *turnRegistry
	metrics  *Metrics
	logger   *slog.Logger
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  atomic.Bool
}

// NewRouter creates a Router with the given configuration.
func NewRouter(cfg Config) (*Router, error) {
	cfg = cfg.withDefaults()

	if cfg.Dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	if cfg.Agent == nil {
		return nil, ErrNoAgent
	}

	store := NewInMemoryConversationStore()
	store.SetMaxConversations(cfg.MaxConversations)

	return &Router{
		config:  cfg,
		inbox:   make(chan envelope, cfg.InboxSize),
		store:   store,
		lanes:   NewLaneLock(),
		pool:    NewWorkerPool(cfg.WorkerCount),
		turns:   newTurnRegistry(),
		metrics: &Metrics{},
		logger:  cfg.Logger,
	}, nil
}

// Start launches the worker pool and begins processing messages.
func (r *Router) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.inboxMu.Lock()
	if r.stopped.Load() {
		r.inboxMu.Unlock()
		cancel()
		r.logger.Warn("bridge: start ignored, router already stopped")
		return
	}
	r.cancel = cancel
	r.inboxMu.Unlock()

	r.pool.Start(ctx, r.inbox, r.processTurn)
	r.logger.Info("bridge: started",
		"workers", r.config.WorkerCount,
		"inbox_size", r.config.InboxSize,
	)
}

// Submit enqueues an inbound message for processing without blocking.
// A full inbox drops the message with a warning.
func (r *Router) Submit(msg message.InboundMessage) error {
	r.inboxMu.RLock()
	defer r.inboxMu.RUnlock()

	if r.stopped.Load() {
		return ErrStopped
	}

	env := envelope{Message: msg, Key: KeyFromMessage(msg)}
	select {
	case r.inbox <- env:
		r.metrics.RecordMessage()
		return nil
	default:
		r.metrics.RecordDropped()
		r.logger.Warn("bridge: inbox full, message dropped",
			"channel", env.Key.Channel,
			"chat_id", env.Key.ChatID,
		)
		return ErrInboxFull
	}
}

// Stop gracefully shuts down: closes the inbox, drains workers, cancels
// in-flight turns.
func (r *Router) Stop(_ context.Context) {
	r.stopOnce.Do(func() {
		r.logger.Info("bridge: stopping")

		r.inboxMu.Lock()
		r.stopped.Store(true)
		close(r.inbox)
		cancel := r.cancel
		r.inboxMu.Unlock()

		if cancel != nil {
			cancel()
		}

		r.pool.Wait()
		r.logger.Info("bridge: stopped")
	})
}

// HandleGatewayEvent is registered as the session's event handler. It routes
// agent stream events to the in-flight turn they belong to; anything else is
// logged and dropped.
func (r *Router) HandleGatewayEvent(event string, payload json.RawMessage) {
	if event != gateway.EventAgentStream {
		r.logger.Debug("bridge: unhandled gateway event", "event", event)
		return
	}

	var ev gateway.StreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		r.logger.Warn("bridge: malformed stream event dropped", "error", err)
		return
	}
	if !r.turns.dispatch(ev) {
		r.logger.Debug("bridge: stream event for unknown run", "run_id", ev.RunID)
	}
}

// PruneConversations removes idle conversations and their lanes, returning
// the number pruned. Called by the maintenance scheduler.
func (r *Router) PruneConversations() int {
	pruned := r.store.Prune(r.config.MaxIdle)
	r.lanes.Cleanup(r.store.ActiveKeys())
	if pruned > 0 {
		r.logger.Info("bridge: pruned idle conversations", "count", pruned)
	}
	return pruned
}

// Conversations returns the conversation store for external inspection.
func (r *Router) Conversations() *InMemoryConversationStore {
	return r.store
}

// InFlight returns the number of turns currently awaiting the gateway.
func (r *Router) InFlight() int {
	return r.turns.len()
}

// Metrics returns the bridge counters.
func (r *Router) Metrics() *Metrics {
	return r.metrics
}

type agentOutcome struct {
	res *gateway.AgentResult
	err error
}

// processTurn runs one full turn: lane serialization, placeholder,
// dispatch, stream aggregation, history record.
// agentAttachments carries the inbound media references across the routing
// boundary as opaque platform resource keys.
func agentAttachments(msg message.InboundMessage) []gateway.AgentAttachment {
	if len(msg.Attachments) == 0 {
		return nil
	}
	atts := make([]gateway.AgentAttachment, len(msg.Attachments))
	for i, a := range msg.Attachments {
		atts[i] = gateway.AgentAttachment{Kind: string(a.Kind), Key: a.Key}
	}
	return atts
}

func (r *Router) processTurn(ctx context.Context, env envelope) {
	start := time.Now()

	r.lanes.Acquire(env.Key)
	defer r.lanes.Release(env.Key)

	conv, created := r.store.GetOrCreate(env.Key)
	if conv == nil {
		r.metrics.RecordDropped()
		r.logger.Warn("bridge: conversation limit reached, message dropped",
			"chat_id", env.Key.ChatID,
			"sender_id", env.Key.SenderID,
		)
		return
	}
	if created {
		r.logger.Debug("bridge: conversation created",
			"conversation_id", conv.ID,
			"chat_id", env.Key.ChatID,
		)
	}
	r.store.Touch(env.Key)

	ch, ok := r.config.Dispatcher.Get(env.Message.Channel)
	if !ok {
		r.metrics.RecordError()
		r.logger.Error("bridge: no channel registered for message", "channel", env.Message.Channel)
		return
	}

	// Card support decides the delivery mode for this turn.
	var cards channel.CardEditor
	streaming := false
	if cc, ok := ch.(channel.CardChannel); ok && cc.SupportsCards() {
		cards = cc
		streaming = true
	}

	// The working indicator: in streaming mode it becomes the live card;
	// in chunked mode it is removed when real content arrives. Placeholder
	// failures never abort the turn.
	var placeholderID string
	pc, hasPlaceholder := ch.(channel.PlaceholderChannel)
	if hasPlaceholder {
		id, err := pc.SendPlaceholder(ctx, env.Message.Chat)
		if err != nil {
			r.logger.Warn("bridge: placeholder send failed", "chat_id", env.Key.ChatID, "error", err)
		} else {
			placeholderID = id
		}
	}

	aggCfg := channel.AggregatorConfig{
		Streaming:  streaming,
		ChunkLimit: r.config.ChunkLimit,
	}
	if !streaming && hasPlaceholder && placeholderID != "" {
		id := placeholderID
		aggCfg.OnFirstContent = func(ctx context.Context) {
			if err := pc.RemovePlaceholder(ctx, id); err != nil {
				r.logger.Warn("bridge: placeholder removal failed", "error", err)
			}
		}
	}
	agg := channel.NewReplyAggregator(env.Message.Chat, ch, cards, aggCfg, r.logger)
	if streaming && placeholderID != "" {
		agg.AdoptCard(placeholderID)
	}

	runID := uuid.New().String()
	events := r.turns.register(runID)
	defer r.turns.unregister(runID)

	resultCh := make(chan agentOutcome, 1)
	go func() {
		res, err := r.config.Agent.Agent(ctx, gateway.AgentParams{
			Message:     env.Message.Text,
			SessionID:   conv.ID,
			RunID:       runID,
			Attachments: agentAttachments(env.Message),
		})
		resultCh <- agentOutcome{res: res, err: err}
	}()

	sawStream := false
	var replyParts []string
	applyEvent := func(ev gateway.StreamEvent) {
		sawStream = true
		if ev.MediaURL != nil && *ev.MediaURL != "" {
			if err := agg.Media(ctx, *ev.MediaURL); err != nil && !errors.Is(err, channel.ErrTurnDone) {
				r.logger.Warn("bridge: media delivery failed", "run_id", runID, "error", err)
			}
		}
		var err error
		if ev.Stream == gateway.StreamFinal {
			err = agg.Final(ctx, ev.Text)
		} else {
			err = agg.Partial(ctx, ev.Text)
		}
		if err != nil && !errors.Is(err, channel.ErrTurnDone) {
			r.logger.Warn("bridge: reply delivery failed", "run_id", runID, "error", err)
		}
		if ev.Text != "" {
			replyParts = append(replyParts, ev.Text)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-events:
			applyEvent(ev)

		case out := <-resultCh:
			// The response can resolve while deltas are still queued in
			// the turn channel; drain them so buffered reply content is
			// rendered before the turn closes.
		drain:
			for {
				select {
				case ev := <-events:
					applyEvent(ev)
				default:
					break drain
				}
			}
			r.finishTurn(ctx, finishArgs{
				env:         env,
				conv:        conv,
				agg:         agg,
				out:         out,
				sawStream:   sawStream,
				runID:       runID,
				placeholder: placeholderID,
				pc:          pc,
				replyParts:  replyParts,
				start:       start,
			})
			return
		}
	}
}

type finishArgs struct {
	env         envelope
	conv        *Conversation
	agg         *channel.ReplyAggregator
	out         agentOutcome
	sawStream   bool
	runID       string
	placeholder string
	pc          channel.PlaceholderChannel
	replyParts  []string
	start       time.Time
}

// finishTurn closes out a turn once the agent request returns. Failures
// inside one turn never affect other turns or the connection lifecycle.
func (r *Router) finishTurn(ctx context.Context, a finishArgs) {
	if a.out.err != nil {
		r.metrics.RecordError()
		r.logger.Error("bridge: agent request failed",
			"run_id", a.runID,
			"chat_id", a.env.Key.ChatID,
			"error", a.out.err,
		)
		// Clean up a dangling working indicator so the user is not left
		// with a spinner forever.
		if a.pc != nil && a.placeholder != "" && !a.agg.Delivered() {
			if err := a.pc.RemovePlaceholder(ctx, a.placeholder); err != nil {
				r.logger.Warn("bridge: placeholder removal failed", "error", err)
			}
		}
		return
	}

	replyParts := a.replyParts
	if !a.sawStream && a.out.res != nil {
		// The entire reply arrived in the response payload: media first,
		// then text, last payload closes the turn.
		var texts []string
		for _, p := range a.out.res.Result.Payloads {
			if p.MediaURL != nil && *p.MediaURL != "" {
				if err := a.agg.Media(ctx, *p.MediaURL); err != nil {
					r.logger.Warn("bridge: media delivery failed", "run_id", a.runID, "error", err)
				}
			}
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		for i, t := range texts {
			var err error
			if i == len(texts)-1 {
				err = a.agg.Final(ctx, t)
			} else {
				err = a.agg.Partial(ctx, t)
			}
			if err != nil {
				r.logger.Warn("bridge: reply delivery failed", "run_id", a.runID, "error", err)
			}
		}
		replyParts = texts
	}

	// Close the turn if the stream never sent a final payload.
	if err := a.agg.Final(ctx, ""); err != nil && !errors.Is(err, channel.ErrTurnDone) {
		r.logger.Warn("bridge: reply finalization failed", "run_id", a.runID, "error", err)
	}

	if a.agg.Degraded() {
		r.metrics.RecordDegraded()
	}

	r.store.AppendExchange(a.env.Key, Exchange{
		UserText:  a.env.Message.Text,
		ReplyText: strings.Join(replyParts, "\n"),
		At:        time.Now(),
	}, r.config.HistoryWindow)

	r.metrics.RecordTurn(time.Since(a.start))
	r.logger.Debug("bridge: turn completed",
		"run_id", a.runID,
		"chat_id", a.env.Key.ChatID,
		"latency", time.Since(a.start),
	)
}
