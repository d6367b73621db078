package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/larkbridge/internal/core"
)

func init() {
	core.RegisterModule(&Session{})
}

// clientVersion is advertised in the connect request.
const clientVersion = "larkbridge/1.0"

// State is the session connection state.
type State int32

// Session states. Transitions: Disconnected → Connecting →
// AwaitingHandshake → Ready, back to Disconnected on any failure.
const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHandshake
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// EventHandler receives unsolicited server events.
type EventHandler func(event string, payload json.RawMessage)

// Session is the persistent client connection to the backend gateway.
// It owns the connect/handshake/reconnect lifecycle, correlates responses
// to requests, and fans unsolicited events out to a registered handler.
// It implements core.Module and related lifecycle interfaces.
type Session struct {
	config Config
	logger *slog.Logger
	corr   *Correlator

	dial  dialFunc
	newID func() string

	requestTimeout   time.Duration
	agentTimeout     time.Duration
	reconnectBase    time.Duration
	pingInterval     time.Duration
	handshakeTimeout time.Duration

	mu          sync.Mutex
	conn        transport
	state       State
	attempts    int
	connectedAt time.Time
	lastErr     error
	fatal       bool
	onEvent     EventHandler

	cancel   context.CancelFunc
	connLost chan struct{}
	done     chan struct{}
}

// ModuleInfo implements core.Module.
func (s *Session) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.session",
		New: func() core.Module { return &Session{} },
	}
}

// Configure implements core.Configurable.
func (s *Session) Configure(node *yaml.Node) error {
	if err := node.Decode(&s.config); err != nil {
		return err
	}
	s.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (s *Session) Provision(ctx *core.AppContext) error {
	s.logger = ctx.Logger
	s.corr = NewCorrelator()
	s.dial = dialWebSocket
	s.newID = func() string { return uuid.New().String() }
	s.connLost = make(chan struct{}, 1)

	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"request_timeout", s.config.RequestTimeout, &s.requestTimeout},
		{"agent_timeout", s.config.AgentTimeout, &s.agentTimeout},
		{"reconnect_base", s.config.ReconnectBase, &s.reconnectBase},
		{"ping_interval", s.config.PingInterval, &s.pingInterval},
	} {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("gateway: invalid %s %q: %w", d.name, d.value, err)
		}
		*d.dst = parsed
	}
	s.handshakeTimeout = defaultHandshakeTimeout

	ctx.RegisterService("gateway.session", s)
	return nil
}

// Validate implements core.Validator.
func (s *Session) Validate() error {
	if s.config.URL == "" {
		return errors.New("gateway: url is required")
	}
	return nil
}

// OnEvent registers the handler for unsolicited server events. The router
// calls this during wiring, before Start().
func (s *Session) OnEvent(fn EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = fn
}

// Start implements core.Starter. It blocks until the first connection
// reaches Ready or the reconnect budget is exhausted, then supervises the
// connection in the background.
func (s *Session) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	if err := s.connectWithRetry(ctx); err != nil {
		cancel()
		close(s.done)
		return err
	}

	go s.supervise(ctx)
	return nil
}

// Stop implements core.Stopper. It disconnects, cancels all pending
// requests, and waits for the supervisor to exit.
func (s *Session) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close("shutting down")
	}
	s.corr.RejectAll(ErrCancelled)

	if s.done != nil {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.logger.Info("gateway session stopped")
	return nil
}

// Ready reports whether the session can accept requests.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady
}

// Status is a point-in-time view of the session for the ops surface.
type Status struct {
	State       string    `json:"state"`
	Attempts    int       `json:"attempts"`
	ConnectedAt time.Time `json:"connected_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	Pending     int       `json:"pending_requests"`
	Fatal       bool      `json:"fatal,omitempty"`
}

// Status returns the current session status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:       s.state.String(),
		Attempts:    s.attempts,
		ConnectedAt: s.connectedAt,
		Pending:     s.corr.Len(),
		Fatal:       s.fatal,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// AgentTimeout returns the configured deadline for agent turns.
func (s *Session) AgentTimeout() time.Duration {
	return s.agentTimeout
}

// Request issues a correlated request and waits for its single response.
// A timeout <= 0 uses the configured default. The request completes exactly
// once: with the response payload, ErrTimeout, or a cancellation error.
func (s *Session) Request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	s.mu.Lock()
	conn := s.conn
	ready := s.state == StateReady
	s.mu.Unlock()

	if !ready || conn == nil {
		return nil, ErrNotConnected
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal %s params: %w", method, err)
	}

	id := s.newID()
	ch, err := s.corr.Register(id)
	if err != nil {
		return nil, err
	}

	frame, err := json.Marshal(Frame{
		Type:   frameRequest,
		ID:     id,
		Method: method,
		Params: raw,
	})
	if err != nil {
		s.corr.Reject(id, err)
		return nil, err
	}

	if err := conn.Write(ctx, frame); err != nil {
		if s.corr.Reject(id, err) {
			return nil, fmt.Errorf("gateway: write %s request: %w", method, err)
		}
		// A response raced the write failure; take it.
		return responsePayload(<-ch)
	}

	if timeout <= 0 {
		timeout = s.requestTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return responsePayload(res)
	case <-timer.C:
		if s.corr.Reject(id, ErrTimeout) {
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, method, timeout)
		}
		return responsePayload(<-ch)
	case <-ctx.Done():
		if s.corr.Reject(id, ctx.Err()) {
			return nil, ctx.Err()
		}
		return responsePayload(<-ch)
	}
}

// Agent dispatches one conversation turn to the backend.
func (s *Session) Agent(ctx context.Context, params AgentParams) (*AgentResult, error) {
	if params.Timeout <= 0 {
		params.Timeout = int(s.agentTimeout.Seconds())
	}

	payload, err := s.Request(ctx, "agent", params, s.agentTimeout)
	if err != nil {
		return nil, err
	}

	var result AgentResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("gateway: parse agent response: %w", err)
	}
	return &result, nil
}

func responsePayload(res Result) (json.RawMessage, error) {
	if res.Err != nil {
		return nil, res.Err
	}
	frame := res.Frame
	if frame.Error != nil {
		return nil, frame.Error
	}
	if frame.OK == nil || !*frame.OK {
		return nil, errors.New("gateway: request rejected without error detail")
	}
	return frame.Payload, nil
}

// connectWithRetry attempts to connect until Ready or the attempt budget is
// exhausted. Delays grow linearly with the attempt number and cap at
// backoffCap * base.
func (s *Session) connectWithRetry(ctx context.Context) error {
	for {
		err := s.connect(ctx)
		if err == nil {
			return nil
		}

		s.mu.Lock()
		s.attempts++
		s.lastErr = err
		attempt := s.attempts
		s.mu.Unlock()

		if attempt >= s.config.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttempts, attempt, err)
		}

		delay := s.backoff(attempt)
		s.logger.Warn("gateway connect failed, retrying",
			"attempt", attempt,
			"max_attempts", s.config.MaxAttempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *Session) backoff(attempt int) time.Duration {
	if attempt > backoffCap {
		attempt = backoffCap
	}
	return time.Duration(attempt) * s.reconnectBase
}

// connect dials, completes the handshake, and starts the per-connection
// read and ping loops.
func (s *Session) connect(ctx context.Context) error {
	s.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	conn, err := s.dial(dialCtx, s.config.URL)
	cancel()
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("gateway: dial %s: %w", s.config.URL, err)
	}

	s.setState(StateAwaitingHandshake)
	if err := s.handshake(ctx, conn); err != nil {
		_ = conn.Close("handshake failed")
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateReady
	s.attempts = 0
	s.lastErr = nil
	s.connectedAt = time.Now()
	s.mu.Unlock()

	connCtx, connCancel := context.WithCancel(ctx)
	go s.pingLoop(connCtx, conn)
	go func() {
		err := s.readLoop(connCtx, conn)
		connCancel()
		s.handleDisconnect(conn, err)
	}()

	s.logger.Info("gateway session ready", "url", s.config.URL)
	return nil
}

// handshake waits for the connect.challenge event and answers it with the
// connect request, reading until the matching response arrives.
func (s *Session) handshake(ctx context.Context, conn transport) error {
	hsCtx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	defer cancel()

	data, err := conn.Read(hsCtx)
	if err != nil {
		return fmt.Errorf("reading challenge: %w", err)
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("parsing challenge: %w", err)
	}
	if frame.Type != frameEvent || frame.Event != eventChallenge {
		return fmt.Errorf("expected %s, got %s/%s", eventChallenge, frame.Type, frame.Event)
	}

	var challenge challengePayload
	if err := json.Unmarshal(frame.Payload, &challenge); err != nil {
		return fmt.Errorf("parsing challenge payload: %w", err)
	}
	s.logger.Debug("received connect challenge", "nonce", challenge.Nonce)

	params := connectParams{
		MinProtocol: minProtocol,
		MaxProtocol: maxProtocol,
		Client: connectClient{
			ID:       s.config.ClientID,
			Version:  clientVersion,
			Platform: runtime.GOOS,
			Mode:     "backend",
		},
		Role:   "operator",
		Scopes: s.config.Scopes,
		Caps:   []string{},
	}
	if s.config.Token != "" {
		params.Auth = &connectAuth{Token: s.config.Token}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling connect params: %w", err)
	}

	id := s.newID()
	req, err := json.Marshal(Frame{
		Type:   frameRequest,
		ID:     id,
		Method: methodConnect,
		Params: raw,
	})
	if err != nil {
		return err
	}
	if err := conn.Write(hsCtx, req); err != nil {
		return fmt.Errorf("sending connect: %w", err)
	}

	// The server may emit other events before the connect response.
	for {
		data, err := conn.Read(hsCtx)
		if err != nil {
			return fmt.Errorf("reading connect response: %w", err)
		}

		var resp Frame
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		if resp.Type != frameResponse || resp.ID != id {
			continue
		}

		if resp.OK != nil && *resp.OK {
			return nil
		}
		if resp.Error != nil {
			return fmt.Errorf("connect rejected: %w", resp.Error)
		}
		return errors.New("connect rejected")
	}
}

// supervise re-runs the reconnect policy every time the connection drops.
// Exhausting the budget terminates the session permanently.
func (s *Session) supervise(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.connLost:
		}

		if err := s.connectWithRetry(ctx); err != nil {
			if errors.Is(err, ErrMaxAttempts) {
				s.mu.Lock()
				s.fatal = true
				s.lastErr = err
				s.mu.Unlock()
				s.logger.Error("gateway session terminated", "error", err)
			}
			return
		}
	}
}

// readLoop consumes frames until the connection fails. Malformed frames are
// dropped without tearing down the connection.
func (s *Session) readLoop(ctx context.Context, conn transport) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Warn("malformed frame dropped", "error", err)
			continue
		}

		switch frame.Type {
		case frameResponse:
			if !s.corr.Resolve(&frame) {
				s.logger.Debug("late response dropped", "id", frame.ID)
			}
		case frameEvent:
			s.dispatchEvent(&frame)
		default:
			s.logger.Warn("unexpected frame type", "type", frame.Type)
		}
	}
}

func (s *Session) dispatchEvent(frame *Frame) {
	s.mu.Lock()
	handler := s.onEvent
	s.mu.Unlock()

	if handler == nil {
		s.logger.Debug("unhandled event", "event", frame.Event)
		return
	}
	handler(frame.Event, frame.Payload)
}

func (s *Session) pingLoop(ctx context.Context, conn transport) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.logger.Warn("gateway ping failed", "error", err)
				// Force the read loop to fail so the reconnect policy
				// fires; a half-open connection never errors on Read.
				_ = conn.Close("ping failed")
				return
			}
		}
	}
}

// handleDisconnect records the connection loss, rejects all pending
// requests, and wakes the supervisor.
func (s *Session) handleDisconnect(conn transport, err error) {
	s.mu.Lock()
	if s.conn != conn {
		// A newer connection already replaced this one.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateDisconnected
	if err != nil && !errors.Is(err, context.Canceled) {
		s.lastErr = err
	}
	s.mu.Unlock()

	_ = conn.Close("connection lost")
	s.corr.RejectAll(ErrCancelled)

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("gateway connection lost", "error", err)
	}

	select {
	case s.connLost <- struct{}{}:
	default:
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
