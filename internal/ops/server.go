// Package ops exposes the operational HTTP surface: health and status
// endpoints, Prometheus metrics, and a small authenticated API for sending
// messages and inspecting conversations.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/larkbridge/internal/bridge"
	"github.com/flemzord/larkbridge/internal/channel"
	"github.com/flemzord/larkbridge/internal/core"
	"github.com/flemzord/larkbridge/internal/gateway"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Server{})
}

// SessionInfo is the view of the gateway session the ops surface needs.
// *gateway.Session satisfies it.
type SessionInfo interface {
	Ready() bool
	Status() gateway.Status
}

// BridgeInfo is the view of the bridge router the ops surface needs.
// *bridge.Router satisfies it.
type BridgeInfo interface {
	Metrics() *bridge.Metrics
	Conversations() *bridge.InMemoryConversationStore
	InFlight() int
}

// Server is the ops HTTP module. It is a leaf module — nothing imports it.
type Server struct {
	config Config
	appCtx *core.AppContext
	logger *slog.Logger
	server *http.Server

	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	startedAt       time.Time

	// Resolved lazily at Start() via service registry.
	session    SessionInfo
	bridge     BridgeInfo
	dispatcher *channel.Dispatcher
}

// Interface guards.
var (
	_ core.Module       = (*Server)(nil)
	_ core.Configurable = (*Server)(nil)
	_ core.Provisioner  = (*Server)(nil)
	_ core.Validator    = (*Server)(nil)
	_ core.Starter      = (*Server)(nil)
	_ core.Stopper      = (*Server)(nil)
)

// ModuleInfo implements core.Module.
func (s *Server) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "ops.http",
		New: func() core.Module { return &Server{} },
	}
}

// Configure implements core.Configurable.
func (s *Server) Configure(node *yaml.Node) error {
	if err := node.Decode(&s.config); err != nil {
		return err
	}
	s.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (s *Server) Provision(ctx *core.AppContext) error {
	s.appCtx = ctx
	s.logger = ctx.Logger

	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"read_timeout", s.config.ReadTimeout, &s.readTimeout},
		{"write_timeout", s.config.WriteTimeout, &s.writeTimeout},
		{"shutdown_timeout", s.config.ShutdownTimeout, &s.shutdownTimeout},
	} {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("ops: invalid %s %q: %w", d.name, d.value, err)
		}
		*d.dst = parsed
	}

	return nil
}

// Validate implements core.Validator.
func (s *Server) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", s.config.Bind); err != nil {
		return errors.New("ops: invalid bind address: " + s.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (s *Server) Start() error {
	// Resolve optional services — graceful degradation if missing.
	if svc, ok := s.appCtx.GetService("gateway.session"); ok {
		if sess, ok := svc.(SessionInfo); ok {
			s.session = sess
		}
	}
	if svc, ok := s.appCtx.GetService("bridge.router"); ok {
		if b, ok := svc.(BridgeInfo); ok {
			s.bridge = b
		}
	}
	if svc, ok := s.appCtx.GetService("channel.dispatcher"); ok {
		if d, ok := svc.(*channel.Dispatcher); ok {
			s.dispatcher = d
		}
	}

	s.startedAt = time.Now()

	s.server = &http.Server{
		Addr:         s.config.Bind,
		Handler:      s.buildRouter(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", s.config.Bind)
	if err != nil {
		return errors.New("ops: listen failed: " + err.Error())
	}

	go func() {
		s.logger.Info("ops: listening", "addr", s.config.Bind)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops: serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	s.logger.Info("ops: shutting down")
	return s.server.Shutdown(shutdownCtx)
}

// buildRouter constructs the chi mux with all routes wired.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public — no auth required.
	r.Get("/health", s.handleHealth())
	r.Get("/metrics", s.metricsHandler())

	// API endpoints — auth required. Not mounted if no auth configured.
	if s.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(s.config.Auth))
			r.Get("/status", s.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Post("/send", s.handleSend())
				r.Get("/conversations", s.handleListConversations())
			})
		})
	}

	return r
}
