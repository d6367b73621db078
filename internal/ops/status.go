package ops

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/flemzord/larkbridge/internal/bridge"
	"github.com/flemzord/larkbridge/internal/gateway"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime        time.Duration           `json:"uptime_seconds"`
	Gateway       *gateway.Status         `json:"gateway,omitempty"`
	Bridge        *bridge.MetricsSnapshot `json:"bridge,omitempty"`
	Conversations int                     `json:"conversations"`
	InFlight      int                     `json:"in_flight"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime: time.Since(s.startedAt).Truncate(time.Second),
		}

		if s.session != nil {
			st := s.session.Status()
			resp.Gateway = &st
		}
		if s.bridge != nil {
			snap := s.bridge.Metrics().Snapshot()
			resp.Bridge = &snap
			resp.Conversations = s.bridge.Conversations().Len()
			resp.InFlight = s.bridge.InFlight()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
