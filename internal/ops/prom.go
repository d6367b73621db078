package ops

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsHandler builds the Prometheus registry over the live session and
// bridge state and returns the scrape handler. A dedicated registry keeps
// the scrape surface to what this process actually exports.
func (s *Server) metricsHandler() http.HandlerFunc {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	if s.session != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "larkbridge_gateway_connected",
				Help: "Whether the gateway session is ready (1) or not (0).",
			},
			func() float64 {
				if s.session.Ready() {
					return 1
				}
				return 0
			},
		))
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "larkbridge_gateway_pending_requests",
				Help: "In-flight correlated requests awaiting a gateway response.",
			},
			func() float64 { return float64(s.session.Status().Pending) },
		))
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "larkbridge_gateway_connect_attempts",
				Help: "Consecutive failed connection attempts in the current cycle.",
			},
			func() float64 { return float64(s.session.Status().Attempts) },
		))
	}

	if s.bridge != nil {
		counters := []struct {
			name string
			help string
			read func() int64
		}{
			{"larkbridge_messages_total", "Inbound messages accepted into the bridge.",
				func() int64 { return s.bridge.Metrics().Snapshot().Messages }},
			{"larkbridge_turns_total", "Completed conversation turns.",
				func() int64 { return s.bridge.Metrics().Snapshot().Turns }},
			{"larkbridge_errors_total", "Turns that failed at the gateway.",
				func() int64 { return s.bridge.Metrics().Snapshot().Errors }},
			{"larkbridge_degraded_total", "Turns that fell back from card to chunked delivery.",
				func() int64 { return s.bridge.Metrics().Snapshot().Degraded }},
			{"larkbridge_dropped_total", "Messages dropped at the inbox or conversation cap.",
				func() int64 { return s.bridge.Metrics().Snapshot().Dropped }},
		}
		for _, c := range counters {
			read := c.read
			reg.MustRegister(prometheus.NewCounterFunc(
				prometheus.CounterOpts{Name: c.name, Help: c.help},
				func() float64 { return float64(read()) },
			))
		}

		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "larkbridge_conversations_active",
				Help: "Conversations currently tracked by the bridge.",
			},
			func() float64 { return float64(s.bridge.Conversations().Len()) },
		))
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "larkbridge_turns_in_flight",
				Help: "Turns currently awaiting the gateway.",
			},
			func() float64 { return float64(s.bridge.InFlight()) },
		))
	}

	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP
}
