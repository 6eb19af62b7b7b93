// Package metrics exposes server side transfer counters to prometheus.
package metrics

import (
	"github.com/SpatiumPortae/xfer/protocol/transfer"
	"github.com/prometheus/client_golang/prometheus"
)

// Server collects the metrics of a file server. A nil *Server records nothing.
type Server struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	requests          *prometheus.CounterVec
	payloadBytes      prometheus.Counter
}

// NewServer creates the server metrics and registers them with reg.
func NewServer(reg prometheus.Registerer) (*Server, error) {
	s := &Server{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xfer_server_connections_active",
			Help: "Connections currently being served",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xfer_server_connections_total",
			Help: "Connections accepted since start",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xfer_server_requests_total",
			Help: "File requests by outcome",
		}, []string{"outcome"}),
		payloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xfer_server_payload_bytes_total",
			Help: "Payload bytes sent to clients",
		}),
	}
	for _, c := range []prometheus.Collector{s.connectionsActive, s.connectionsTotal, s.requests, s.payloadBytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) ConnectionOpened() {
	if s == nil {
		return
	}
	s.connectionsActive.Inc()
	s.connectionsTotal.Inc()
}

func (s *Server) ConnectionClosed() {
	if s == nil {
		return
	}
	s.connectionsActive.Dec()
}

func (s *Server) Request(outcome transfer.Outcome) {
	if s == nil {
		return
	}
	s.requests.WithLabelValues(outcome.Name()).Inc()
}

func (s *Server) PayloadSent(n int) {
	if s == nil {
		return
	}
	s.payloadBytes.Add(float64(n))
}
