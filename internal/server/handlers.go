// handlers.go specifies the HTTP handlers of the gateway.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/SpatiumPortae/xfer/internal/conn"
	"github.com/SpatiumPortae/xfer/internal/logger"
	"github.com/SpatiumPortae/xfer/protocol/transfer"
	"github.com/SpatiumPortae/xfer/templates"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// handleFetch runs a file session over the upgraded websocket.
func (g *Gateway) handleFetch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger, err := logger.FromContext(ctx)
		if err != nil {
			return
		}
		c, err := conn.FromContext(ctx)
		if err != nil {
			logger.Error("getting Conn from request context", zap.Error(err))
			return
		}
		logger.Info("websocket client connected")
		g.server.ServeConn(ctx, c)
	}
}

func (g *Gateway) handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(g.server.version); err != nil {
			g.logger.Error("encoding version", zap.Error(err))
		}
	}
}

func (g *Gateway) handlePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}
}

func (g *Gateway) handleMetrics() http.Handler {
	return promhttp.HandlerFor(g.server.gatherer, promhttp.HandlerOpts{})
}

type landingData struct {
	Version     string
	Active      int
	BufferSize  int
	IdleTimeout string
}

func (g *Gateway) handleLanding() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tmpl, ok := g.templates[templates.Landing]
		if !ok {
			http.Error(w, "landing page unavailable", http.StatusInternalServerError)
			return
		}
		data := landingData{
			Version:     g.server.version.String(),
			Active:      g.server.Active(),
			BufferSize:  transfer.BufferSize,
			IdleTimeout: g.server.cfg.IdleTimeout.String(),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			g.logger.Error("rendering landing page", zap.Error(err))
		}
	}
}
