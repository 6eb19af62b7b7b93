package server

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/SpatiumPortae/xfer/internal/cache"
	"github.com/SpatiumPortae/xfer/internal/conn"
	"github.com/SpatiumPortae/xfer/internal/logger"
	"github.com/SpatiumPortae/xfer/templates"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Gateway carries file sessions over websockets and exposes server information over HTTP.
type Gateway struct {
	server     *Server
	httpServer *http.Server
	router     *mux.Router
	listener   net.Listener
	templates  map[string]*template.Template
	cache      cache.Storage
	logger     *zap.Logger
}

// NewGateway constructs a Gateway running sessions on s and setups the routes.
func NewGateway(s *Server, port int) *Gateway {
	router := &mux.Router{}
	stdLoggerWrapper, _ := zap.NewStdLogAt(s.logger, zap.ErrorLevel)
	tmpls, err := templates.NewTemplates()
	if err != nil {
		s.logger.Error("parsing gateway templates", zap.Error(err))
	}
	g := &Gateway{
		server: s,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			ReadHeaderTimeout: 30 * time.Second,
			Handler:           router,
			ErrorLog:          stdLoggerWrapper,
		},
		router:    router,
		templates: tmpls,
		cache:     cache.NewMemory(),
		logger:    s.logger.With(zap.String("component", "gateway")),
	}
	g.routes()
	return g
}

// Handler returns the root handler of the gateway.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Listen binds the gateway port.
func (g *Gateway) Listen() error {
	l, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on gateway address %s: %w", g.httpServer.Addr, err)
	}
	g.listener = l
	return nil
}

// Addr returns the address the gateway listens on.
func (g *Gateway) Addr() net.Addr {
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Serve runs the gateway until ctx is done, then shuts it down gracefully.
func (g *Gateway) Serve(ctx context.Context) (err error) {
	if g.listener == nil {
		if err := g.Listen(); err != nil {
			return err
		}
	}
	errC := make(chan error, 1)
	go func() {
		if err := g.httpServer.Serve(g.listener); err != nil && err != http.ErrServerClosed {
			errC <- err
		}
		close(errC)
	}()

	g.logger.
		With(zap.String("address", g.listener.Addr().String())).
		Info("serving gateway")

	select {
	case err, ok := <-errC:
		if !ok {
			g.logger.Info("gateway closed")
			return nil
		}
		return fmt.Errorf("serving gateway: %w", err)
	case <-ctx.Done():
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = g.httpServer.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("shutting down gateway: %w", err)
	}
	g.logger.Info("gateway shutdown successfully")
	return nil
}

func (g *Gateway) routes() {
	g.router.Use(logger.Middleware(g.logger))
	g.router.Handle("/fetch", conn.Middleware()(g.handleFetch()))
	g.router.Handle("/version", cache.Middleware(g.cache, time.Minute, g.handleVersion())).Methods(http.MethodGet)
	g.router.HandleFunc("/ping", g.handlePing()).Methods(http.MethodGet)
	g.router.Handle("/metrics", g.handleMetrics()).Methods(http.MethodGet)
	g.router.HandleFunc("/", g.handleLanding()).Methods(http.MethodGet)
}
