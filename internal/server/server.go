package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/SpatiumPortae/xfer/internal/conn"
	"github.com/SpatiumPortae/xfer/internal/metrics"
	"github.com/SpatiumPortae/xfer/internal/semver"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Config holds the runtime settings of a file server.
type Config struct {
	Port           int
	IdleTimeout    time.Duration
	Concurrent     bool // serve connections in parallel instead of one after the other
	MaxConnections int  // upper bound of parallel connections, 0 means unbounded
	GatewayPort    int  // serve the websocket gateway on this port, 0 disables it
}

// Server accepts connections and runs a Session for each of them.
type Server struct {
	cfg      Config
	files    Files
	logger   *zap.Logger
	metrics  *metrics.Server
	gatherer prometheus.Gatherer
	version  semver.Version
	listener net.Listener
	gateway  *Gateway
	sessions *xsync.MapOf[string, *conn.Transport]
	wg       sync.WaitGroup
	signal   chan os.Signal
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics records server metrics in m, the gateway exposes everything gatherer collects.
func WithMetrics(m *metrics.Server, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// NewServer constructs a Server serving files.
func NewServer(cfg Config, files Files, version semver.Version, opts ...Option) *Server {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = conn.DefaultIdleTimeout
	}
	s := &Server{
		cfg:      cfg,
		files:    files,
		logger:   zap.NewNop(),
		gatherer: prometheus.NewRegistry(),
		version:  version,
		sessions: xsync.NewMapOf[string, *conn.Transport](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the file server port, and the gateway port if configured.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.cfg.Port, err)
	}
	s.listener = l
	if s.cfg.GatewayPort != 0 {
		s.gateway = NewGateway(s, s.cfg.GatewayPort)
		if err := s.gateway.Listen(); err != nil {
			l.Close()
			return err
		}
	}
	return nil
}

// Addr returns the address the file server listens on.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Gateway returns the websocket gateway, nil unless configured.
func (s *Server) Gateway() *Gateway {
	return s.gateway
}

// Start runs the server until SIGINT or SIGTERM is received.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.signal = make(chan os.Signal, 1)
	signal.Notify(s.signal, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(s.signal)
	go func() {
		select {
		case <-s.signal:
			s.logger.Info("xfer server is shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	return s.Serve(ctx)
}

// Serve accepts connections on the bound listener until ctx is done.
// All sessions still running are closed before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	if s.gateway != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.gateway.Serve(ctx); err != nil {
				s.logger.Error("serving gateway", zap.Error(err))
			}
		}()
	}

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.logger.Info("serving files",
		zap.String("address", s.listener.Addr().String()),
		zap.String("version", s.version.String()),
		zap.Bool("concurrent", s.cfg.Concurrent),
	)
	err := s.acceptLoop(ctx)

	s.sessions.Range(func(_ string, t *conn.Transport) bool {
		t.Close()
		return true
	})
	s.wg.Wait()
	s.logger.Info("xfer server shutdown successfully")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	var slots chan struct{}
	if s.cfg.Concurrent && s.cfg.MaxConnections > 0 {
		slots = make(chan struct{}, s.cfg.MaxConnections)
	}
	for {
		if slots != nil {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
		}
		c, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		if !s.cfg.Concurrent {
			s.ServeConn(ctx, c)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if slots != nil {
				defer func() { <-slots }()
			}
			s.ServeConn(ctx, c)
		}()
	}
}

// ServeConn runs a Session on c and closes c once the session ends.
func (s *Server) ServeConn(ctx context.Context, c conn.Conn) {
	t := conn.New(c, conn.WithIdleTimeout(s.cfg.IdleTimeout))
	id := uuid.NewString()
	logger := s.logger.With(zap.String("session", id), zap.String("remote", t.RemoteAddr()))

	s.sessions.Store(id, t)
	s.metrics.ConnectionOpened()
	logger.Info("client connected")
	defer func() {
		s.sessions.Delete(id)
		s.metrics.ConnectionClosed()
		logger.Info("client disconnected")
	}()

	if err := NewSession(t, s.files, logger, s.metrics).Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Debug("session ended with error", zap.Error(err))
	}
}

// Active returns the number of connections being served.
func (s *Server) Active() int {
	return s.sessions.Size()
}
