package server

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/SpatiumPortae/xfer/internal/conn"
	"github.com/SpatiumPortae/xfer/internal/file"
	"github.com/SpatiumPortae/xfer/internal/metrics"
	"github.com/SpatiumPortae/xfer/protocol/transfer"
	"go.uber.org/zap"
)

// Files resolves requested names. Implementations must be safe for concurrent use.
type Files interface {
	Stat(name string) (file.Info, error)
	Open(name string) (io.ReadCloser, error)
}

// State is the position of a Session in its request cycle.
type State int

const (
	WaitingRequest State = iota // Accumulating bytes of the next request line
	Resolving                   // Looking up the requested file
	Responding                  // Streaming header, payload and timestamp
	Closed                      // The connection has been closed
)

func (s State) Name() string {
	switch s {
	case WaitingRequest:
		return "WaitingRequest"
	case Resolving:
		return "Resolving"
	case Responding:
		return "Responding"
	case Closed:
		return "Closed"
	default:
		return ""
	}
}

var errPeerClosed = errors.New("peer closed the connection")

// Session serves the requests of a single connection, one at a time.
type Session struct {
	transport *conn.Transport
	files     Files
	logger    *zap.Logger
	metrics   *metrics.Server

	state   State
	request *conn.Buffer
	scratch []byte
}

func NewSession(t *conn.Transport, files Files, logger *zap.Logger, m *metrics.Server) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		transport: t,
		files:     files,
		logger:    logger,
		metrics:   m,
		request:   conn.NewBuffer(transfer.BufferSize),
		scratch:   make([]byte, transfer.BufferSize),
	}
}

// State returns the current state of the session. Not safe for use while Serve runs.
func (s *Session) State() State {
	return s.state
}

// Serve handles requests until the peer disconnects, a requested file is
// missing, or an error occurs. The connection is always closed on return.
// An orderly end of the session returns nil.
func (s *Session) Serve(ctx context.Context) error {
	stop := s.transport.CloseOnDone(ctx)
	defer func() {
		stop()
		s.transport.Close()
		s.state = Closed
	}()

	for {
		s.state = WaitingRequest
		req, err := s.readRequest()
		switch {
		case errors.Is(err, errPeerClosed):
			s.logger.Debug("peer disconnected")
			return nil
		case err != nil:
			if s.request.Len() > 0 {
				s.metrics.Request(transfer.Classify(err))
			}
			return s.fail(ctx, "receiving request", err)
		}
		logger := s.logger.With(zap.String("file", req.Name))

		s.state = Resolving
		info, r, err := s.resolve(req.Name)
		if err != nil {
			logger.Info("file not found", zap.Error(err))
			s.metrics.Request(transfer.NotFoundOnServer)
			if err := s.transport.SendAll(transfer.EncodeNotFound()); err != nil {
				return s.fail(ctx, "sending not found response", err)
			}
			return nil
		}

		s.state = Responding
		err = s.respond(info, r)
		r.Close()
		s.metrics.Request(transfer.Classify(err))
		if err != nil {
			return s.fail(ctx, fmt.Sprintf("sending %s", req.Name), err)
		}
		logger.Info("file sent", zap.Uint32("size", info.Size), zap.Uint32("mod_time", info.ModTime))
	}
}

// readRequest accumulates a single request line.
func (s *Session) readRequest() (transfer.Request, error) {
	s.request.Reset()
	for !transfer.RequestComplete(s.request.Bytes()) {
		if s.request.Available() == 0 {
			return transfer.Request{}, fmt.Errorf("%w: request exceeds %d bytes", transfer.ErrProtocolViolation, s.request.Cap())
		}
		n, err := s.transport.RecvSome(s.scratch[:s.request.Available()])
		if err != nil {
			if s.request.Len() == 0 && errors.Is(err, io.EOF) {
				return transfer.Request{}, errPeerClosed
			}
			return transfer.Request{}, err
		}
		if err := s.request.Append(s.scratch[:n]); err != nil {
			return transfer.Request{}, err
		}
	}
	return transfer.DecodeRequest(s.request.Bytes())
}

func (s *Session) resolve(name string) (file.Info, io.ReadCloser, error) {
	info, err := s.files.Stat(name)
	if err != nil {
		return file.Info{}, nil, err
	}
	r, err := s.files.Open(name)
	if err != nil {
		return file.Info{}, nil, err
	}
	return info, r, nil
}

// respond streams the header, the payload in buffer sized chunks and the timestamp.
func (s *Session) respond(info file.Info, r io.Reader) error {
	if err := s.transport.SendAll(transfer.EncodeFound(info.Size)); err != nil {
		return fmt.Errorf("sending header: %w", err)
	}
	for remaining := int64(info.Size); remaining > 0; {
		chunk := s.scratch
		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}
		if _, err := io.ReadFull(r, chunk); err != nil {
			return fmt.Errorf("reading %s: %w", info.Name, err)
		}
		if err := s.transport.SendAll(chunk); err != nil {
			return fmt.Errorf("sending payload: %w", err)
		}
		s.metrics.PayloadSent(len(chunk))
		remaining -= int64(len(chunk))
	}
	if err := s.transport.SendAll(transfer.EncodeTimestamp(info.ModTime)); err != nil {
		return fmt.Errorf("sending timestamp: %w", err)
	}
	return nil
}

func (s *Session) fail(ctx context.Context, msg string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.Warn(msg, zap.Error(err), zap.String("outcome", transfer.Classify(err).Name()))
	return fmt.Errorf("%s: %w", msg, err)
}
