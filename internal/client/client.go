package client

import (
	"context"
	"fmt"
	"io"

	"github.com/SpatiumPortae/xfer/internal/conn"
	"github.com/SpatiumPortae/xfer/protocol/transfer"
	"go.uber.org/zap"
)

// State is the position of a Session in the request cycle of a single file.
type State int

const (
	Idle             State = iota
	Requesting             // Sending the request line
	AwaitingResponse       // Waiting for the response header
	Streaming              // Receiving the payload and timestamp
	Completed              // The file was received and committed
	NotFound               // The server does not have the file
	Failed                 // Transport, timeout or protocol error
)

func (s State) Name() string {
	switch s {
	case Idle:
		return "Idle"
	case Requesting:
		return "Requesting"
	case AwaitingResponse:
		return "AwaitingResponse"
	case Streaming:
		return "Streaming"
	case Completed:
		return "Completed"
	case NotFound:
		return "NotFound"
	case Failed:
		return "Failed"
	default:
		return ""
	}
}

// Sink receives the payload of one file. Commit makes it permanent, Discard throws it away.
type Sink interface {
	io.Writer
	Commit(modTime uint32) error
	Discard() error
}

// Result describes how the request for a single file ended.
type Result struct {
	Name    string
	Outcome transfer.Outcome
	Size    uint32
	ModTime uint32
	Err     error
}

// Messages sent on the progress channel of a session.
type (
	// FileMsg announces that the payload of a file starts streaming.
	FileMsg struct {
		Name string
		Size uint32
	}
	// ProgressMsg carries the number of payload bytes received since the previous one.
	ProgressMsg int
	// ResultMsg is sent once per requested file.
	ResultMsg Result
)

// Session requests files over a single connection, one at a time.
type Session struct {
	transport *conn.Transport
	logger    *zap.Logger
	msgs      chan<- interface{}

	state   State
	scratch []byte
}

type Option func(*Session)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithProgress reports progress on msgs. The channel must be drained while the session runs.
func WithProgress(msgs chan<- interface{}) Option {
	return func(s *Session) {
		s.msgs = msgs
	}
}

func NewSession(t *conn.Transport, opts ...Option) *Session {
	s := &Session{
		transport: t,
		logger:    zap.NewNop(),
		scratch:   make([]byte, transfer.BufferSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the state reached by the latest request. Not safe for use while a request runs.
func (s *Session) State() State {
	return s.state
}

// Run requests names in order and stops at the first file that is not received
// successfully. create is called right before a file is requested.
func (s *Session) Run(ctx context.Context, names []string, create func(name string) (Sink, error)) []Result {
	results := make([]Result, 0, len(names))
	for _, name := range names {
		sink, err := create(name)
		if err != nil {
			s.state = Failed
			res := Result{Name: name, Outcome: transfer.Classify(err), Err: fmt.Errorf("creating destination: %w", err)}
			s.report(ctx, ResultMsg(res))
			results = append(results, res)
			break
		}
		res := s.Get(ctx, name, sink)
		results = append(results, res)
		if res.Outcome != transfer.Success {
			s.logger.Info("aborting remaining requests", zap.String("file", name), zap.String("outcome", res.Outcome.Name()))
			break
		}
	}
	return results
}

// Get requests a single file and streams its payload into sink. The sink is
// committed on success and discarded otherwise.
func (s *Session) Get(ctx context.Context, name string, sink Sink) Result {
	stop := s.transport.CloseOnDone(ctx)
	defer stop()

	logger := s.logger.With(zap.String("file", name))
	res := s.get(ctx, name, sink)
	if res.Err != nil && ctx.Err() != nil {
		res.Err = fmt.Errorf("%w: %w", ctx.Err(), res.Err)
	}

	switch res.Outcome {
	case transfer.Success:
		s.state = Completed
		logger.Info("file received", zap.Uint32("size", res.Size), zap.Uint32("mod_time", res.ModTime))
	case transfer.NotFoundOnServer:
		s.state = NotFound
		sink.Discard()
		logger.Info("file not found on server")
	default:
		s.state = Failed
		sink.Discard()
		logger.Warn("file transfer failed", zap.String("outcome", res.Outcome.Name()), zap.Error(res.Err))
	}
	s.report(ctx, ResultMsg(res))
	return res
}

func (s *Session) get(ctx context.Context, name string, sink Sink) Result {
	res := Result{Name: name}
	fail := func(err error) Result {
		res.Outcome = transfer.Classify(err)
		res.Err = err
		return res
	}

	s.state = Requesting
	req, err := transfer.EncodeRequest(name)
	if err != nil {
		return fail(err)
	}
	if err := s.transport.SendAll(req); err != nil {
		return fail(fmt.Errorf("sending request: %w", err))
	}

	s.state = AwaitingResponse
	found, size, err := transfer.ReadStatus(s.transport)
	if err != nil {
		return fail(err)
	}
	if !found {
		res.Outcome = transfer.NotFoundOnServer
		return res
	}

	s.state = Streaming
	res.Size = size
	s.report(ctx, FileMsg{Name: name, Size: size})
	w := &progressWriter{w: sink, report: func(n int) { s.report(ctx, ProgressMsg(n)) }}
	if err := transfer.ReadPayload(s.transport, w, size, s.scratch); err != nil {
		return fail(err)
	}
	if res.ModTime, err = transfer.ReadTimestamp(s.transport); err != nil {
		return fail(err)
	}
	if err := sink.Commit(res.ModTime); err != nil {
		return fail(fmt.Errorf("committing %s: %w", name, err))
	}
	res.Outcome = transfer.Success
	return res
}

func (s *Session) report(ctx context.Context, msg interface{}) {
	if s.msgs == nil {
		return
	}
	select {
	case s.msgs <- msg:
	case <-ctx.Done():
	}
}

type progressWriter struct {
	w      io.Writer
	report func(int)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.report(n)
	}
	return n, err
}
