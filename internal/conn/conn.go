package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// DefaultIdleTimeout bounds every single wait for incoming data.
const DefaultIdleTimeout = 15 * time.Second

// maxEmptyReads mirrors bufio: readers returning (0, nil) this many times in a row are broken.
const maxEmptyReads = 100

var (
	ErrTransport = errors.New("transport error")
	ErrTimeout   = errors.New("timeout expired")
)

// Conn is the byte stream a Transport operates on, net.Conn satisfies it.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// ------------------ Transport --------------------------------

// Transport sends and receives complete messages over a Conn.
type Transport struct {
	conn        Conn
	idleTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

type Option func(*Transport)

// WithIdleTimeout sets how long a single wait for data may last. Non-positive values disable the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.idleTimeout = d
	}
}

func New(c Conn, opts ...Option) *Transport {
	t := &Transport{
		conn:        c,
		idleTimeout: DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SendAll writes all of p, retrying short and interrupted writes.
func (t *Transport) SendAll(p []byte) error {
	for len(p) > 0 {
		n, err := t.conn.Write(p)
		p = p[n:]
		switch {
		case err != nil && interrupted(err):
			continue
		case err != nil:
			return fmt.Errorf("%w: %w", ErrTransport, err)
		case n == 0:
			return fmt.Errorf("%w: %w", ErrTransport, io.ErrNoProgress)
		}
	}
	return nil
}

// RecvExact fills p completely. The idle timeout applies to each wait for data,
// not to the message as a whole. On failure the content of p is undefined.
func (t *Transport) RecvExact(p []byte) error {
	for read := 0; read < len(p); {
		n, err := t.RecvSome(p[read:])
		read += n
		if err != nil {
			return err
		}
	}
	return nil
}

// RecvSome waits for data and reads at most len(p) bytes of it.
// A closed connection is reported as an ErrTransport wrapping io.EOF.
func (t *Transport) RecvSome(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for empty := 0; empty < maxEmptyReads; {
		// Some connections refuse new deadlines once closed; the read reports why.
		if err := t.armDeadline(); err != nil && !closedConn(err) {
			return 0, fmt.Errorf("%w: setting read deadline: %w", ErrTransport, err)
		}
		n, err := t.conn.Read(p)
		switch {
		case n > 0:
			return n, nil
		case err == nil:
			empty++
		case interrupted(err):
		case isTimeout(err):
			return 0, fmt.Errorf("%w: no data within %s", ErrTimeout, t.idleTimeout)
		default:
			return 0, fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}
	return 0, fmt.Errorf("%w: %w", ErrTransport, io.ErrNoProgress)
}

// Close closes the underlying connection. Only the first call has an effect,
// any receive blocked on the connection returns with ErrTransport.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// CloseOnDone closes the transport once ctx is done. The returned function
// detaches ctx and reports whether it did so before the close happened.
func (t *Transport) CloseOnDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		t.Close()
	})
}

// RemoteAddr returns the address of the peer, if the connection knows it.
func (t *Transport) RemoteAddr() string {
	if c, ok := t.conn.(interface{ RemoteAddr() net.Addr }); ok && c.RemoteAddr() != nil {
		return c.RemoteAddr().String()
	}
	return ""
}

func (t *Transport) armDeadline() error {
	if t.idleTimeout <= 0 {
		return t.conn.SetReadDeadline(time.Time{})
	}
	return t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
}

func closedConn(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
