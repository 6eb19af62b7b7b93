package server_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/SpatiumPortae/xfer/internal/conn"
	"github.com/SpatiumPortae/xfer/internal/file"
	"github.com/SpatiumPortae/xfer/internal/metrics"
	"github.com/SpatiumPortae/xfer/internal/server"
	"github.com/SpatiumPortae/xfer/protocol/transfer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var modTime = time.Unix(1700000000, 0)

func testFiles() *file.FS {
	return file.NewFS(fstest.MapFS{
		"hello.txt": {Data: []byte("hello world"), ModTime: modTime},
		"big.bin":   {Data: bytes.Repeat([]byte{1, 2, 3, 4, 5}, 2000), ModTime: modTime},
		"empty":     {Data: nil, ModTime: modTime},
		"dir/a.txt": {Data: []byte("a"), ModTime: modTime},
	})
}

// startSession serves the server end of a pipe and returns the client end.
func startSession(t *testing.T, opts ...conn.Option) (net.Conn, *server.Session, <-chan error) {
	t.Helper()
	client, srv := net.Pipe()
	t.Cleanup(func() { client.Close() })
	session := server.NewSession(conn.New(srv, opts...), testFiles(), nil, nil)
	errC := make(chan error, 1)
	go func() {
		errC <- session.Serve(context.Background())
	}()
	return client, session, errC
}

func waitErr(t *testing.T, errC <-chan error) error {
	t.Helper()
	select {
	case err := <-errC:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func readFound(t *testing.T, c net.Conn) (payload []byte, mt uint32) {
	t.Helper()
	header := make([]byte, transfer.HeaderSize)
	_, err := io.ReadFull(c, header)
	require.NoError(t, err)
	require.Equal(t, "+OK\r\n", string(header[:5]))
	payload = make([]byte, binary.BigEndian.Uint32(header[5:]))
	_, err = io.ReadFull(c, payload)
	require.NoError(t, err)
	ts := make([]byte, transfer.TimestampSize)
	_, err = io.ReadFull(c, ts)
	require.NoError(t, err)
	return payload, binary.BigEndian.Uint32(ts)
}

func TestSession(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		c, session, errC := startSession(t)
		_, err := c.Write([]byte("GET hello.txt\r\n"))
		require.NoError(t, err)

		payload, mt := readFound(t, c)
		assert.Equal(t, "hello world", string(payload))
		assert.Equal(t, uint32(1700000000), mt)

		require.NoError(t, c.Close())
		assert.NoError(t, waitErr(t, errC), "peer disconnect is orderly")
		assert.Equal(t, server.Closed, session.State())
	})
	t.Run("several requests", func(t *testing.T) {
		c, _, errC := startSession(t)
		for _, name := range []string{"big.bin", "empty", "dir/a.txt", "big.bin"} {
			_, err := c.Write([]byte("GET " + name + "\r\n"))
			require.NoError(t, err)
			payload, _ := readFound(t, c)
			expected, err := testFiles().Stat(name)
			require.NoError(t, err)
			assert.Len(t, payload, int(expected.Size), name)
		}
		c.Close()
		assert.NoError(t, waitErr(t, errC))
	})
	t.Run("fragmented request", func(t *testing.T) {
		c, _, errC := startSession(t)
		for _, b := range []byte("GET hello.txt\r\n") {
			_, err := c.Write([]byte{b})
			require.NoError(t, err)
		}
		payload, _ := readFound(t, c)
		assert.Equal(t, "hello world", string(payload))
		c.Close()
		assert.NoError(t, waitErr(t, errC))
	})
	t.Run("peer closes before a request", func(t *testing.T) {
		c, session, errC := startSession(t)
		require.NoError(t, c.Close())
		assert.NoError(t, waitErr(t, errC))
		assert.Equal(t, server.Closed, session.State())
	})
	t.Run("not found ends the session", func(t *testing.T) {
		for _, name := range []string{"missing.txt", "dir", "../hello.txt", "/hello.txt"} {
			c, _, errC := startSession(t)
			_, err := c.Write([]byte("GET " + name + "\r\n"))
			require.NoError(t, err)

			b, err := io.ReadAll(c)
			require.NoError(t, err)
			assert.Equal(t, "-ERR\r\n", string(b), name)
			assert.NoError(t, waitErr(t, errC))
		}
	})
	t.Run("no further reads after not found", func(t *testing.T) {
		c, _, errC := startSession(t)
		_, err := c.Write([]byte("GET missing.txt\r\n"))
		require.NoError(t, err)
		b := make([]byte, 6)
		_, err = io.ReadFull(c, b)
		require.NoError(t, err)
		assert.NoError(t, waitErr(t, errC))

		_, err = c.Write([]byte("GET hello.txt\r\n"))
		assert.Error(t, err, "the server end is closed")
	})
}

func TestSessionViolations(t *testing.T) {
	for name, raw := range map[string]string{
		"pipelined":    "GET hello.txt\r\nGET hello.txt\r\n",
		"wrong verb":   "PUT hello.txt\r\n",
		"empty name":   "GET \r\n",
		"long name":    "GET " + strings.Repeat("n", transfer.MaxNameLength+1) + "\r\n",
		"unterminated": "GET " + strings.Repeat("n", transfer.BufferSize),
	} {
		t.Run(name, func(t *testing.T) {
			c, session, errC := startSession(t)
			go c.Write([]byte(raw))

			b, err := io.ReadAll(c)
			require.NoError(t, err)
			assert.Empty(t, b, "no response to a malformed request")
			err = waitErr(t, errC)
			assert.ErrorIs(t, err, transfer.ErrProtocolViolation)
			assert.Equal(t, server.Closed, session.State())
		})
	}
}

func TestSessionTimeout(t *testing.T) {
	c, _, errC := startSession(t, conn.WithIdleTimeout(50*time.Millisecond))
	_, err := c.Write([]byte("GET hel"))
	require.NoError(t, err)

	err = waitErr(t, errC)
	assert.ErrorIs(t, err, conn.ErrTimeout)
	assert.Equal(t, transfer.TimeoutExpired, transfer.Classify(err))
}

func TestSessionRequestMetrics(t *testing.T) {
	for name, tc := range map[string]struct {
		sent     string
		requests int
	}{
		"idle connection": {sent: "", requests: 0},
		"partial request": {sent: "GET hel", requests: 1},
	} {
		t.Run(name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			m, err := metrics.NewServer(reg)
			require.NoError(t, err)

			client, srv := net.Pipe()
			defer client.Close()
			session := server.NewSession(conn.New(srv, conn.WithIdleTimeout(50*time.Millisecond)), testFiles(), nil, m)
			errC := make(chan error, 1)
			go func() {
				errC <- session.Serve(context.Background())
			}()
			if tc.sent != "" {
				_, err := client.Write([]byte(tc.sent))
				require.NoError(t, err)
			}
			assert.ErrorIs(t, waitErr(t, errC), conn.ErrTimeout)

			count, err := testutil.GatherAndCount(reg, "xfer_server_requests_total")
			require.NoError(t, err)
			assert.Equal(t, tc.requests, count)
		})
	}
}

func TestSessionCancel(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	session := server.NewSession(conn.New(srv), testFiles(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() {
		errC <- session.Serve(ctx)
	}()
	cancel()
	assert.ErrorIs(t, waitErr(t, errC), context.Canceled)
}

func TestStateName(t *testing.T) {
	for state, name := range map[server.State]string{
		server.WaitingRequest: "WaitingRequest",
		server.Resolving:      "Resolving",
		server.Responding:     "Responding",
		server.Closed:         "Closed",
	} {
		assert.Equal(t, name, state.Name())
	}
}
