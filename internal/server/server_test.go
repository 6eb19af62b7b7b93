package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SpatiumPortae/xfer/internal/metrics"
	"github.com/SpatiumPortae/xfer/internal/semver"
	"github.com/SpatiumPortae/xfer/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var version = semver.Version{Major: 1, Minor: 2, Patch: 3}

func startServer(t *testing.T, cfg server.Config, opts ...server.Option) (*server.Server, context.CancelFunc, <-chan error) {
	t.Helper()
	s := server.NewServer(cfg, testFiles(), version, opts...)
	require.NoError(t, s.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() {
		errC <- s.Serve(ctx)
	}()
	t.Cleanup(cancel)
	return s, cancel, errC
}

func fetch(t *testing.T, addr, name string) string {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte("GET " + name + "\r\n"))
	require.NoError(t, err)
	payload, _ := readFound(t, c)
	return string(payload)
}

func TestServer(t *testing.T) {
	t.Run("sequential", func(t *testing.T) {
		s, cancel, errC := startServer(t, server.Config{})
		assert.Equal(t, "hello world", fetch(t, s.Addr().String(), "hello.txt"))
		assert.Equal(t, "hello world", fetch(t, s.Addr().String(), "hello.txt"))
		cancel()
		assert.NoError(t, waitErr(t, errC))
	})
	t.Run("concurrent", func(t *testing.T) {
		s, cancel, errC := startServer(t, server.Config{Concurrent: true, MaxConnections: 4})
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.Len(t, fetch(t, s.Addr().String(), "big.bin"), 10000)
			}()
		}
		wg.Wait()
		cancel()
		assert.NoError(t, waitErr(t, errC))
	})
	t.Run("shutdown closes active sessions", func(t *testing.T) {
		s, cancel, errC := startServer(t, server.Config{Concurrent: true})
		c, err := net.Dial("tcp", s.Addr().String())
		require.NoError(t, err)
		defer c.Close()
		require.Eventually(t, func() bool { return s.Active() == 1 }, time.Second, 10*time.Millisecond)

		cancel()
		assert.NoError(t, waitErr(t, errC))
		c.SetReadDeadline(time.Now().Add(time.Second))
		_, err = c.Read(make([]byte, 1))
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 0, s.Active())
	})
	t.Run("metrics", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m, err := metrics.NewServer(reg)
		require.NoError(t, err)
		s, cancel, errC := startServer(t, server.Config{}, server.WithMetrics(m, reg))
		fetch(t, s.Addr().String(), "hello.txt")
		cancel()
		require.NoError(t, waitErr(t, errC))

		families, err := reg.Gather()
		require.NoError(t, err)
		values := map[string]float64{}
		for _, f := range families {
			for _, metric := range f.GetMetric() {
				switch {
				case metric.GetCounter() != nil:
					values[f.GetName()] += metric.GetCounter().GetValue()
				case metric.GetGauge() != nil:
					values[f.GetName()] += metric.GetGauge().GetValue()
				}
			}
		}
		assert.Equal(t, 1.0, values["xfer_server_connections_total"])
		assert.Equal(t, 0.0, values["xfer_server_connections_active"])
		assert.Equal(t, 1.0, values["xfer_server_requests_total"])
		assert.Equal(t, 11.0, values["xfer_server_payload_bytes_total"])
	})
}

func TestGateway(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewServer(reg)
	require.NoError(t, err)
	s := server.NewServer(server.Config{}, testFiles(), version, server.WithMetrics(m, reg))
	g := server.NewGateway(s, 0)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	t.Run("ping", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/ping")
		require.NoError(t, err)
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Equal(t, "pong", string(b))
	})
	t.Run("version", func(t *testing.T) {
		ver, err := semver.GetServerVersion(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
		require.NoError(t, err)
		assert.Equal(t, version, ver)
	})
	t.Run("metrics", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Contains(t, string(b), "xfer_server_connections_total")
	})
	t.Run("landing", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/")
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)
		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Contains(t, string(b), "xfer v1.2.3")
	})
	t.Run("fetch requires websocket", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/fetch")
		require.NoError(t, err)
		defer res.Body.Close()
		assert.NotEqual(t, http.StatusOK, res.StatusCode)
	})
	t.Run("version json", func(t *testing.T) {
		res, err := http.Get(srv.URL + "/version")
		require.NoError(t, err)
		defer res.Body.Close()
		var v map[string]int
		require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
		assert.Equal(t, map[string]int{"major": 1, "minor": 2, "patch": 3}, v)
	})
}
