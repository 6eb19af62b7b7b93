package xfer_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/SpatiumPortae/xfer/internal/file"
	"github.com/SpatiumPortae/xfer/internal/semver"
	"github.com/SpatiumPortae/xfer/internal/server"
	"github.com/SpatiumPortae/xfer/internal/xfer"
	"github.com/SpatiumPortae/xfer/protocol/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var files = fstest.MapFS{
	"a.txt": {Data: []byte("alpha"), ModTime: time.Unix(1600000000, 0)},
	"b.txt": {Data: []byte(strings.Repeat("beta", 3000)), ModTime: time.Unix(1600000000, 0)},
	"dir/c": {Data: []byte("gamma")},
}

func startServer(t *testing.T) *server.Server {
	t.Helper()
	s := server.NewServer(server.Config{Concurrent: true}, file.NewFS(files), semver.Version{Major: 1})
	require.NoError(t, s.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func TestGet(t *testing.T) {
	s := startServer(t)
	addr := s.Addr().String()

	t.Run("tcp", func(t *testing.T) {
		dir := t.TempDir()
		dst := file.Destination{Dir: dir, PreserveModTime: true}
		results, err := xfer.Get(context.Background(), addr, []string{"a.txt", "b.txt", "dir/c"}, dst, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)

		b, err := os.ReadFile(filepath.Join(dir, "b.txt"))
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("beta", 3000), string(b))
		info, err := os.Stat(filepath.Join(dir, "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, int64(1600000000), info.ModTime().Unix())
		_, err = os.Stat(filepath.Join(dir, "c"))
		assert.NoError(t, err)
	})
	t.Run("incomplete", func(t *testing.T) {
		dir := t.TempDir()
		results, err := xfer.Get(context.Background(), addr, []string{"a.txt", "missing.txt", "b.txt"}, file.Destination{Dir: dir}, nil)
		assert.ErrorIs(t, err, xfer.ErrIncomplete)
		require.Len(t, results, 2)
		assert.Equal(t, transfer.NotFoundOnServer, results[1].Outcome)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1, "only the received file remains")
		assert.Equal(t, "a.txt", entries[0].Name())
	})
	t.Run("unknown transport", func(t *testing.T) {
		_, err := xfer.Dial(context.Background(), addr, &xfer.Config{Transport: "udp"})
		assert.ErrorIs(t, err, xfer.ErrUnknownTransport)
	})
	t.Run("connection refused", func(t *testing.T) {
		_, err := xfer.Get(context.Background(), "127.0.0.1:1", []string{"a.txt"}, file.Destination{Dir: t.TempDir()}, nil)
		assert.Error(t, err)
	})
}

func TestGetWebsocket(t *testing.T) {
	s := server.NewServer(server.Config{}, file.NewFS(files), semver.Version{Major: 1, Minor: 4})
	gw := httptest.NewServer(server.NewGateway(s, 0).Handler())
	defer gw.Close()
	addr := strings.TrimPrefix(gw.URL, "http://")

	t.Run("positive", func(t *testing.T) {
		dir := t.TempDir()
		cfg := &xfer.Config{Transport: xfer.TransportWebsocket, Version: "v1.0.0"}
		results, err := xfer.Get(context.Background(), addr, []string{"a.txt", "b.txt"}, file.Destination{Dir: dir, Compress: true}, cfg)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, uint32(12000), results[1].Size)
		_, err = os.Stat(filepath.Join(dir, "b.txt.gz"))
		assert.NoError(t, err)
	})
	t.Run("incompatible version", func(t *testing.T) {
		cfg := &xfer.Config{Transport: xfer.TransportWebsocket, Version: "v2.0.0"}
		_, err := xfer.Dial(context.Background(), addr, cfg)
		assert.ErrorIs(t, err, xfer.ErrIncompatibleVersion)
		assert.ErrorContains(t, err, "server is outdated")
	})
	t.Run("outdated client", func(t *testing.T) {
		cfg := &xfer.Config{Transport: xfer.TransportWebsocket, Version: "v0.9.0"}
		_, err := xfer.Dial(context.Background(), addr, cfg)
		assert.ErrorIs(t, err, xfer.ErrIncompatibleVersion)
		assert.ErrorContains(t, err, "client is outdated")
	})
}

func TestMergeConfig(t *testing.T) {
	dst := xfer.Config{Transport: xfer.TransportTCP, IdleTimeout: 15 * time.Second}
	merged := xfer.MergeConfig(dst, &xfer.Config{IdleTimeout: time.Second})
	assert.Equal(t, xfer.Config{Transport: xfer.TransportTCP, IdleTimeout: time.Second}, merged)

	merged = xfer.MergeConfig(dst, nil)
	assert.Equal(t, dst, merged)
}
