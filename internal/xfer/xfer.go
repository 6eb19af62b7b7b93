package xfer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/SpatiumPortae/xfer/internal/client"
	"github.com/SpatiumPortae/xfer/internal/conn"
	"github.com/SpatiumPortae/xfer/internal/file"
	"github.com/SpatiumPortae/xfer/internal/semver"
	"github.com/SpatiumPortae/xfer/protocol/transfer"
	"nhooyr.io/websocket"
)

var (
	ErrUnknownTransport    = errors.New("unknown transport")
	ErrIncompatibleVersion = errors.New("incompatible server version")
	ErrIncomplete          = errors.New("not all files were received")
)

// Dial connects to the xfer server at addr over the configured transport.
// The provided config will be merged with the default config.
func Dial(ctx context.Context, addr string, config *Config) (*conn.Transport, error) {
	merged := MergeConfig(defaultConfig, config)
	var c conn.Conn
	switch merged.Transport {
	case TransportTCP:
		var d net.Dialer
		nc, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", addr, err)
		}
		c = nc
	case TransportWebsocket:
		if err := checkVersion(ctx, addr, merged.Version); err != nil {
			return nil, err
		}
		wsConn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/fetch", addr), nil)
		if err != nil {
			return nil, fmt.Errorf("connecting to gateway %s: %w", addr, err)
		}
		c = websocket.NetConn(ctx, wsConn, websocket.MessageBinary)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, merged.Transport)
	}
	return conn.New(c, conn.WithIdleTimeout(merged.IdleTimeout)), nil
}

// Get requests names, in order, from the xfer server at addr and stores them in dst.
// Requesting stops at the first file that is not received; in that case the returned
// error wraps ErrIncomplete. The provided config will be merged with the default config.
func Get(ctx context.Context, addr string, names []string, dst file.Destination, config *Config, opts ...client.Option) ([]client.Result, error) {
	t, err := Dial(ctx, addr, config)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	file.RemoveTemporaryFiles(dst.Dir, file.RECEIVE_TEMP_FILE_NAME_PREFIX)

	session := client.NewSession(t, opts...)
	results := session.Run(ctx, names, func(name string) (client.Sink, error) {
		sink, err := dst.Create(name)
		if err != nil {
			return nil, err
		}
		return sink, nil
	})
	if len(results) == len(names) && (len(results) == 0 || results[len(results)-1].Outcome == transfer.Success) {
		return results, nil
	}
	last := results[len(results)-1]
	if last.Err != nil {
		return results, fmt.Errorf("%w: %s: %s: %w", ErrIncomplete, last.Name, last.Outcome.Name(), last.Err)
	}
	return results, fmt.Errorf("%w: %s: %s", ErrIncomplete, last.Name, last.Outcome.Name())
}

func checkVersion(ctx context.Context, addr, version string) error {
	if version == "" {
		return nil
	}
	local, err := semver.Parse(version)
	if err != nil {
		return nil
	}
	remote, err := semver.GetServerVersion(ctx, addr)
	if err != nil {
		return err
	}
	if !local.Compatible(remote) {
		outdated := "server"
		if local.Less(remote) {
			outdated = "client"
		}
		return fmt.Errorf("%w: client %s, server %s (%s is outdated)", ErrIncompatibleVersion, local, remote, outdated)
	}
	return nil
}
