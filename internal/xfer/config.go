//nolint:errcheck
package xfer

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/SpatiumPortae/xfer/internal/conn"
)

const (
	TransportTCP       = "tcp"
	TransportWebsocket = "ws"
)

// defaultConfig specifies the default config for the xfer module.
var defaultConfig = Config{
	Transport:   TransportTCP,
	IdleTimeout: conn.DefaultIdleTimeout,
}

// Config specifes a config for the xfer module.
type Config struct {
	Transport   string        `json:"Transport,omitempty"`   // tcp or ws
	IdleTimeout time.Duration `json:"IdleTimeout,omitempty"` // bound of every single wait for data
	Version     string        `json:"Version,omitempty"`     // client version, checked against websocket gateways
}

// MergeConfigReader merges the config from the reader
// with into the provided config. Values in the reader
// will override values in the provided config
func MergeConfigReader(dst Config, r io.Reader) Config {
	json.NewDecoder(r).Decode(&dst)
	return dst
}

// MergeConfig merges the specified source config into the
// specified destination config. Values present in the source
// config will overide values in the destination config.
func MergeConfig(dst Config, src *Config) Config {
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(src)
	return MergeConfigReader(dst, &buf)
}
