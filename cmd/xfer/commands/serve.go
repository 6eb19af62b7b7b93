package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/SpatiumPortae/xfer/cmd/xfer/config"
	"github.com/SpatiumPortae/xfer/internal/file"
	"github.com/SpatiumPortae/xfer/internal/logger"
	"github.com/SpatiumPortae/xfer/internal/metrics"
	"github.com/SpatiumPortae/xfer/internal/semver"
	"github.com/SpatiumPortae/xfer/internal/server"
	"github.com/atotto/clipboard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func Serve(version string) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve files over the xfer protocol",
		Long:  "The serve command serves the files below the root directory to xfer clients.",
		Args:  cobra.MatchAll(cobra.ExactArgs(0), cobra.NoArgs),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for key, flag := range map[string]string{
				"port":            "port",
				"root":            "root",
				"concurrent":      "concurrent",
				"max_connections": "max-conns",
				"gateway_port":    "gateway-port",
				"idle_timeout":    "timeout",
				"log_level":       "log-level",
				"log_file":        "log-file",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return fmt.Errorf("binding %s flag: %w", flag, err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ver, err := semver.Parse(version)
			if err != nil {
				return fmt.Errorf("server requires version to be set: %w", err)
			}
			cfg, err := serverConfigFromViper()
			if err != nil {
				return err
			}
			if err := validateChoice("log_level", config.LogLevels); err != nil {
				return err
			}

			root := viper.GetString("root")
			info, err := os.Stat(root)
			if err != nil || !info.IsDir() {
				return fmt.Errorf("root (%s) is not a directory", root)
			}

			log, err := logger.NewFromConfig(logger.Config{
				Level:      viper.GetString("log_level"),
				File:       viper.GetString("log_file"),
				MaxSizeMB:  viper.GetInt("log_max_size_mb"),
				MaxBackups: viper.GetInt("log_max_backups"),
			})
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer log.Sync() //nolint:errcheck

			m, err := metrics.NewServer(prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("registering metrics: %w", err)
			}
			s := server.NewServer(cfg, file.Dir(root), ver,
				server.WithLogger(log),
				server.WithMetrics(m, prometheus.DefaultGatherer),
			)
			if err := s.Listen(); err != nil {
				return err
			}
			log.Info("xfer server listening",
				zap.String("address", s.Addr().String()),
				zap.String("root", root),
				zap.Bool("concurrent", cfg.Concurrent),
				zap.String("version", ver.String()))

			if copyAddr, _ := cmd.Flags().GetBool("copy-address"); copyAddr {
				if err := clipboard.WriteAll(s.Addr().String()); err != nil {
					log.Warn("could not copy address to clipboard", zap.Error(err))
				}
			}
			return s.Start()
		},
	}
	serveCmd.Flags().IntP("port", "p", 0, "port to serve files on (1024-65535)")
	serveCmd.Flags().StringP("root", "r", "", "directory to serve files from")
	serveCmd.Flags().BoolP("concurrent", "c", false, "serve connections in parallel")
	serveCmd.Flags().Int("max-conns", 0, "maximum number of parallel connections, 0 is unbounded")
	serveCmd.Flags().Int("gateway-port", 0, "port of the websocket gateway, 0 disables it")
	serveCmd.Flags().String("timeout", "", "maximum time to wait for data from a client, e.g. 15s")
	serveCmd.Flags().String("log-level", "", "log level (debug|info|warn|error)")
	serveCmd.Flags().String("log-file", "", "write logs to this file, rotated, instead of stderr")
	serveCmd.Flags().Bool("copy-address", false, "copy the listening address to the clipboard")
	return serveCmd
}

func serverConfigFromViper() (server.Config, error) {
	cfg := server.Config{
		Port:           viper.GetInt("port"),
		Concurrent:     viper.GetBool("concurrent"),
		MaxConnections: viper.GetInt("max_connections"),
		GatewayPort:    viper.GetInt("gateway_port"),
	}
	if err := validatePort(cfg.Port); err != nil {
		return cfg, err
	}
	if cfg.GatewayPort != 0 {
		if err := validatePort(cfg.GatewayPort); err != nil {
			return cfg, fmt.Errorf("gateway: %w", err)
		}
		if cfg.GatewayPort == cfg.Port {
			return cfg, fmt.Errorf("gateway port %d already used by the file server", cfg.Port)
		}
	}
	if cfg.MaxConnections < 0 {
		return cfg, fmt.Errorf("max connections must not be negative, got %d", cfg.MaxConnections)
	}
	idleTimeout, err := time.ParseDuration(viper.GetString("idle_timeout"))
	if err != nil || idleTimeout <= 0 {
		return cfg, fmt.Errorf("invalid idle timeout %q", viper.GetString("idle_timeout"))
	}
	cfg.IdleTimeout = idleTimeout
	return cfg, nil
}
