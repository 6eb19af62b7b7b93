package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/structs"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	CONFIGS_DIR_NAME     = ".config"
	XFER_CONFIG_DIR_NAME = "xfer"
	CONFIG_FILE_NAME     = "config"
	CONFIG_FILE_EXT      = "yml"
	ENV_PREFIX           = "XFER"

	StyleRich = "rich"
	StyleRaw  = "raw"

	TransportTCP       = "tcp"
	TransportWebsocket = "ws"
)

var (
	TuiStyles  = []string{StyleRich, StyleRaw}
	Transports = []string{TransportTCP, TransportWebsocket}
	LogLevels  = []string{"debug", "info", "warn", "error"}
)

type Config struct {
	Address              string `mapstructure:"address"`
	Port                 int    `mapstructure:"port"`
	Root                 string `mapstructure:"root"`
	IdleTimeout          string `mapstructure:"idle_timeout"`
	Concurrent           bool   `mapstructure:"concurrent"`
	MaxConnections       int    `mapstructure:"max_connections"`
	GatewayPort          int    `mapstructure:"gateway_port"`
	Transport            string `mapstructure:"transport"`
	Verbose              bool   `mapstructure:"verbose"`
	LogLevel             string `mapstructure:"log_level"`
	LogFile              string `mapstructure:"log_file"`
	LogMaxSizeMB         int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups        int    `mapstructure:"log_max_backups"`
	PromptOverwriteFiles bool   `mapstructure:"prompt_overwrite_files"`
	PreserveModTime      bool   `mapstructure:"preserve_mod_time"`
	TuiStyle             string `mapstructure:"tui_style"`
}

func GetDefault() Config {
	return Config{
		Address:              "127.0.0.1:8080",
		Port:                 8080,
		Root:                 ".",
		IdleTimeout:          "15s",
		Concurrent:           true,
		MaxConnections:       0,
		GatewayPort:          0,
		Transport:            TransportTCP,
		Verbose:              false,
		LogLevel:             "info",
		LogFile:              "",
		LogMaxSizeMB:         100,
		LogMaxBackups:        3,
		PromptOverwriteFiles: true,
		PreserveModTime:      false,
		TuiStyle:             StyleRich,
	}
}

func (config Config) Map() map[string]any {
	m := map[string]any{}
	for _, field := range structs.Fields(config) {
		key := field.Tag("mapstructure")
		value := field.Value()
		m[key] = value
	}
	return m
}

// Yaml renders the config one key per line, sorted by key.
func (config Config) Yaml() []byte {
	m := config.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for _, k := range keys {
		v := m[k]
		if s, ok := v.(string); ok {
			v = fmt.Sprintf("%q", s)
		}
		builder.WriteString(fmt.Sprintf("%s: %v", k, v))
		builder.WriteRune('\n')
	}
	return []byte(builder.String())
}

func IsDefault(key string) bool {
	defaults := GetDefault().Map()
	return viper.Get(key) == defaults[key]
}

// Init initializes the viper config.
// `config.yml` is created in $HOME/.config/xfer if not already existing.
// NOTE: The precedence levels of viper are the following: flags -> env -> config file -> defaults.
// Variables from `.env` and `.env.local` in the working directory are loaded into the environment first.
func Init() error {
	for _, name := range []string{".env", ".env.local"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", name, err)
		}
	}
	viper.SetEnvPrefix(ENV_PREFIX)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	home, err := homedir.Dir()
	if err != nil {
		return fmt.Errorf("resolving home dir: %w", err)
	}

	configPath := filepath.Join(home, CONFIGS_DIR_NAME, XFER_CONFIG_DIR_NAME)
	viper.AddConfigPath(configPath)
	viper.SetConfigName(CONFIG_FILE_NAME)
	viper.SetConfigType(CONFIG_FILE_EXT)

	if err := viper.ReadInConfig(); err != nil {
		// Create config file if not found.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("could not read config file: %w", err)
		}
		if err := os.MkdirAll(configPath, os.ModePerm); err != nil {
			return fmt.Errorf("could not create config directory: %w", err)
		}
		configFile := filepath.Join(configPath, fmt.Sprintf("%s.%s", CONFIG_FILE_NAME, CONFIG_FILE_EXT))
		if err := os.WriteFile(configFile, GetDefault().Yaml(), 0o644); err != nil {
			return fmt.Errorf("could not write defaults to config file: %w", err)
		}
		viper.SetConfigFile(configFile)
	}
	for k, v := range GetDefault().Map() {
		viper.SetDefault(k, v)
	}
	return nil
}
