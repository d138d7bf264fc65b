// Package config handles configuration management for notilink.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Listener ListenerConfig `mapstructure:"listener"`
	Link     LinkConfig     `mapstructure:"link"`
	Pairing  PairingConfig  `mapstructure:"pairing"`
	History  HistoryConfig  `mapstructure:"history"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the control API configuration.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	HTTPPort int    `mapstructure:"http_port"`
	// AuthToken enables bearer auth on the API when non-empty. Off by
	// default because the server binds loopback.
	AuthToken string `mapstructure:"auth_token"`
}

// ListenerConfig holds pairing listener configuration.
type ListenerConfig struct {
	// Port is the preferred listener port; when busy, the next free port in
	// the scan range is used and reported instead.
	Port        int  `mapstructure:"port"`
	TimeoutSecs int  `mapstructure:"timeout_secs"`
	AutoStart   bool `mapstructure:"auto_start"`
}

// LinkConfig holds outward link socket configuration.
type LinkConfig struct {
	ConnectTimeoutSecs int `mapstructure:"connect_timeout_secs"`
	ReadTimeoutSecs    int `mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs   int `mapstructure:"write_timeout_secs"`
	// StreamEvents controls whether an authorized link keeps reading
	// notification frames and republishing them on the event hub.
	StreamEvents bool `mapstructure:"stream_events"`
}

// PairingConfig holds pairing presentation configuration.
type PairingConfig struct {
	ShowQRInTerminal bool `mapstructure:"show_qr_in_terminal"`
}

// HistoryConfig holds the pairing/link journal configuration.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default search paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.notilink")
		v.AddConfigPath("/etc/notilink")
	}

	// Environment variable prefix
	v.SetEnvPrefix("NOTILINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file (optional - not an error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// Post-process configuration
	if err := postProcess(&cfg); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.http_port", 18081)
	v.SetDefault("server.auth_token", "")

	// Listener defaults
	v.SetDefault("listener.port", 18080)
	v.SetDefault("listener.timeout_secs", 300)
	v.SetDefault("listener.auto_start", false)

	// Link defaults
	v.SetDefault("link.connect_timeout_secs", 10)
	v.SetDefault("link.read_timeout_secs", 30)
	v.SetDefault("link.write_timeout_secs", 10)
	v.SetDefault("link.stream_events", true)

	// Pairing defaults
	v.SetDefault("pairing.show_qr_in_terminal", true)

	// History defaults
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// postProcess applies post-processing to configuration.
func postProcess(cfg *Config) error {
	// Default history path lives under the user config dir
	if cfg.History.Enabled && cfg.History.Path == "" {
		dir, err := GetConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve config dir: %w", err)
		}
		cfg.History.Path = filepath.Join(dir, "history.db")
	}

	if cfg.History.Path != "" {
		absPath, err := filepath.Abs(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to resolve history path: %w", err)
		}
		cfg.History.Path = absPath
	}

	return nil
}

// GetConfigDir returns the user config directory for notilink.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".notilink"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
