package config

import (
	"fmt"
)

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"console": true,
	"json":    true,
}

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}

	if err := validateListener(&cfg.Listener); err != nil {
		return err
	}

	if err := validateLink(&cfg.Link); err != nil {
		return err
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}

	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535")
	}
	if cfg.Host == "" {
		return fmt.Errorf("server.host cannot be empty")
	}
	return nil
}

func validateListener(cfg *ListenerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("listener.port must be between 1 and 65535")
	}
	if cfg.TimeoutSecs < 5 {
		return fmt.Errorf("listener.timeout_secs must be at least 5")
	}
	if cfg.TimeoutSecs > 3600 {
		return fmt.Errorf("listener.timeout_secs cannot exceed 3600")
	}
	return nil
}

func validateLink(cfg *LinkConfig) error {
	if cfg.ConnectTimeoutSecs < 1 {
		return fmt.Errorf("link.connect_timeout_secs must be at least 1")
	}
	if cfg.ConnectTimeoutSecs > 300 {
		return fmt.Errorf("link.connect_timeout_secs cannot exceed 300")
	}
	if cfg.ReadTimeoutSecs < 1 {
		return fmt.Errorf("link.read_timeout_secs must be at least 1")
	}
	if cfg.ReadTimeoutSecs > 300 {
		return fmt.Errorf("link.read_timeout_secs cannot exceed 300")
	}
	if cfg.WriteTimeoutSecs < 1 {
		return fmt.Errorf("link.write_timeout_secs must be at least 1")
	}
	if cfg.WriteTimeoutSecs > 300 {
		return fmt.Errorf("link.write_timeout_secs cannot exceed 300")
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	if !validLogLevels[cfg.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	if !validLogFormats[cfg.Format] {
		return fmt.Errorf("logging.format must be console or json")
	}
	return nil
}
