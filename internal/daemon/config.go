// Package daemon manages the swarmd lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	TLS       TLSConfig       `toml:"tls"`
	Auth      AuthConfig      `toml:"auth"`
	Liveness  LivenessConfig  `toml:"liveness"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	History   HistoryConfig   `toml:"history"`
	Health    HealthConfig    `toml:"health"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig controls the listener.
type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	RedirectURL    string `toml:"redirect_url"`
	ReadLimitBytes int64  `toml:"read_limit_bytes"`
	WriteTimeout   string `toml:"write_timeout"`
}

// TLSConfig locates the certificate. With no cert_file the listener serves
// plain HTTP, which is only meant for running behind a terminating proxy.
type TLSConfig struct {
	CertFile   string `toml:"cert_file"`
	KeyFile    string `toml:"key_file"`
	Passphrase string `toml:"passphrase"`
	Watch      bool   `toml:"watch"`
}

// AuthConfig controls the handshake.
type AuthConfig struct {
	AccessKeyLength int    `toml:"access_key_length"`
	QueryParam      string `toml:"query_param"`
}

// LivenessConfig controls the per-peer heartbeat.
type LivenessConfig struct {
	Interval string `toml:"interval"`
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// HistoryConfig controls the session ledger.
type HistoryConfig struct {
	Enabled   bool   `toml:"enabled"`
	Retention string `toml:"retention"`
}

// HealthConfig controls background health checks.
type HealthConfig struct {
	Interval   string `toml:"interval"`
	CertExpiry string `toml:"cert_expiry_warning"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8443,
			RedirectURL:    "https://zelexis.com/",
			ReadLimitBytes: 64 * 1024,
			WriteTimeout:   "10s",
		},
		TLS: TLSConfig{
			Watch: true,
		},
		Auth: AuthConfig{
			AccessKeyLength: 5,
			QueryParam:      "key",
		},
		Liveness: LivenessConfig{
			Interval: "30s",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		History: HistoryConfig{
			Enabled:   true,
			Retention: "168h",
		},
		Health: HealthConfig{
			Interval:   "60s",
			CertExpiry: "168h",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads config from $SWARMD_HOME/config.toml, falling back to
// defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads config from path. A missing file yields defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet — use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values that would stop the server from working.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Auth.AccessKeyLength <= 0 {
		return fmt.Errorf("auth.access_key_length must be positive")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file must be set together")
	}
	for name, v := range map[string]string{
		"server.write_timeout":       c.Server.WriteTimeout,
		"liveness.interval":          c.Liveness.Interval,
		"history.retention":          c.History.Retention,
		"health.interval":            c.Health.Interval,
		"health.cert_expiry_warning": c.Health.CertExpiry,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("%s: %q is not a positive duration", name, v)
		}
	}
	return nil
}

// SaveConfig writes the config to $SWARMD_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ConfigPath returns the config file location.
func ConfigPath() string {
	return filepath.Join(swarmdHome(), "config.toml")
}

// swarmdHome returns the swarmd data directory.
func swarmdHome() string {
	if env := os.Getenv("SWARMD_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".swarmd")
}

// SwarmdHome is exported for use by other packages.
func SwarmdHome() string {
	return swarmdHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
