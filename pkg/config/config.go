// Package config handles interpreting the pgshuttle.json config file.
package config

import (
	"context"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
)

// Config holds the pgshuttle configuration.
type Config struct {
	Listen  []ListenAddr   `json:"listen"`
	Servers []ServerConfig `json:"servers"`
	Plugins []PluginConfig `json:"plugins,omitempty"`
	Limits  LimitsConfig   `json:"limits,omitempty"`

	Prometheus     *PrometheusConfig     `json:"prometheus,omitempty"`
	OpenTelemetry  *OpenTelemetryConfig  `json:"opentelemetry,omitempty"`
	FlightRecorder *FlightRecorderConfig `json:"flight_recorder,omitempty"`

	path string
}

// PluginConfig names one plugin to load, its dispatch priority (lower runs
// first), and opaque settings handed to the plugin's constructor.
type PluginConfig struct {
	Name     string          `json:"name"`
	Priority int             `json:"priority"`
	Settings jsontext.Value `json:"settings,omitempty"`
}

// LimitsConfig holds message-size and wait-time limits and their defaults.
// No session or pool code reads these values.
type LimitsConfig struct {
	MaxMessageBytes     ByteSize `json:"max_message_bytes,omitempty"`
	MaxCopyMessageBytes ByteSize `json:"max_copy_message_bytes,omitempty"`
	ConnectTimeout      Duration `json:"connect_timeout,omitempty"`
	QueryTimeout        Duration `json:"query_timeout,omitempty"`
}

const (
	defaultMaxMessageBytes     = 1 * MiB
	defaultMaxCopyMessageBytes = 1 * GiB
)

// GetMaxMessageBytes returns the configured limit, or its default.
func (l LimitsConfig) GetMaxMessageBytes() ByteSize {
	if l.MaxMessageBytes == 0 {
		return defaultMaxMessageBytes
	}
	return l.MaxMessageBytes
}

// GetMaxCopyMessageBytes returns the configured COPY-mode limit, or its default.
func (l LimitsConfig) GetMaxCopyMessageBytes() ByteSize {
	if l.MaxCopyMessageBytes == 0 {
		return defaultMaxCopyMessageBytes
	}
	return l.MaxCopyMessageBytes
}

// ParseConfig parses a JSON configuration string and returns a Config.
func ParseConfig(jsonStr string) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal([]byte(jsonStr), &cfg, json.RejectUnknownMembers(true)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadConfigFile reads and parses a configuration file from the given path.
func ReadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseConfig(string(data))
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.path = abs
	return cfg, nil
}

// FilePath returns the absolute path the config was loaded from, or "" for
// a Config built with ParseConfig directly (e.g. in tests).
func (c *Config) FilePath() string {
	return c.path
}

// Dir returns the directory containing the config file, used to resolve
// TLS certificate paths and other file references that are relative in the
// config file itself. Returns "." if the config has no known file path.
func (c *Config) Dir() string {
	if c.path == "" {
		return "."
	}
	return filepath.Dir(c.path)
}

// Secrets returns an iterator over all secret references in the config.
// Each secret is yielded with a description of where it appears in the config.
func (c *Config) Secrets() iter.Seq2[string, SecretRef] {
	return func(yield func(string, SecretRef) bool) {
		for i, server := range c.Servers {
			for j, user := range server.Users {
				if !yield(fmt.Sprintf("servers[%d].users[%d].username", i, j), user.Username) {
					return
				}
				if !yield(fmt.Sprintf("servers[%d].users[%d].password", i, j), user.Password) {
					return
				}
			}
		}
	}
}

// Validate verifies the configuration is valid:
// - All backend configs produce valid pool configs
// - All server TLS configs reference certificates that exist under fsys
// - All secrets are accessible
// - Observability sub-configs are internally consistent
// It does not stop at the first error; all errors are accumulated and returned together.
func (c *Config) Validate(ctx context.Context, fsys fs.FS, secrets *SecretCache, logger *slog.Logger) error {
	var errs []error

	for i, server := range c.Servers {
		if server.Backend.Host == "" {
			errs = append(errs, fmt.Errorf("servers[%d].backend: host is required", i))
		}
		if server.Backend.PoolMaxConns <= 0 {
			errs = append(errs, fmt.Errorf("servers[%d].backend: pool_max_conns must be positive", i))
		}
		switch server.Backend.PoolMode {
		case "", "session", "transaction", "statement":
		default:
			errs = append(errs, fmt.Errorf("servers[%d].backend: invalid pool_mode %q", i, server.Backend.PoolMode))
		}
		if server.TLS != nil {
			if err := server.TLS.Validate(fsys); err != nil {
				errs = append(errs, fmt.Errorf("servers[%d].tls: %w", i, err))
			}
		}
	}

	for i, plugin := range c.Plugins {
		if plugin.Name == "" {
			errs = append(errs, fmt.Errorf("plugins[%d]: name is required", i))
		}
	}

	if c.Prometheus != nil {
		if err := c.Prometheus.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("prometheus: %w", err))
		}
	}
	if c.OpenTelemetry != nil {
		if err := c.OpenTelemetry.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("opentelemetry: %w", err))
		}
	}
	if c.FlightRecorder != nil {
		if err := c.FlightRecorder.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("flight_recorder: %w", err))
		}
	}

	for path, ref := range c.Secrets() {
		if _, err := secrets.Get(ctx, ref); err != nil {
			errs = append(errs, errors.Join(errors.New(path), err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	if logger != nil {
		logger.Debug("config validated", "servers", len(c.Servers), "plugins", len(c.Plugins))
	}
	return nil
}
