// ABOUTME: Configuration loading and parsing for relay-gateway.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Default timing values applied when the config file leaves them unset.
// The idle timeout and sweep interval bound how long a silently dropped
// connection can linger: at most idle_timeout + sweep_interval.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultSweepInterval     = 60 * time.Second
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultCommandTimeout    = 30 * time.Second
)

// Config represents the complete relay-gateway configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Gateway GatewayConfig `yaml:"gateway"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds server address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// GatewayConfig holds connection-lifecycle timing configuration.
type GatewayConfig struct {
	HeartbeatInterval time.Duration `yaml:"-"`
	SweepInterval     time.Duration `yaml:"-"`
	IdleTimeout       time.Duration `yaml:"-"`
	CommandTimeout    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
	SweepIntervalRaw     string `yaml:"sweep_interval"`
	IdleTimeoutRaw       string `yaml:"idle_timeout"`
	CommandTimeoutRaw    string `yaml:"command_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Gateway.IdleTimeout < c.Gateway.SweepInterval {
		return fmt.Errorf("gateway.idle_timeout must be at least gateway.sweep_interval")
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics.path is required when metrics are enabled")
	}

	return nil
}

// applyDefaults fills unset timing fields with the product defaults.
func (c *Config) applyDefaults() {
	if c.Gateway.HeartbeatInterval == 0 {
		c.Gateway.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Gateway.SweepInterval == 0 {
		c.Gateway.SweepInterval = DefaultSweepInterval
	}
	if c.Gateway.IdleTimeout == 0 {
		c.Gateway.IdleTimeout = DefaultIdleTimeout
	}
	if c.Gateway.CommandTimeout == 0 {
		c.Gateway.CommandTimeout = DefaultCommandTimeout
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gateway.HeartbeatIntervalRaw != "" {
		cfg.Gateway.HeartbeatInterval, err = time.ParseDuration(cfg.Gateway.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Gateway.HeartbeatIntervalRaw, err)
		}
	}

	if cfg.Gateway.SweepIntervalRaw != "" {
		cfg.Gateway.SweepInterval, err = time.ParseDuration(cfg.Gateway.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Gateway.SweepIntervalRaw, err)
		}
	}

	if cfg.Gateway.IdleTimeoutRaw != "" {
		cfg.Gateway.IdleTimeout, err = time.ParseDuration(cfg.Gateway.IdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_timeout %q: %w", cfg.Gateway.IdleTimeoutRaw, err)
		}
	}

	if cfg.Gateway.CommandTimeoutRaw != "" {
		cfg.Gateway.CommandTimeout, err = time.ParseDuration(cfg.Gateway.CommandTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing command_timeout %q: %w", cfg.Gateway.CommandTimeoutRaw, err)
		}
	}

	return nil
}
