// Package config loads the roxyd daemon configuration from a YAML file,
// with environment overrides for the certificate material paths.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/aicers/roxy/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Duration accepts human-readable values like "30s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Channel ChannelConfig `yaml:"channel"`
	Exec    ExecConfig    `yaml:"exec"`
	Netplan NetplanConfig `yaml:"netplan"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LoggingConfig struct {
	Format     string                     `yaml:"format"`
	Level      logger.LogLevel            `yaml:"level"`
	Components map[string]logger.LogLevel `yaml:"components"`
}

// ChannelConfig describes the mutually authenticated listener. All three
// PEM paths are required; the paths (not the contents) can be overridden
// with ROXYD_CERT, ROXYD_KEY and ROXYD_CA.
type ChannelConfig struct {
	Listen      string   `yaml:"listen"`
	Cert        string   `yaml:"cert"`
	Key         string   `yaml:"key"`
	CACert      string   `yaml:"ca_cert"`
	IdleTimeout Duration `yaml:"idle_timeout"`
}

type ExecConfig struct {
	Timeout Duration `yaml:"timeout"`
}

type NetplanConfig struct {
	Dir string `yaml:"dir"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ROXYD_CERT"); v != "" {
		c.Channel.Cert = v
	}
	if v := os.Getenv("ROXYD_KEY"); v != "" {
		c.Channel.Key = v
	}
	if v := os.Getenv("ROXYD_CA"); v != "" {
		c.Channel.CACert = v
	}
}

func (c *Config) applyDefaults() {
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = logger.LogLevelInfo
	}
	if c.Channel.Listen == "" {
		c.Channel.Listen = "0.0.0.0:38390"
	}
	if c.Channel.IdleTimeout == 0 {
		c.Channel.IdleTimeout = Duration(5 * time.Minute)
	}
	if c.Exec.Timeout == 0 {
		c.Exec.Timeout = Duration(30 * time.Second)
	}
	if c.Netplan.Dir == "" {
		c.Netplan.Dir = "/etc/netplan"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9362"
	}
}

func (c *Config) Validate() error {
	if c.Channel.Cert == "" || c.Channel.Key == "" || c.Channel.CACert == "" {
		return fmt.Errorf("channel cert, key and ca_cert are required")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	return nil
}
