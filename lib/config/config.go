// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the petitiond configuration from a single YAML
// file specified by the --config flag or the PETITIOND_CONFIG
// environment variable. There are no fallbacks or automatic discovery:
// configuration is deterministic and auditable, with no hidden
// overrides and no process-wide mutable state — the loaded Config is
// constructed once at startup and passed by reference.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted when --config is not
// given.
const EnvVar = "PETITIOND_CONFIG"

// Duration wraps time.Duration with YAML parsing of strings like
// "20s" or "4h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full petitiond configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Keystore  KeystoreConfig  `yaml:"keystore"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Reports   ReportsConfig   `yaml:"reports"`
	Security  SecurityConfig  `yaml:"security"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the TLS listener.
type ServerConfig struct {
	// Listen is the host:port to bind, e.g. "0.0.0.0:7790".
	Listen string `yaml:"listen"`

	// DrainTimeout bounds the wait for in-flight connection handlers
	// during shutdown. Default 10s.
	DrainTimeout Duration `yaml:"drain_timeout"`

	// MaxBatchBytes bounds a single request line. Default 64 KiB.
	MaxBatchBytes int `yaml:"max_batch_bytes"`
}

// StorageConfig configures the petition store.
type StorageConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size. Default 4.
	PoolSize int `yaml:"pool_size"`

	// ResetOnStart drops and recreates the petition table at startup,
	// discarding all history. Off by default.
	ResetOnStart bool `yaml:"reset_on_start"`
}

// KeystoreConfig locates TLS credential material.
type KeystoreConfig struct {
	KeyPath          string `yaml:"key_path"`
	CertPath         string `yaml:"cert_path"`
	TrustAnchorsPath string `yaml:"trust_anchors_path"`
	CommonName       string `yaml:"common_name"`
}

// RateLimitConfig tunes the burst guard.
type RateLimitConfig struct {
	// HistorySize is how many recent petitions the guard examines and
	// the count threshold that arms it. Default 3.
	HistorySize int `yaml:"history_size"`

	// Window is the minimum span those petitions must cover. Default
	// 4h.
	Window Duration `yaml:"window"`
}

// ReportsConfig configures the periodic report job. Reporting is
// disabled when LogsDir is empty.
type ReportsConfig struct {
	LogsDir    string   `yaml:"logs_dir"`
	ReportsDir string   `yaml:"reports_dir"`
	Interval   Duration `yaml:"interval"`
}

// SecurityConfig holds the optional client-key bindings.
type SecurityConfig struct {
	// TrustedKeysPath is a YAML file mapping client ids to base64
	// public keys. When set, petitions must carry the registered key
	// for their client.
	TrustedKeysPath string `yaml:"trusted_keys_path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default info.
	Level string `yaml:"level"`
}

// Load reads and validates the configuration file. path may be empty,
// in which case the PETITIOND_CONFIG environment variable is
// consulted.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return nil, fmt.Errorf("no configuration file: pass --config or set %s", EnvVar)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.DrainTimeout <= 0 {
		c.Server.DrainTimeout = Duration(10 * time.Second)
	}
	if c.Server.MaxBatchBytes <= 0 {
		c.Server.MaxBatchBytes = 64 * 1024
	}
	if c.Storage.PoolSize <= 0 {
		c.Storage.PoolSize = 4
	}
	if c.RateLimit.HistorySize <= 0 {
		c.RateLimit.HistorySize = 3
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = Duration(4 * time.Hour)
	}
	if c.Reports.Interval <= 0 {
		c.Reports.Interval = Duration(20 * time.Second)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Keystore.KeyPath == "" || c.Keystore.CertPath == "" {
		return fmt.Errorf("keystore.key_path and keystore.cert_path are required")
	}
	if c.Reports.LogsDir != "" && c.Reports.ReportsDir == "" {
		return fmt.Errorf("reports.reports_dir is required when reports.logs_dir is set")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	return nil
}
