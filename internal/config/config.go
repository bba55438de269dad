// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values for every setting
//  2. Config File: optional YAML file (CONFIG_PATH or a default path)
//  3. Environment Variables: override any mapped setting
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return fmt.Errorf("load config: %w", err)
//	}
//	srv := &http.Server{Addr: cfg.Server.Addr()}
//
// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Rules      RulesConfig      `koanf:"rules"`
	Watcher    WatcherConfig    `koanf:"watcher"`
	Breaker    BreakerConfig    `koanf:"breaker"`
	Security   SecurityConfig   `koanf:"security"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RulesConfig locates the published rule files and tunes the rule server.
type RulesConfig struct {
	// DataDir holds the checkpoint and rules files.
	DataDir string `koanf:"data_dir"`

	// CheckpointFile is the checkpoint's file name inside DataDir.
	CheckpointFile string `koanf:"checkpoint_file"`

	// RulesFile is the rules file name inside DataDir.
	RulesFile string `koanf:"rules_file"`

	// RetryDelay before a failed reload is retried.
	RetryDelay time.Duration `koanf:"retry_delay"`

	// QueryRetryDelay before a query that arrived before the first load is
	// re-examined.
	QueryRetryDelay time.Duration `koanf:"query_retry_delay"`

	// QueryTimeout bounds one recommend request, including waiting for the
	// first snapshot.
	QueryTimeout time.Duration `koanf:"query_timeout"`

	// WatcherShutdownTimeout bounds the wait for the file watcher on shutdown.
	WatcherShutdownTimeout time.Duration `koanf:"watcher_shutdown_timeout"`

	// MailboxSize is the rule server's mailbox depth.
	MailboxSize int `koanf:"mailbox_size"`
}

// CheckpointPath returns the full checkpoint path.
func (r RulesConfig) CheckpointPath() string {
	return filepath.Join(r.DataDir, r.CheckpointFile)
}

// RulesPath returns the full rules file path.
func (r RulesConfig) RulesPath() string {
	return filepath.Join(r.DataDir, r.RulesFile)
}

// WatcherConfig tunes the checkpoint file watcher.
type WatcherConfig struct {
	RetryDelay     time.Duration `koanf:"retry_delay"`
	Debounce       time.Duration `koanf:"debounce"`
	EscalateAfter  int           `koanf:"escalate_after"`
	ReinstallBurst int           `koanf:"reinstall_burst"`
}

// BreakerConfig tunes the circuit breaker around rule file reads.
type BreakerConfig struct {
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio"`
}

// SecurityConfig holds CORS and rate limiting settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// SupervisorConfig holds the suture tree's restart policy.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level: trace, debug, info, warn, error, fatal, panic, disabled
	Level string `koanf:"level"`

	// Format: json or console
	Format string `koanf:"format"`

	// Caller adds file:line to each entry.
	Caller bool `koanf:"caller"`
}

// Load loads configuration from defaults, the config file found via
// CONFIG_PATH or DefaultConfigPaths, and the environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// LoadFile is Load with an explicit config file, which must exist.
func LoadFile(path string) (*Config, error) {
	cfg, err := loadFrom(path, true)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
