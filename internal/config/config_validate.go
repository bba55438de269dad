// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tomtom215/songrules/internal/logging"
)

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateRules,
		c.validateWatcher,
		c.validateBreaker,
		c.validateSecurity,
		c.validateSupervisor,
		c.validateLogging,
	}

	for _, validator := range validators {
		if err := validator(); err != nil {
			return err
		}
	}
	return nil
}

// validateServer validates HTTP server settings
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 {
		return fmt.Errorf("HTTP timeouts must not be negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// validateRules validates rule file locations and rule server timing
func (c *Config) validateRules() error {
	if strings.TrimSpace(c.Rules.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if err := validateFileName(c.Rules.CheckpointFile, "CHECKPOINT_FILE"); err != nil {
		return err
	}
	if err := validateFileName(c.Rules.RulesFile, "RULES_FILE"); err != nil {
		return err
	}
	if c.Rules.CheckpointFile == c.Rules.RulesFile {
		return fmt.Errorf("CHECKPOINT_FILE and RULES_FILE must differ")
	}
	if c.Rules.RetryDelay <= 0 {
		return fmt.Errorf("RULES_RETRY_DELAY must be positive")
	}
	if c.Rules.QueryRetryDelay <= 0 {
		return fmt.Errorf("RULES_QUERY_RETRY_DELAY must be positive")
	}
	if c.Rules.QueryTimeout <= 0 {
		return fmt.Errorf("RULES_QUERY_TIMEOUT must be positive")
	}
	if c.Rules.WatcherShutdownTimeout <= 0 {
		return fmt.Errorf("RULES_WATCHER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Rules.MailboxSize < 1 || c.Rules.MailboxSize > maxMailboxSize {
		return fmt.Errorf("RULES_MAILBOX_SIZE must be between 1 and %d", maxMailboxSize)
	}
	return nil
}

const maxMailboxSize = 4096

// validateFileName requires a bare file name; both files must live directly
// in the data directory, which is what the watcher observes.
func validateFileName(name, field string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if filepath.Base(name) != name || name == "." || name == ".." {
		return fmt.Errorf("%s must be a file name without directories, got %q", field, name)
	}
	return nil
}

// validateWatcher validates file watcher settings
func (c *Config) validateWatcher() error {
	if c.Watcher.RetryDelay <= 0 {
		return fmt.Errorf("WATCHER_RETRY_DELAY must be positive")
	}
	if c.Watcher.Debounce <= 0 {
		return fmt.Errorf("WATCHER_DEBOUNCE must be positive")
	}
	if c.Watcher.EscalateAfter < 1 {
		return fmt.Errorf("WATCHER_ESCALATE_AFTER must be at least 1")
	}
	if c.Watcher.ReinstallBurst < 1 {
		return fmt.Errorf("WATCHER_REINSTALL_BURST must be at least 1")
	}
	return nil
}

// validateBreaker validates circuit breaker settings
func (c *Config) validateBreaker() error {
	if c.Breaker.MaxRequests < 1 {
		return fmt.Errorf("BREAKER_MAX_REQUESTS must be at least 1")
	}
	if c.Breaker.MinRequests < 1 {
		return fmt.Errorf("BREAKER_MIN_REQUESTS must be at least 1")
	}
	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		return fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0, 1], got %g", c.Breaker.FailureRatio)
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT must be positive")
	}
	if c.Breaker.Interval < 0 {
		return fmt.Errorf("BREAKER_INTERVAL must not be negative")
	}
	return nil
}

// validateSecurity validates CORS and rate limits
func (c *Config) validateSecurity() error {
	if err := c.validateCORS(); err != nil {
		return err
	}
	return c.validateRateLimits()
}

// validateCORS requires each origin to be "*" or an http(s) base URL
func (c *Config) validateCORS() error {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			continue
		}
		if err := validateHTTPURL(origin, "CORS_ORIGINS"); err != nil {
			return err
		}
	}
	return nil
}

// hasWildcardCORS reports whether any CORS origin is "*".
func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// ShouldWarnAboutCORS reports whether the CORS configuration allows any origin.
func (c *Config) ShouldWarnAboutCORS() bool {
	return c.hasWildcardCORS()
}

// validateRateLimits validates rate limit settings unless disabled
func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// validateSupervisor validates the restart policy
func (c *Config) validateSupervisor() error {
	if c.Supervisor.FailureThreshold <= 0 {
		return fmt.Errorf("SUPERVISOR_FAILURE_THRESHOLD must be positive")
	}
	if c.Supervisor.FailureDecay <= 0 {
		return fmt.Errorf("SUPERVISOR_FAILURE_DECAY must be positive")
	}
	if c.Supervisor.FailureBackoff <= 0 {
		return fmt.Errorf("SUPERVISOR_FAILURE_BACKOFF must be positive")
	}
	if c.Supervisor.ShutdownTimeout <= 0 {
		return fmt.Errorf("SUPERVISOR_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if err := c.validateLogLevel(); err != nil {
		return err
	}
	return c.validateLogFormat()
}

// validateLogLevel validates the log level
func (c *Config) validateLogLevel() error {
	if logging.ValidLevel(c.Logging.Level) {
		return nil
	}
	return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, disabled, got %q", c.Logging.Level)
}

// validateLogFormat validates the log format
func (c *Config) validateLogFormat() error {
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}
