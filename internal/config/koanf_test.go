// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate runs the test in an empty directory with CONFIG_PATH cleared so no
// stray config file or variable leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(ConfigPathEnvVar, "")
	return dir
}

func writeYAML(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "songrules.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Rules.CheckpointFile != "ml_processor_checkpoint.txt" {
		t.Errorf("Rules.CheckpointFile = %q", cfg.Rules.CheckpointFile)
	}
	if cfg.Rules.RetryDelay != 5*time.Second {
		t.Errorf("Rules.RetryDelay = %v, want 5s", cfg.Rules.RetryDelay)
	}
	if cfg.Rules.MailboxSize != 8 {
		t.Errorf("Rules.MailboxSize = %d, want 8", cfg.Rules.MailboxSize)
	}
	if cfg.Watcher.Debounce != 100*time.Millisecond {
		t.Errorf("Watcher.Debounce = %v, want 100ms", cfg.Watcher.Debounce)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "*" {
		t.Errorf("Security.CORSOrigins = %v, want [*]", cfg.Security.CORSOrigins)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"HTTP_PORT", "server.port"},
		{"http_port", "server.port"},
		{"DATA_DIR", "rules.data_dir"},
		{"RULES_QUERY_TIMEOUT", "rules.query_timeout"},
		{"WATCHER_DEBOUNCE", "watcher.debounce"},
		{"BREAKER_FAILURE_RATIO", "breaker.failure_ratio"},
		{"CORS_ORIGINS", "security.cors_origins"},
		{"DISABLE_RATE_LIMIT", "security.rate_limit_disabled"},
		{"SUPERVISOR_FAILURE_BACKOFF", "supervisor.failure_backoff"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoadWithKoanf_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q, want 0.0.0.0:8080", cfg.Server.Addr())
	}
	if cfg.Rules.QueryTimeout != 30*time.Second {
		t.Errorf("Rules.QueryTimeout = %v, want 30s", cfg.Rules.QueryTimeout)
	}
}

func TestLoadWithKoanf_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("DATA_DIR", "/srv/rules")
	t.Setenv("RULES_QUERY_TIMEOUT", "2s")
	t.Setenv("WATCHER_ESCALATE_AFTER", "9")
	t.Setenv("BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("DISABLE_RATE_LIMIT", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Rules.CheckpointPath() != filepath.Join("/srv/rules", "ml_processor_checkpoint.txt") {
		t.Errorf("CheckpointPath() = %q", cfg.Rules.CheckpointPath())
	}
	if cfg.Rules.QueryTimeout != 2*time.Second {
		t.Errorf("Rules.QueryTimeout = %v, want 2s", cfg.Rules.QueryTimeout)
	}
	if cfg.Watcher.EscalateAfter != 9 {
		t.Errorf("Watcher.EscalateAfter = %d, want 9", cfg.Watcher.EscalateAfter)
	}
	if cfg.Breaker.FailureRatio != 0.25 {
		t.Errorf("Breaker.FailureRatio = %g, want 0.25", cfg.Breaker.FailureRatio)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if strings.Join(cfg.Security.CORSOrigins, "|") != strings.Join(want, "|") {
		t.Errorf("CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
	if !cfg.Security.RateLimitDisabled {
		t.Error("RateLimitDisabled should be true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadWithKoanf_FileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := writeYAML(t, dir, `
server:
  port: 7000
  host: 127.0.0.1
rules:
  data_dir: /from/file
  retry_delay: 250ms
security:
  cors_origins:
    - https://playlists.example.com
logging:
  format: console
`)
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "7100")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}

	if cfg.Server.Port != 7100 {
		t.Errorf("env should win over file: port = %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Rules.DataDir != "/from/file" {
		t.Errorf("Rules.DataDir = %q", cfg.Rules.DataDir)
	}
	if cfg.Rules.RetryDelay != 250*time.Millisecond {
		t.Errorf("Rules.RetryDelay = %v, want 250ms", cfg.Rules.RetryDelay)
	}
	if cfg.Rules.RulesFile != "rules.msgpack.zst" {
		t.Errorf("unset file keys keep defaults, got %q", cfg.Rules.RulesFile)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "https://playlists.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	if cfg.ShouldWarnAboutCORS() {
		t.Error("explicit origins should not warn")
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want console", cfg.Logging.Format)
	}
}

func TestLoadWithKoanf_DefaultPathSearch(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 6060\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}
	if cfg.Server.Port != 6060 {
		t.Errorf("config.yaml in working dir not used: port = %d", cfg.Server.Port)
	}
}

func TestLoadWithKoanf_MissingConfigPathFallsBack(t *testing.T) {
	isolate(t)
	t.Setenv(ConfigPathEnvVar, "/non/existent/config.yaml")

	if _, err := LoadWithKoanf(); err != nil {
		t.Errorf("missing CONFIG_PATH should fall back to defaults: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := isolate(t)

	t.Run("explicit file is loaded", func(t *testing.T) {
		path := writeYAML(t, dir, "rules:\n  mailbox_size: 32\n")
		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile: %v", err)
		}
		if cfg.Rules.MailboxSize != 32 {
			t.Errorf("MailboxSize = %d, want 32", cfg.Rules.MailboxSize)
		}
	})

	t.Run("explicit file must exist", func(t *testing.T) {
		if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
			t.Error("expected error for missing explicit config file")
		}
	})

	t.Run("malformed yaml is rejected", func(t *testing.T) {
		path := writeYAML(t, dir, "server: [unclosed\n")
		if _, err := LoadFile(path); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestLoadWithKoanf_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"port out of range", map[string]string{"HTTP_PORT": "70000"}, "HTTP_PORT"},
		{"empty data dir", map[string]string{"DATA_DIR": " "}, "DATA_DIR"},
		{"nested checkpoint name", map[string]string{"CHECKPOINT_FILE": "sub/cp.txt"}, "CHECKPOINT_FILE"},
		{"same file names", map[string]string{"RULES_FILE": "ml_processor_checkpoint.txt"}, "must differ"},
		{"zero query timeout", map[string]string{"RULES_QUERY_TIMEOUT": "0s"}, "RULES_QUERY_TIMEOUT"},
		{"huge mailbox", map[string]string{"RULES_MAILBOX_SIZE": "100000"}, "RULES_MAILBOX_SIZE"},
		{"zero debounce", map[string]string{"WATCHER_DEBOUNCE": "0s"}, "WATCHER_DEBOUNCE"},
		{"ratio above one", map[string]string{"BREAKER_FAILURE_RATIO": "1.5"}, "BREAKER_FAILURE_RATIO"},
		{"bad origin", map[string]string{"CORS_ORIGINS": "ftp://files.example.com"}, "CORS_ORIGINS"},
		{"zero rate limit", map[string]string{"RATE_LIMIT_REQUESTS": "0"}, "RATE_LIMIT_REQUESTS"},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadWithKoanf()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateRateLimitsDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.RateLimitDisabled = true
	cfg.Security.RateLimitReqs = 0

	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled rate limit should skip its checks: %v", err)
	}
}

func TestValidateLogLevel(t *testing.T) {
	for _, level := range []string{"trace", "DEBUG", "info", "warn", "warning", "error", "disabled"} {
		cfg := defaultConfig()
		cfg.Logging.Level = level
		if err := cfg.Validate(); err != nil {
			t.Errorf("level %q rejected: %v", level, err)
		}
	}

	cfg := defaultConfig()
	cfg.Logging.Level = "loud"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "LOG_LEVEL") {
		t.Errorf("Validate = %v, want LOG_LEVEL error", err)
	}
}

func TestValidateServerURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"http://localhost:8080", false},
		{"https://rules.example.com/", false},
		{"localhost:8080", true},
		{"http://", true},
		{"http://host/api/recommend", true},
		{"http://host?x=1", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateServerURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServerURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
