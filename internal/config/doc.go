// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

/*
Package config provides centralized configuration management for songrules.

# Configuration Sources

Configuration is layered with Koanf v2, later layers winning:
  - Built-in defaults (providers/structs)
  - Optional YAML file: CONFIG_PATH, or config.yaml, config.yml,
    /etc/songrules/config.yaml, /etc/songrules/config.yml
  - Environment variables, through an explicit mapping table

Unmapped environment variables are ignored.

# Environment Variables

HTTP Server (ServerConfig):
  - HTTP_HOST: Bind address (default: 0.0.0.0)
  - HTTP_PORT: Listen port (default: 8080)
  - HTTP_READ_TIMEOUT, HTTP_WRITE_TIMEOUT, HTTP_IDLE_TIMEOUT
  - HTTP_SHUTDOWN_TIMEOUT: Connection drain limit (default: 10s)

Rules (RulesConfig):
  - DATA_DIR: Directory holding the published files (default: ml-data)
  - CHECKPOINT_FILE: default ml_processor_checkpoint.txt
  - RULES_FILE: default rules.msgpack.zst
  - RULES_RETRY_DELAY: Delay before a failed reload is retried (default: 5s)
  - RULES_QUERY_RETRY_DELAY: Re-check interval for queries waiting on the
    first load (default: 5s)
  - RULES_QUERY_TIMEOUT: Bound on one recommend request (default: 30s)
  - RULES_WATCHER_SHUTDOWN_TIMEOUT: default 5s
  - RULES_MAILBOX_SIZE: default 8

Watcher (WatcherConfig):
  - WATCHER_RETRY_DELAY (1s), WATCHER_DEBOUNCE (100ms),
    WATCHER_ESCALATE_AFTER (5), WATCHER_REINSTALL_BURST (3)

Circuit Breaker (BreakerConfig):
  - BREAKER_MAX_REQUESTS (1), BREAKER_INTERVAL (1m), BREAKER_TIMEOUT (30s),
    BREAKER_MIN_REQUESTS (5), BREAKER_FAILURE_RATIO (0.6)

Security (SecurityConfig):
  - CORS_ORIGINS: Comma-separated origins (default: *)
  - RATE_LIMIT_REQUESTS (100), RATE_LIMIT_WINDOW (1m), DISABLE_RATE_LIMIT

Supervisor (SupervisorConfig):
  - SUPERVISOR_FAILURE_THRESHOLD (5), SUPERVISOR_FAILURE_DECAY (30),
    SUPERVISOR_FAILURE_BACKOFF (15s), SUPERVISOR_SHUTDOWN_TIMEOUT (10s)

Logging (LoggingConfig):
  - LOG_LEVEL (info), LOG_FORMAT (json), LOG_CALLER (false)

# Example YAML

	server:
	  port: 9000
	rules:
	  data_dir: /var/lib/songrules
	  query_timeout: 10s
	security:
	  cors_origins:
	    - https://playlists.example.com
	logging:
	  format: console
*/
package config
