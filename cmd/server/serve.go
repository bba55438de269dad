// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/songrules/internal/api"
	"github.com/tomtom215/songrules/internal/config"
	"github.com/tomtom215/songrules/internal/logging"
	"github.com/tomtom215/songrules/internal/rules"
	"github.com/tomtom215/songrules/internal/supervisor"
	"github.com/tomtom215/songrules/internal/supervisor/services"
	"github.com/tomtom215/songrules/internal/watcher"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve recommendations until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

// loadConfig loads path when given, otherwise the default search.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// rulesConfig maps the loaded configuration onto the rule server's.
func rulesConfig(cfg *config.Config) rules.Config {
	paths := rules.Paths{
		DataDir:        cfg.Rules.DataDir,
		CheckpointName: cfg.Rules.CheckpointFile,
		RulesName:      cfg.Rules.RulesFile,
	}
	return rules.Config{
		Paths:                  paths,
		RetryDelay:             cfg.Rules.RetryDelay,
		QueryRetryDelay:        cfg.Rules.QueryRetryDelay,
		WatcherShutdownTimeout: cfg.Rules.WatcherShutdownTimeout,
		MailboxSize:            cfg.Rules.MailboxSize,
		Watcher: watcher.Config{
			Path:           paths.CheckpointPath(),
			RetryDelay:     cfg.Watcher.RetryDelay,
			Debounce:       cfg.Watcher.Debounce,
			EscalateAfter:  cfg.Watcher.EscalateAfter,
			ReinstallBurst: cfg.Watcher.ReinstallBurst,
		},
		Breaker: rules.BreakerConfig{
			MaxRequests:  cfg.Breaker.MaxRequests,
			Interval:     cfg.Breaker.Interval,
			Timeout:      cfg.Breaker.Timeout,
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
		},
	}
}

func newHTTPServer(cfg *config.Config, ruleService api.RuleService) *http.Server {
	handler := api.NewHandler(ruleService, api.HandlerConfig{
		Version:      Version,
		QueryTimeout: cfg.Rules.QueryTimeout,
	})
	mw := api.NewChiMiddleware(api.NewChiMiddlewareConfig(
		cfg.Security.CORSOrigins,
		cfg.Security.RateLimitReqs,
		cfg.Security.RateLimitWindow,
		cfg.Security.RateLimitDisabled,
	))

	return &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, mw).SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func serve(parent context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", Version).
		Str("addr", cfg.Server.Addr()).
		Str("checkpoint", cfg.Rules.CheckpointPath()).
		Str("rules", cfg.Rules.RulesPath()).
		Msg("Starting songrules")

	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS allows any origin (CORS_ORIGINS=*); restrict it outside development")
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is disabled")
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	ruleServer := rules.NewServer(ctx, rulesConfig(cfg), nil)
	httpServer := newHTTPServer(cfg, ruleServer)

	tree.AddRulesService(services.NewRuleServerService(ruleServer, logging.WithComponent("supervisor")))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout, logging.WithComponent("supervisor")))
	logging.Info().Str("addr", httpServer.Addr).Msg("Services added to supervisor tree")

	start := time.Now()
	err = tree.Serve(ctx)

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
		return err
	}

	logging.Info().Dur("uptime", time.Since(start)).Msg("Songrules stopped gracefully")
	return nil
}
