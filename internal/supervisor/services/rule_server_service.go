// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package services

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// RuleServer is the lifecycle surface of rules.Server.
type RuleServer interface {
	// Run blocks until the server is cancelled (nil) or fails.
	Run() error

	// Cancel requests shutdown.
	Cancel()
}

// RuleServerService runs the rule server loop under suture.
//
// The rule server cannot be restarted in place: its snapshot, watcher and
// pending queries live in the loop that just ended. A fatal error, or the
// loop stopping while the tree is still running, therefore terminates the
// whole supervisor tree instead of asking for a restart.
type RuleServerService struct {
	server RuleServer
	logger zerolog.Logger
	name   string
}

// NewRuleServerService wraps server for supervision.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRuleServerService(server RuleServer, logger zerolog.Logger) *RuleServerService {
	return &RuleServerService{
		server: server,
		logger: logger.With().Str("service", "rule-server").Logger(),
		name:   "rule-server",
	}
}

// Serve implements suture.Service.
func (s *RuleServerService) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.server.Cancel)
	defer stop()

	s.logger.Info().Msg("rule server service starting")
	err := s.server.Run()

	if ctx.Err() != nil {
		s.logger.Info().Msg("rule server service stopped")
		return ctx.Err()
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("rule server failed, terminating")
	} else {
		s.logger.Error().Msg("rule server stopped unexpectedly, terminating")
	}
	return suture.ErrTerminateSupervisorTree
}

// String implements fmt.Stringer for suture's logs.
func (s *RuleServerService) String() string {
	return s.name
}
