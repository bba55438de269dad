// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package api

import (
	"context"
	"time"

	"github.com/tomtom215/songrules/internal/rules"
)

// RuleService is the part of rules.Server the handlers use.
type RuleService interface {
	Query(ctx context.Context, songs []string) (rules.Recommendation, error)
	Recheck(ctx context.Context) error
	Status(ctx context.Context) (rules.Status, error)
}

// HandlerConfig configures the handlers.
type HandlerConfig struct {
	// Version is reported in recommend responses and the banner.
	Version string

	// QueryTimeout bounds one recommend request, including any wait for the
	// first snapshot.
	// Default: 30s
	QueryTimeout time.Duration

	// StatusTimeout bounds status, readiness and reload calls.
	// Default: 2s
	StatusTimeout time.Duration
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 30 * time.Second
	}
	if c.StatusTimeout <= 0 {
		c.StatusTimeout = 2 * time.Second
	}
	return c
}

// Handler serves the HTTP API over a RuleService.
type Handler struct {
	rules     RuleService
	config    HandlerConfig
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(rules RuleService, config HandlerConfig) *Handler {
	return &Handler{
		rules:     rules,
		config:    config.withDefaults(),
		startTime: time.Now(),
	}
}

// snapshotStatus asks the rule server for its status within StatusTimeout.
func (h *Handler) snapshotStatus(ctx context.Context) (rules.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.StatusTimeout)
	defer cancel()
	return h.rules.Status(ctx)
}
