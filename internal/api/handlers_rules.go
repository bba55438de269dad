// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/songrules/internal/actor"
	"github.com/tomtom215/songrules/internal/logging"
	"github.com/tomtom215/songrules/internal/models"
	"github.com/tomtom215/songrules/internal/rules"
)

// RulesStatus answers GET /api/v1/rules/status with the adopted snapshot,
// or 503 RULES_NOT_LOADED.
func (h *Handler) RulesStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.snapshotStatus(r.Context())
	if err != nil {
		h.statusFailed(w, r, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, models.RulesStatus{
		Loaded:      true,
		Timestamp:   status.Timestamp,
		ModelDate:   status.Label,
		Rules:       status.Rules,
		Antecedents: status.Antecedents,
	})
}

// RulesReload answers POST /api/v1/rules/reload. It asks the rule server to
// compare the checkpoint with the adopted snapshot and returns 202 without
// waiting for the outcome.
func (h *Handler) RulesReload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.StatusTimeout)
	defer cancel()

	if err := h.rules.Recheck(ctx); err != nil {
		if errors.Is(err, actor.ErrDisconnected) {
			respondError(w, r, http.StatusServiceUnavailable, "RULES_UNAVAILABLE", "The rule server has stopped", err)
			return
		}
		respondError(w, r, http.StatusServiceUnavailable, "RELOAD_NOT_QUEUED", "The reload request could not be queued", err)
		return
	}

	logging.Ctx(r.Context()).Info().Msg("rule reload requested")
	respondSuccess(w, r, http.StatusAccepted, map[string]any{"queued": true})
}

func (h *Handler) statusFailed(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rules.ErrNotLoaded):
		respondError(w, r, http.StatusServiceUnavailable, "RULES_NOT_LOADED", "No rule snapshot has been loaded yet", nil)
	case errors.Is(err, actor.ErrDisconnected):
		respondError(w, r, http.StatusServiceUnavailable, "RULES_UNAVAILABLE", "The rule server has stopped", err)
	default:
		respondError(w, r, http.StatusGatewayTimeout, "QUERY_TIMEOUT", "The rule server did not answer in time", err)
	}
}
