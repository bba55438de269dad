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

// Recommend answers POST /api/recommend.
//
// Before the first snapshot is adopted the request waits, up to
// QueryTimeout. A timeout while still unloaded is RULES_NOT_LOADED (503).
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.QueryTimeout)
	defer cancel()

	rec, err := h.rules.Query(ctx, req.Songs)
	if err != nil {
		h.queryFailed(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Debug().
		Int("songs", len(req.Songs)).
		Int("playlists", len(rec.IDs)).
		Str("model_date", rec.Label).
		Msg("recommendation served")

	ids := rec.IDs
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, &models.RecommendResponse{
		PlaylistIDs: ids,
		Version:     h.config.Version,
		ModelDate:   rec.Label,
	})
}

func (h *Handler) queryFailed(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case r.Context().Err() != nil:
		// Client went away; nobody reads the response.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("recommend request abandoned by client")

	case errors.Is(err, actor.ErrDisconnected):
		respondError(w, r, http.StatusServiceUnavailable, "RULES_UNAVAILABLE",
			"The rule server has stopped", err)

	case errors.Is(err, context.DeadlineExceeded):
		if _, statusErr := h.snapshotStatus(context.WithoutCancel(r.Context())); errors.Is(statusErr, rules.ErrNotLoaded) {
			respondError(w, r, http.StatusServiceUnavailable, "RULES_NOT_LOADED",
				"No rule snapshot has been loaded yet", nil)
			return
		}
		respondError(w, r, http.StatusGatewayTimeout, "QUERY_TIMEOUT",
			"The rule server did not answer in time", err)

	default:
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to compute recommendations", err)
	}
}
