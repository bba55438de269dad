// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/songrules/internal/models"
)

// Home answers GET / with the service banner.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	banner := models.Banner{
		Name:      "songrules",
		Version:   h.config.Version,
		StartedAt: h.startTime.UTC(),
	}
	if status, err := h.snapshotStatus(r.Context()); err == nil {
		banner.ModelDate = status.Label
	}

	writeJSON(w, http.StatusOK, banner)
}

// HealthLive is the liveness probe: 200 while the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, models.HealthStatus{
		Status:  "alive",
		Version: h.config.Version,
		Uptime:  time.Since(h.startTime).Seconds(),
	})
}

// HealthReady is the readiness probe: 200 once a snapshot is adopted, 503
// before that or after the rule server stopped.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	health := models.HealthStatus{
		Status:  "not_ready",
		Version: h.config.Version,
		Uptime:  time.Since(h.startTime).Seconds(),
	}

	statusCode := http.StatusServiceUnavailable
	if status, err := h.snapshotStatus(r.Context()); err == nil {
		statusCode = http.StatusOK
		health.Status = "ready"
		health.RulesLoaded = true
		health.ModelDate = status.Label
	}

	respondJSON(w, statusCode, &models.APIResponse{
		Status:   health.Status,
		Data:     health,
		Metadata: metadata(r),
	})
}
