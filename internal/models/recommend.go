// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package models

import "time"

// MaxRecommendSongs bounds the songs in one recommend request.
const MaxRecommendSongs = 256

// RecommendRequest is the body of POST /api/recommend.
type RecommendRequest struct {
	Songs []string `json:"songs" validate:"required,min=1,max=256,dive,songid"`
}

// RecommendResponse is the body of a successful POST /api/recommend. It is
// written without the APIResponse envelope so existing clients can read
// playlist_ids directly.
//
//	{
//	  "playlist_ids": ["Bad Guy", "Humble"],
//	  "version": "1.0.0",
//	  "model_date": "2026-03-01 12:00:00.5"
//	}
type RecommendResponse struct {
	PlaylistIDs []string `json:"playlist_ids"`
	Version     string   `json:"version"`
	ModelDate   string   `json:"model_date"`
}

// RulesStatus describes the adopted rule snapshot.
type RulesStatus struct {
	Loaded      bool   `json:"loaded"`
	Timestamp   int64  `json:"timestamp,omitempty"`
	ModelDate   string `json:"model_date,omitempty"`
	Rules       int    `json:"rules,omitempty"`
	Antecedents int    `json:"antecedents,omitempty"`
}

// HealthStatus is returned by the health endpoints.
type HealthStatus struct {
	Status      string  `json:"status"`
	Version     string  `json:"version"`
	RulesLoaded bool    `json:"rules_loaded"`
	ModelDate   string  `json:"model_date,omitempty"`
	Uptime      float64 `json:"uptime_seconds"`
}

// Banner is returned by GET /.
type Banner struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	ModelDate string    `json:"model_date,omitempty"`
	StartedAt time.Time `json:"started_at"`
}
