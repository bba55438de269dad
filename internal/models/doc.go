// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

/*
Package models defines the JSON shapes of the HTTP API.

  - APIResponse, Metadata, APIError: the envelope for /api/v1 and all errors
  - RecommendRequest, RecommendResponse: POST /api/recommend
  - RulesStatus, HealthStatus, Banner: status, health and banner payloads

RecommendResponse is written bare, without the envelope.
*/
package models
