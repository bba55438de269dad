// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package models

import (
	"time"
)

// APIResponse is the envelope used by the /api/v1 endpoints and by every
// error response.
//
// Status is "success" (see Data) or "error" (see Error).
//
//	{
//	  "status": "error",
//	  "data": null,
//	  "metadata": {"timestamp": "2026-03-01T12:00:00Z"},
//	  "error": {"code": "RULES_NOT_LOADED", "message": "No rule snapshot has been loaded yet"}
//	}
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata is attached to every envelope.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError carries a machine-readable code and a message.
//
// Error codes:
//   - VALIDATION_ERROR: malformed or invalid request body
//   - RULES_NOT_LOADED: no snapshot yet and the request timed out waiting
//   - RULES_UNAVAILABLE: the rule server has stopped
//   - QUERY_TIMEOUT: the rule server did not answer in time
//   - RATE_LIMIT_EXCEEDED: too many requests
//   - INTERNAL_ERROR: anything else
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
