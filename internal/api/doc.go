// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

/*
Package api serves the HTTP surface of the rule server.

Routes (chi):

	GET  /                      service banner
	POST /api/recommend         recommendations for a list of songs
	GET  /api/v1/rules/status   adopted snapshot, 503 before the first load
	POST /api/v1/rules/reload   queue a checkpoint re-check (202)
	GET  /api/v1/health/live    liveness
	GET  /api/v1/health/ready   readiness, 200 once rules are loaded
	GET  /metrics               Prometheus exposition

POST /api/recommend takes {"songs": [...]} and answers with a bare
{"playlist_ids", "version", "model_date"} object. Every other route answers
with the models.APIResponse envelope.

Recommend errors:

	400 VALIDATION_ERROR   body is not JSON or fails validation
	503 RULES_NOT_LOADED   the query timed out before any snapshot was adopted
	503 RULES_UNAVAILABLE  the rule server has stopped
	504 QUERY_TIMEOUT      the query timed out with rules loaded
	429 RATE_LIMIT_EXCEEDED

Middleware order: request ID with logging context, RealIP, Recoverer, CORS
(go-chi/cors), Prometheus request metrics, then per-group security headers
and httprate limits.
*/
package api
