// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

/*
Package middleware provides HTTP middleware shared by the API router.

PrometheusMetrics records api_requests_total, api_request_duration_seconds
and api_active_requests. It must run inside a chi router so the endpoint
label is the route pattern ("/api/v1/rules/status") rather than the raw
path; requests that match no route are labelled "unmatched".

	r := chi.NewRouter()
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
