// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

/*
Package validation provides struct validation using go-playground/validator v10.

A single validator instance is built on first use. It reports fields by their
JSON names and registers one custom tag:

	songid    non-blank, at most 512 bytes, no control characters

Failures convert to the API's VALIDATION_ERROR envelope:

	type RecommendRequest struct {
	    Songs []string `json:"songs" validate:"required,min=1,max=256,dive,songid"`
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
	    apiErr := verr.ToAPIError()
	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
	    return
	}

The validator caches struct metadata and is safe for concurrent use.
*/
package validation
