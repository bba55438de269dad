// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

/*
Package services provides suture.Service wrappers for songrules components.

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server (or any HTTPServer) with graceful shutdown
  - Converts the ListenAndServe pattern to Serve
  - Drains connections within a configurable shutdown timeout

Rule Server (RuleServerService):
  - Wraps rules.Server (Run/Cancel lifecycle)
  - Cancels the server when the service context ends
  - Terminates the supervisor tree on failure instead of restarting

# Error Handling

Return values determine supervisor behavior:

	ctx.Err()                         -> shutdown requested
	error                             -> crashed, supervisor restarts it
	suture.ErrTerminateSupervisorTree -> stop the whole tree

All services implement fmt.Stringer so suture's event log names them
("http-server", "rule-server").
*/
package services
