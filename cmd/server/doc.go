// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

/*
Command songrules runs the association-rule recommendation server and its
companion tools.

# Commands

	songrules [serve] [--config FILE]
	songrules recommend [--server URL] [--timeout D] SONG...
	songrules publish --rules FILE [--data-dir DIR] [--producer-version V] [--dataset ID]

serve is the default. It loads configuration (Koanf: defaults, then
config.yaml, then environment), builds the supervisor tree with the rule
server and the HTTP server, and runs until SIGINT or SIGTERM. Services that
fail to stop within the shutdown timeout are reported before exit.

publish writes a rule set the way the offline producer does: rules file first,
checkpoint last, both atomically.

# Example

	export DATA_DIR=/var/lib/songrules
	export HTTP_PORT=8080
	songrules publish --rules rules.json --data-dir $DATA_DIR --dataset ds-1
	songrules serve
	songrules recommend --server http://localhost:8080 "Yesterday" "Hey Jude"
*/
package main
