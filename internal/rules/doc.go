// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

/*
Package rules owns the association-rule snapshot and keeps it in step with the
files an offline producer publishes.

# Files

The producer writes two files into the data directory, rules first:

	rules.msgpack.zst             zstd frame holding a msgpack array of Rule
	ml_processor_checkpoint.txt   "<producer_version> <dataset_id> <unix_nanos>"

Both are replaced atomically (temporary file + rename). Only the checkpoint's
timestamp decides whether the rules need to be read again.

# Rule Server

Server is an actor that holds the current *Snapshot. It spawns a file watcher
on the checkpoint as a child, and runs the reload pipeline whenever the
watcher (or Recheck) hints at a change:

 1. A detached goroutine reads the checkpoint. If its timestamp is not newer
    than the snapshot that was current when the hint arrived, nothing else
    happens.
 2. Otherwise it reads the rules file, builds a Snapshot and casts it back to
    the server.
 3. The server adopts it only if it is still strictly newer than the current
    one, so racing reloads can never move the timestamp backwards.

Read failures are logged and retried with a fresh hint after Config.RetryDelay.
Reads go through a circuit breaker (see BreakerLoader), so a persistently
broken data directory is probed at the breaker's pace instead of hammered.
Missing files and cancelled reads do not count against the breaker, so the
wait for the producer's first publish stays on the fixed retry delay.

Queries that arrive before the first snapshot are parked and re-examined every
Config.QueryRetryDelay until a snapshot exists or the caller gives up. The
query itself runs on the caller's goroutine against the snapshot pointer, so
the server loop is never busy with lookups.
*/
package rules
