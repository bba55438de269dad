// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package rules

import (
	"time"

	"github.com/tomtom215/songrules/internal/query"
)

// labelLayout renders snapshot timestamps as "2026-03-01 12:00:00.5".
const labelLayout = "2006-01-02 15:04:05.999999999"

// Snapshot is one immutable generation of the rule index. It is built off
// the server loop, adopted by pointer assignment and never modified after.
type Snapshot struct {
	// Timestamp is the producer's checkpoint time in nanoseconds.
	Timestamp int64

	// Index answers antecedent lookups.
	Index *query.Index

	// Label is the human-readable form of Timestamp, in UTC.
	Label string

	// Rules is the number of rules read from the file.
	Rules int
}

// NewSnapshot indexes rules under the given checkpoint timestamp.
func NewSnapshot(timestamp int64, rules []Rule) *Snapshot {
	b := query.NewBuilder()
	for i := range rules {
		b.Add(rules[i].Antecedent, rules[i].Consequent)
	}

	return &Snapshot{
		Timestamp: timestamp,
		Index:     b.Build(),
		Label:     Label(timestamp),
		Rules:     len(rules),
	}
}

// Label formats a checkpoint timestamp for display.
func Label(timestamp int64) string {
	return time.Unix(0, timestamp).UTC().Format(labelLayout)
}

// Newer reports whether s should replace cur.
func (s *Snapshot) Newer(cur *Snapshot) bool {
	return cur == nil || s.Timestamp > cur.Timestamp
}
