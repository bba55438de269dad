// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

// Package query implements the subset-lookup recommendation algorithm.
//
// Given the songs a user asked about, the engine looks up every non-empty
// subset of them (largest subsets first) in an association-rule index keyed by
// sorted antecedents, and unions the consequents of the matches until
// MaxLength recommendations have been collected:
//
//	idx := query.NewBuilder()
//	idx.Add([]string{"Hey Jude", "Yesterday"}, "Let It Be")
//	recs := query.Recommend([]string{"Yesterday", "Hey Jude"}, idx.Build())
//
// Everything here is pure. An Index is immutable once built and safe to share
// between goroutines.
package query

import (
	"slices"
	"strings"
)

// MaxLength caps both the subset length searched and the number of
// recommendations returned.
const MaxLength = 8

// keySep joins antecedent members into a map key. Song identifiers are
// free text, so a control character is used instead of a printable one.
const keySep = "\x1f"

// Source is anything that can answer antecedent lookups.
type Source interface {
	// Lookup returns the consequents recorded for a sorted, deduplicated
	// antecedent.
	Lookup(antecedent []string) ([]string, bool)
}

// Index maps canonical antecedent keys to their sorted consequents.
type Index struct {
	rules map[string][]string
}

// Lookup implements Source.
func (x *Index) Lookup(antecedent []string) ([]string, bool) {
	if x == nil {
		return nil, false
	}
	c, ok := x.rules[Key(antecedent)]
	return c, ok
}

// Len returns the number of distinct antecedents.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.rules)
}

// Key returns the canonical map key for an antecedent that is already sorted
// and deduplicated.
func Key(antecedent []string) string {
	return strings.Join(antecedent, keySep)
}

// Builder accumulates rules into an Index.
type Builder struct {
	rules map[string]map[string]struct{}
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{rules: make(map[string]map[string]struct{})}
}

// Add records that antecedent implies consequent. The antecedent is
// normalized, so callers may pass it in any order. Empty antecedents are
// ignored.
func (b *Builder) Add(antecedent []string, consequent string) {
	norm := Normalize(antecedent)
	if len(norm) == 0 {
		return
	}

	key := Key(norm)
	set, ok := b.rules[key]
	if !ok {
		set = make(map[string]struct{})
		b.rules[key] = set
	}
	set[consequent] = struct{}{}
}

// Build freezes the accumulated rules. The Builder must not be used afterwards.
func (b *Builder) Build() *Index {
	rules := make(map[string][]string, len(b.rules))
	for key, set := range b.rules {
		consequents := make([]string, 0, len(set))
		for c := range set {
			consequents = append(consequents, c)
		}
		slices.Sort(consequents)
		rules[key] = consequents
	}
	b.rules = nil
	return &Index{rules: rules}
}

// Normalize returns a sorted copy of songs with duplicates and empty
// identifiers removed.
func Normalize(songs []string) []string {
	out := make([]string, 0, len(songs))
	for _, s := range songs {
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Recommend returns up to MaxLength consequents for the requested songs,
// sorted. Larger subsets of the request are consulted first and the search
// stops as soon as MaxLength distinct consequents are collected.
func Recommend(songs []string, src Source) []string {
	input := Normalize(songs)
	found := make(map[string]struct{}, MaxLength)

	for l := min(len(input), MaxLength); l >= 1; l-- {
		full := false
		combinations(input, l, func(subset []string) bool {
			consequents, ok := src.Lookup(subset)
			if !ok {
				return true
			}
			for _, c := range consequents {
				found[c] = struct{}{}
				if len(found) >= MaxLength {
					full = true
					return false
				}
			}
			return true
		})
		if full {
			break
		}
	}

	out := make([]string, 0, len(found))
	for c := range found {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// combinations calls fn with every k-element combination of items in
// lexicographic index order. Because items is sorted, every combination is
// sorted too. The subset slice is reused between calls. Enumeration stops
// when fn returns false.
func combinations(items []string, k int, fn func(subset []string) bool) {
	n := len(items)
	if k <= 0 || k > n {
		return
	}

	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	subset := make([]string, k)

	for {
		for i, j := range idx {
			subset[i] = items[j]
		}
		if !fn(subset) {
			return
		}

		// Advance the rightmost index that still has room.
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
