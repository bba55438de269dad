// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package rules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/songrules/internal/logging"
	"github.com/tomtom215/songrules/internal/metrics"
)

// LoaderBreakerName names the circuit breaker guarding reload I/O.
const LoaderBreakerName = "rules-loader"

// Loader reads the producer's files. Implementations must be safe for
// concurrent use since several reloads may overlap.
type Loader interface {
	// Checkpoint reads the current checkpoint record.
	Checkpoint(ctx context.Context) (Checkpoint, error)

	// Rules reads the full rules file.
	Rules(ctx context.Context) ([]Rule, error)
}

// FileLoader reads the checkpoint and rules files from disk.
type FileLoader struct {
	paths Paths
}

// NewFileLoader creates a loader for the given file layout.
func NewFileLoader(paths Paths) *FileLoader {
	return &FileLoader{paths: paths}
}

// Checkpoint implements Loader.
func (l *FileLoader) Checkpoint(ctx context.Context) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	return ReadCheckpoint(l.paths.CheckpointPath())
}

// Rules implements Loader.
func (l *FileLoader) Rules(ctx context.Context) ([]Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadRulesFile(l.paths.RulesPath())
}

// BreakerConfig configures the loader circuit breaker.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval after which closed-state counts are cleared.
	Interval time.Duration

	// Timeout before an open breaker lets a probe through.
	Timeout time.Duration

	// MinRequests before the failure ratio is considered.
	MinRequests uint32

	// FailureRatio at or above which the breaker opens.
	FailureRatio float64
}

// DefaultBreakerConfig returns conservative defaults for local file reads.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.MaxRequests == 0 {
		c.MaxRequests = d.MaxRequests
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MinRequests == 0 {
		c.MinRequests = d.MinRequests
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = d.FailureRatio
	}
	return c
}

// BreakerLoader guards another Loader with a circuit breaker. While the
// breaker is open, reads fail fast with gobreaker.ErrOpenState and the
// server's fixed-delay retry keeps probing.
//
// Missing files and cancellations are not counted: before the producer's
// first publish a missing checkpoint is the normal state.
type BreakerLoader struct {
	next Loader
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewBreakerLoader wraps next in a circuit breaker named LoaderBreakerName.
func NewBreakerLoader(next Loader, cfg BreakerConfig) *BreakerLoader {
	name := LoaderBreakerName
	cfg = cfg.withDefaults()

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= cfg.FailureRatio {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
				return true
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).
				Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},

		IsExcluded: isExcludedReadError,
	})

	return &BreakerLoader{next: next, cb: cb, name: name}
}

// Checkpoint implements Loader.
func (b *BreakerLoader) Checkpoint(ctx context.Context) (Checkpoint, error) {
	result, err := b.execute(ctx, func() (any, error) {
		return b.next.Checkpoint(ctx)
	})
	if err != nil {
		return Checkpoint{}, err
	}
	cp, ok := result.(Checkpoint)
	if !ok {
		return Checkpoint{}, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return cp, nil
}

// Rules implements Loader.
func (b *BreakerLoader) Rules(ctx context.Context) ([]Rule, error) {
	result, err := b.execute(ctx, func() (any, error) {
		return b.next.Rules(ctx)
	})
	if err != nil {
		return nil, err
	}
	rules, ok := result.([]Rule)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return rules, nil
}

// State returns the breaker state as a string.
func (b *BreakerLoader) State() string {
	return stateToString(b.cb.State())
}

func (b *BreakerLoader) execute(ctx context.Context, fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(func() (any, error) {
		r, err := fn()
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return r, err
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return result, nil
	case IsRejected(err):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, err
	case isExcludedReadError(err):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "excluded").Inc()
		return nil, err
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}
}

// isExcludedReadError reports errors that say nothing about the health of
// the files: absent files and cancelled reads.
func isExcludedReadError(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsRejected reports whether err came from an open or saturated breaker
// rather than from the files themselves.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
