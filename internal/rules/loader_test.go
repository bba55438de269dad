// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package rules

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/songrules/internal/metrics"
)

// fakeLoader serves an in-memory checkpoint and rule set.
type fakeLoader struct {
	mu         sync.Mutex
	checkpoint Checkpoint
	rules      []Rule
	cpErr      error
	rulesErr   error

	// gate, when set, blocks Rules until it is closed or ctx ends.
	gate    chan struct{}
	entered chan struct{}

	checkpointReads atomic.Int32
	rulesReads      atomic.Int32
}

func (f *fakeLoader) set(ts int64, rules []Rule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoint = Checkpoint{ProducerVersion: "test", DatasetID: "ds", Timestamp: ts}
	f.rules = rules
	f.cpErr = nil
	f.rulesErr = nil
}

func (f *fakeLoader) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cpErr = err
}

func (f *fakeLoader) Checkpoint(ctx context.Context) (Checkpoint, error) {
	f.checkpointReads.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkpoint, f.cpErr
}

func (f *fakeLoader) Rules(ctx context.Context) ([]Rule, error) {
	f.rulesReads.Add(1)
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	rules, err := f.rules, f.rulesErr
	f.mu.Unlock()

	if gate != nil {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return rules, err
}

func TestFileLoader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := DefaultPaths(dir)
	loader := NewFileLoader(paths)
	ctx := context.Background()

	if _, err := loader.Checkpoint(ctx); err == nil {
		t.Error("expected error before the checkpoint exists")
	}

	if err := WriteRulesFile(paths.RulesPath(), sampleRules()); err != nil {
		t.Fatalf("WriteRulesFile: %v", err)
	}
	if err := WriteCheckpoint(paths.CheckpointPath(), Checkpoint{ProducerVersion: "1", DatasetID: "ds", Timestamp: 7}); err != nil {
		t.Fatalf("WriteCheckpoint: %v", err)
	}

	cp, err := loader.Checkpoint(ctx)
	if err != nil || cp.Timestamp != 7 {
		t.Errorf("Checkpoint = (%+v, %v), want timestamp 7", cp, err)
	}
	rules, err := loader.Rules(ctx)
	if err != nil || len(rules) != 2 {
		t.Errorf("Rules = (%d, %v), want 2 rules", len(rules), err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := loader.Rules(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("Rules on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestBreakerLoader_PassesThrough(t *testing.T) {
	f := &fakeLoader{}
	f.set(42, sampleRules())

	b := NewBreakerLoader(f, DefaultBreakerConfig())
	successBefore := testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues(LoaderBreakerName, "success"))

	cp, err := b.Checkpoint(context.Background())
	if err != nil || cp.Timestamp != 42 {
		t.Fatalf("Checkpoint = (%+v, %v)", cp, err)
	}
	rules, err := b.Rules(context.Background())
	if err != nil || len(rules) != 2 {
		t.Fatalf("Rules = (%d, %v)", len(rules), err)
	}

	if got := testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues(LoaderBreakerName, "success")); got != successBefore+2 {
		t.Errorf("success requests = %v, want %v", got, successBefore+2)
	}
	if b.State() != "closed" {
		t.Errorf("State = %s, want closed", b.State())
	}
}

func TestBreakerLoader_OpensAfterFailures(t *testing.T) {
	f := &fakeLoader{}
	f.fail(errors.New("disk on fire"))

	b := NewBreakerLoader(f, BreakerConfig{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	})

	for i := 0; i < 2; i++ {
		_, err := b.Checkpoint(context.Background())
		if err == nil || IsRejected(err) {
			t.Fatalf("attempt %d: error = %v, want a plain failure", i, err)
		}
	}

	if b.State() != "open" {
		t.Fatalf("State = %s, want open", b.State())
	}

	reads := f.checkpointReads.Load()
	_, err := b.Checkpoint(context.Background())
	if !IsRejected(err) {
		t.Errorf("error = %v, want rejection", err)
	}
	if f.checkpointReads.Load() != reads {
		t.Error("open breaker should not touch the files")
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues(LoaderBreakerName)); got != 2 {
		t.Errorf("circuit_breaker_state = %v, want 2", got)
	}
}

func TestBreakerLoader_CancellationIsNotAFailure(t *testing.T) {
	dir := t.TempDir()
	b := NewBreakerLoader(NewFileLoader(DefaultPaths(filepath.Join(dir, "nope"))), BreakerConfig{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  1,
		FailureRatio: 0.1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 3; i++ {
		if _, err := b.Rules(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("Rules = %v, want context.Canceled", err)
		}
	}
	if b.State() != "closed" {
		t.Errorf("State = %s, cancellations must not trip the breaker", b.State())
	}
}

func TestBreakerLoader_MissingFilesDoNotTrip(t *testing.T) {
	paths := DefaultPaths(t.TempDir())
	b := NewBreakerLoader(NewFileLoader(paths), BreakerConfig{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	})
	excludedBefore := testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues(LoaderBreakerName, "excluded"))

	for i := 0; i < 10; i++ {
		_, err := b.Checkpoint(context.Background())
		if !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("attempt %d: error = %v, want fs.ErrNotExist", i, err)
		}
	}
	if b.State() != "closed" {
		t.Fatalf("State = %s, missing files must not trip the breaker", b.State())
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues(LoaderBreakerName, "excluded")); got < excludedBefore+10 {
		t.Errorf("excluded requests = %v, want at least %v", got, excludedBefore+10)
	}

	if err := WriteCheckpoint(paths.CheckpointPath(), Checkpoint{ProducerVersion: "1", DatasetID: "ds", Timestamp: 9}); err != nil {
		t.Fatalf("WriteCheckpoint: %v", err)
	}
	if cp, err := b.Checkpoint(context.Background()); err != nil || cp.Timestamp != 9 {
		t.Errorf("Checkpoint = (%+v, %v), want timestamp 9", cp, err)
	}
}
