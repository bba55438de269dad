// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package watcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tomtom215/songrules/internal/metrics"
)

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func channelNotifier(ch chan ChangeHint) Notifier {
	return NotifierFunc(func(ctx context.Context, hint ChangeHint) error {
		select {
		case ch <- hint:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func testConfig(path string) Config {
	cfg := DefaultConfig(path)
	cfg.RetryDelay = 20 * time.Millisecond
	cfg.Debounce = 20 * time.Millisecond
	return cfg
}

func waitInstalled(t *testing.T, w *Watcher) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st, err := w.Status(context.Background())
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if st.Installed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watch was never installed")
}

func expectHint(t *testing.T, ch <-chan ChangeHint) ChangeHint {
	t.Helper()
	select {
	case h := <-ch:
		return h
	case <-time.After(3 * time.Second):
		t.Fatal("no change hint received")
		return ChangeHint{}
	}
}

func TestWatcher_ForwardsChangesToTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "checkpoint.txt")

	hints := make(chan ChangeHint, 16)
	w, task := Spawn(context.Background(), testConfig(target), channelNotifier(hints), quietLogger())
	defer func() {
		w.Cancel()
		<-task.Done()
	}()
	waitInstalled(t, w)

	before := time.Now()
	if err := os.WriteFile(target, []byte("v1 ds 1\n"), 0o600); err != nil {
		t.Fatalf("write target: %v", err)
	}

	h := expectHint(t, hints)
	if h.ObservedAt.Before(before) {
		t.Errorf("ObservedAt %v predates the write at %v", h.ObservedAt, before)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "checkpoint.txt")

	hints := make(chan ChangeHint, 16)
	w, task := Spawn(context.Background(), testConfig(target), channelNotifier(hints), quietLogger())
	defer func() {
		w.Cancel()
		<-task.Done()
	}()
	waitInstalled(t, w)

	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case h := <-hints:
		t.Errorf("unexpected hint for unrelated file: %+v", h)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_DetectsRenameOverTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "checkpoint.txt")

	hints := make(chan ChangeHint, 16)
	w, task := Spawn(context.Background(), testConfig(target), channelNotifier(hints), quietLogger())
	defer func() {
		w.Cancel()
		<-task.Done()
	}()
	waitInstalled(t, w)

	tmp := filepath.Join(dir, ".checkpoint.tmp")
	if err := os.WriteFile(tmp, []byte("v1 ds 2\n"), 0o600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		t.Fatalf("rename: %v", err)
	}

	expectHint(t, hints)
}

func TestWatcher_RetriesUntilDirectoryExists(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "data")
	target := filepath.Join(dir, "checkpoint.txt")

	var logs syncBuffer
	logger := zerolog.New(&logs)

	cfg := testConfig(target)
	cfg.EscalateAfter = 2

	hints := make(chan ChangeHint, 16)
	w, task := Spawn(context.Background(), cfg, channelNotifier(hints), &logger)
	defer func() {
		w.Cancel()
		<-task.Done()
	}()

	deadline := time.Now().Add(3 * time.Second)
	for {
		st, err := w.Status(context.Background())
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if st.Failures >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated install failures, got %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}

	output := logs.String()
	if !strings.Contains(output, `"level":"warn"`) {
		t.Errorf("first failures should log at warn: %s", output)
	}
	if !strings.Contains(output, `"level":"error"`) {
		t.Errorf("repeated failures should escalate to error: %s", output)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	waitInstalled(t, w)

	st, err := w.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Failures != 0 {
		t.Errorf("failures should reset after recovery, got %d", st.Failures)
	}

	if err := os.WriteFile(target, []byte("v1 ds 3\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectHint(t, hints)
}

func TestWatcher_StopsWhenReceiverIsGone(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "checkpoint.txt")

	gone := NotifierFunc(func(context.Context, ChangeHint) error {
		return errors.New("receiver disconnected")
	})
	w, task := Spawn(context.Background(), testConfig(target), gone, quietLogger())
	waitInstalled(t, w)

	if err := os.WriteFile(target, []byte("v1 ds 4\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-task.Done():
	case <-time.After(3 * time.Second):
		w.Cancel()
		t.Fatal("watcher kept running after its receiver went away")
	}
	if task.Err() != nil {
		t.Errorf("self-cancel should be clean, got %v", task.Err())
	}
}

func TestWatcher_StopsWithParent(t *testing.T) {
	dir := t.TempDir()

	parent, cancel := context.WithCancel(context.Background())
	w, task := Spawn(parent, testConfig(filepath.Join(dir, "checkpoint.txt")), channelNotifier(make(chan ChangeHint, 1)), quietLogger())
	waitInstalled(t, w)

	cancel()
	select {
	case <-w.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop with its parent")
	}
	<-task.Done()
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Path: "/data/checkpoint.txt"}.withDefaults()
	if cfg.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.RetryDelay)
	}
	if cfg.Debounce != 100*time.Millisecond {
		t.Errorf("Debounce = %v, want 100ms", cfg.Debounce)
	}
	if cfg.EscalateAfter != 5 || cfg.ReinstallBurst != 3 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestWatcher_ReinstallsAfterWatchError(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "checkpoint.txt")

	hints := make(chan ChangeHint, 16)
	w, task := Spawn(context.Background(), testConfig(target), channelNotifier(hints), quietLogger())
	defer func() {
		w.Cancel()
		<-task.Done()
	}()
	waitInstalled(t, w)

	ctx := context.Background()
	st, err := w.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	errorsBefore := testutil.ToFloat64(metrics.WatcherErrorsTotal)

	// An error from an already replaced watch is ignored.
	if err := w.ref.Cast(ctx, watchErrMsg{gen: st.Generation - 1, err: errors.New("old watch")}); err != nil {
		t.Fatalf("Cast failed: %v", err)
	}
	stale, err := w.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !stale.Installed || stale.Generation != st.Generation {
		t.Errorf("Status after stale error = %+v, want generation %d still installed", stale, st.Generation)
	}
	if got := testutil.ToFloat64(metrics.WatcherErrorsTotal); got != errorsBefore {
		t.Errorf("watcher_errors_total = %v, stale error must not count", got)
	}

	if err := w.ref.Cast(ctx, watchErrMsg{gen: st.Generation, err: errors.New("event queue overflow")}); err != nil {
		t.Fatalf("Cast failed: %v", err)
	}

	// Teardown and reinstall each advance the generation.
	deadline := time.Now().Add(3 * time.Second)
	var now Status
	for time.Now().Before(deadline) {
		now, err = w.Status(ctx)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if now.Installed && now.Generation == st.Generation+2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !now.Installed || now.Generation != st.Generation+2 {
		t.Fatalf("Status = %+v, want a reinstalled watch at generation %d", now, st.Generation+2)
	}
	if got := testutil.ToFloat64(metrics.WatcherErrorsTotal); got != errorsBefore+1 {
		t.Errorf("watcher_errors_total = %v, want %v", got, errorsBefore+1)
	}

	if err := os.WriteFile(target, []byte("v1 ds 2\n"), 0o600); err != nil {
		t.Fatalf("write target: %v", err)
	}
	expectHint(t, hints)
}
