// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

// Package watcher turns filesystem notifications for one file into debounced
// change hints.
//
// The watch is installed on the file's parent directory, because producers
// replace the file by renaming a temporary file over it and a watch on the
// file itself would follow the old inode. Events for other names in the
// directory are ignored.
//
// The watcher never gives up: failed installations are retried after a fixed
// delay, and runtime errors reported by the OS tear the watch down and
// install it again. Hints are at-least-once and may repeat; receivers treat
// each one as "go re-check".
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/songrules/internal/actor"
	"github.com/tomtom215/songrules/internal/logging"
	"github.com/tomtom215/songrules/internal/metrics"
)

// ChangeHint signals that the watched file may have changed. It carries no
// content.
type ChangeHint struct {
	ObservedAt time.Time
}

// Notifier receives change hints.
type Notifier interface {
	Notify(ctx context.Context, hint ChangeHint) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, hint ChangeHint) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, hint ChangeHint) error {
	return f(ctx, hint)
}

// Config configures a watcher.
type Config struct {
	// Path of the watched file.
	Path string

	// RetryDelay between failed watch installations.
	// Default: 1s
	RetryDelay time.Duration

	// Debounce window for bursts of events.
	// Default: 100ms
	Debounce time.Duration

	// EscalateAfter consecutive installation failures are logged as errors
	// instead of warnings.
	// Default: 5
	EscalateAfter int

	// ReinstallBurst bounds how many reinstalls after runtime errors may run
	// back to back before they are paced at one per RetryDelay.
	// Default: 3
	ReinstallBurst int
}

// DefaultConfig returns the default configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		RetryDelay:     time.Second,
		Debounce:       100 * time.Millisecond,
		EscalateAfter:  5,
		ReinstallBurst: 3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Path)
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.EscalateAfter <= 0 {
		c.EscalateAfter = d.EscalateAfter
	}
	if c.ReinstallBurst <= 0 {
		c.ReinstallBurst = d.ReinstallBurst
	}
	return c
}

// Status describes the watch.
type Status struct {
	Path      string
	Installed bool
	Failures  int
	Hints     int

	// Generation advances on every install and teardown of the OS watch.
	Generation int
}

// Watcher is the handle of a running file watcher actor.
type Watcher struct {
	ref *actor.Ref[event, struct{}, Status]
}

// Spawn starts a watcher actor as a child of parent. Cancelling parent stops
// the watcher.
func Spawn(parent context.Context, cfg Config, notifier Notifier, logger *zerolog.Logger) (*Watcher, *actor.Task) {
	if logger == nil {
		l := logging.WithComponent("watcher")
		logger = &l
	}
	cfg = cfg.withDefaults()

	w := &fileWatcher{
		cfg:      cfg,
		dir:      filepath.Dir(cfg.Path),
		name:     filepath.Base(cfg.Path),
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Every(cfg.RetryDelay), cfg.ReinstallBurst),
	}

	ref, task := actor.Spawn[event, struct{}, Status](parent, w, actor.Options{
		Name:   "file-watcher",
		Logger: logger,
	})
	return &Watcher{ref: ref}, task
}

// Status returns a snapshot of the watch state.
func (w *Watcher) Status(ctx context.Context) (Status, error) {
	return w.ref.Call(ctx, struct{}{})
}

// Cancel stops the watcher.
func (w *Watcher) Cancel() {
	w.ref.Cancel()
}

// Shutdown cancels the watcher and waits up to timeout for it to stop.
func (w *Watcher) Shutdown(timeout time.Duration) error {
	return w.ref.Shutdown(timeout)
}

// Done is closed once the watcher has stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.ref.Done()
}

// event is the watcher's cast message set.
type event interface {
	isEvent()
}

// installMsg asks the watcher to (re)install the OS watch.
type installMsg struct{}

// touchedMsg reports an event for the watched name from watch generation gen.
type touchedMsg struct {
	gen int
	at  time.Time
}

// watchErrMsg reports a runtime error from watch generation gen.
type watchErrMsg struct {
	gen int
	err error
}

// flushMsg carries a debounced observation to forward.
type flushMsg struct {
	at time.Time
}

func (installMsg) isEvent()  {}
func (touchedMsg) isEvent()  {}
func (watchErrMsg) isEvent() {}
func (flushMsg) isEvent()    {}

type fileWatcher struct {
	cfg      Config
	dir      string
	name     string
	notifier Notifier
	limiter  *rate.Limiter

	fsw       *fsnotify.Watcher
	gen       int
	failures  int
	hints     int
	debouncer *Debouncer
}

func (w *fileWatcher) Init(_ context.Context, self *actor.Ref[event, struct{}, Status]) error {
	w.debouncer = NewDebouncer(w.cfg.Debounce, func(at time.Time) {
		if err := self.Cast(self.Context(), flushMsg{at: at}); err != nil {
			self.Logger().Debug().Err(err).Msg("debounced hint dropped")
		}
	})
	w.install(self)
	return nil
}

func (w *fileWatcher) HandleCast(ctx context.Context, self *actor.Ref[event, struct{}, Status], msg event) error {
	switch m := msg.(type) {
	case installMsg:
		if w.fsw == nil {
			w.install(self)
		}

	case touchedMsg:
		if m.gen == w.gen && w.fsw != nil {
			w.debouncer.Add(m.at)
		}

	case watchErrMsg:
		if m.gen != w.gen || w.fsw == nil {
			return nil
		}
		metrics.WatcherErrorsTotal.Inc()
		self.Logger().Warn().Err(m.err).Str("dir", w.dir).Msg("Watch reported an error, reinstalling")
		w.teardown()
		self.CastAfter(w.limiter.Reserve().Delay(), installMsg{})

	case flushMsg:
		if err := w.notifier.Notify(ctx, ChangeHint{ObservedAt: m.at}); err != nil {
			self.Logger().Warn().Err(err).Msg("Hint receiver is gone, stopping watcher")
			self.Cancel()
			return nil
		}
		w.hints++
		metrics.WatcherHintsTotal.Inc()
		self.Logger().Debug().Time("observed_at", m.at).Msg("Change hint forwarded")
	}
	return nil
}

func (w *fileWatcher) HandleCall(_ context.Context, _ *actor.Ref[event, struct{}, Status], _ struct{}, reply actor.Reply[Status]) error {
	reply.Send(Status{
		Path:       w.cfg.Path,
		Installed:  w.fsw != nil,
		Failures:   w.failures,
		Hints:      w.hints,
		Generation: w.gen,
	})
	return nil
}

func (w *fileWatcher) Terminate(error) {
	w.teardown()
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
}

// install tries to put the OS watch in place, scheduling a retry on failure.
func (w *fileWatcher) install(self *actor.Ref[event, struct{}, Status]) {
	fsw, err := w.open()
	metrics.RecordWatchInstall(err)
	if err != nil {
		w.failures++
		level := zerolog.WarnLevel
		if w.failures >= w.cfg.EscalateAfter {
			level = zerolog.ErrorLevel
		}
		self.Logger().WithLevel(level).Err(err).
			Str("dir", w.dir).
			Int("consecutive_failures", w.failures).
			Dur("retry_in", w.cfg.RetryDelay).
			Msg("Failed to install file watch")
		self.CastAfter(w.cfg.RetryDelay, installMsg{})
		return
	}

	if w.failures > 0 {
		self.Logger().Info().Int("after_failures", w.failures).Msg("File watch recovered")
	}
	w.failures = 0
	w.gen++
	w.fsw = fsw
	go w.pump(self, fsw, w.gen)

	self.Logger().Info().Str("dir", w.dir).Str("file", w.name).Msg("File watch installed")
}

func (w *fileWatcher) open() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", w.dir, err)
	}
	return fsw, nil
}

func (w *fileWatcher) teardown() {
	if w.fsw == nil {
		return
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.gen++
}

// pump forwards OS events of one watch generation into the mailbox. It exits
// when the watch is closed or the actor stops.
func (w *fileWatcher) pump(self *actor.Ref[event, struct{}, Status], fsw *fsnotify.Watcher, gen int) {
	ctx := self.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.name || ev.Op == fsnotify.Chmod {
				continue
			}
			if err := self.Cast(ctx, touchedMsg{gen: gen, at: time.Now()}); err != nil {
				return
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			_ = self.Cast(ctx, watchErrMsg{gen: gen, err: err})
			return
		}
	}
}
