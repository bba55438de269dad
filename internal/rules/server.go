// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/songrules/internal/actor"
	"github.com/tomtom215/songrules/internal/logging"
	"github.com/tomtom215/songrules/internal/metrics"
	"github.com/tomtom215/songrules/internal/query"
	"github.com/tomtom215/songrules/internal/watcher"
)

// ErrNotLoaded is returned by Status before the first snapshot is adopted.
var ErrNotLoaded = errors.New("rules: no snapshot loaded")

// Config configures the rule server.
type Config struct {
	Paths Paths

	// RetryDelay before a failed reload is retried.
	// Default: 5s
	RetryDelay time.Duration

	// QueryRetryDelay before a query that arrived with no snapshot is
	// re-examined.
	// Default: 5s
	QueryRetryDelay time.Duration

	// WatcherShutdownTimeout bounds the wait for the watcher on shutdown.
	// Default: 5s
	WatcherShutdownTimeout time.Duration

	// MailboxSize is the server's mailbox depth.
	// Default: 8
	MailboxSize int

	Watcher watcher.Config
	Breaker BreakerConfig
}

// DefaultConfig returns the default configuration for dataDir.
func DefaultConfig(dataDir string) Config {
	paths := DefaultPaths(dataDir)
	return Config{
		Paths:                  paths,
		RetryDelay:             5 * time.Second,
		QueryRetryDelay:        5 * time.Second,
		WatcherShutdownTimeout: 5 * time.Second,
		MailboxSize:            actor.DefaultMailboxSize,
		Watcher:                watcher.DefaultConfig(paths.CheckpointPath()),
		Breaker:                DefaultBreakerConfig(),
	}
}

// Recommendation is the answer to a query.
type Recommendation struct {
	IDs   []string
	Label string
}

// Status describes the adopted snapshot.
type Status struct {
	Timestamp   int64
	Label       string
	Rules       int
	Antecedents int
}

// Server owns the current rule snapshot. All access goes through its
// mailbox; queries are computed on the caller's goroutine against the
// snapshot pointer the server hands out.
type Server struct {
	ref *actor.Ref[message, request, *Snapshot]
}

// NewServer creates a rule server as a child of parent without starting it.
// A nil loader reads the configured files through a circuit breaker.
func NewServer(parent context.Context, cfg Config, loader Loader) *Server {
	if loader == nil {
		loader = NewBreakerLoader(NewFileLoader(cfg.Paths), cfg.Breaker)
	}
	if cfg.Watcher.Path == "" {
		cfg.Watcher.Path = cfg.Paths.CheckpointPath()
	}

	logger := logging.WithComponent("rule-server")
	s := &ruleServer{
		cfg:    cfg.withDefaults(),
		loader: loader,
	}

	return &Server{ref: actor.New[message, request, *Snapshot](parent, s, actor.Options{
		Name:        "rule-server",
		MailboxSize: cfg.MailboxSize,
		Logger:      &logger,
	})}
}

// Run runs the server loop on the calling goroutine until it is cancelled or
// fails. A clean cancellation returns nil.
func (s *Server) Run() error {
	return s.ref.Run()
}

// Start runs the server loop on a new goroutine.
func (s *Server) Start() *actor.Task {
	go s.ref.Run() //nolint:errcheck // the error is kept in the Task
	return s.ref.Task()
}

// Cancel stops the server and, through its context, the watcher.
func (s *Server) Cancel() {
	s.ref.Cancel()
}

// Done is closed once the server has stopped.
func (s *Server) Done() <-chan struct{} {
	return s.ref.Done()
}

// Err returns the error that stopped the server, if any.
func (s *Server) Err() error {
	return s.ref.Task().Err()
}

// Query recommends songs for the given input. Before the first snapshot is
// adopted the request waits, bounded only by ctx.
func (s *Server) Query(ctx context.Context, songs []string) (Recommendation, error) {
	snap, err := s.ref.Call(ctx, request{kind: reqSnapshot, ctx: ctx})
	if err != nil {
		metrics.RecordQuery("failed", 0)
		return Recommendation{}, err
	}

	start := time.Now()
	ids := query.Recommend(songs, snap.Index)
	metrics.RecordQuery("served", time.Since(start))

	return Recommendation{IDs: ids, Label: snap.Label}, nil
}

// Recheck asks the server to compare the checkpoint against the adopted
// snapshot, exactly as a change hint from the watcher would.
func (s *Server) Recheck(ctx context.Context) error {
	return s.ref.Cast(ctx, changeHint{at: time.Now()})
}

// Status reports the adopted snapshot, or ErrNotLoaded.
func (s *Server) Status(ctx context.Context) (Status, error) {
	snap, err := s.ref.Call(ctx, request{kind: reqPeek, ctx: ctx})
	if err != nil {
		return Status{}, err
	}
	if snap == nil {
		return Status{}, ErrNotLoaded
	}
	return Status{
		Timestamp:   snap.Timestamp,
		Label:       snap.Label,
		Rules:       snap.Rules,
		Antecedents: snap.Index.Len(),
	}, nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Paths.DataDir)
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.QueryRetryDelay <= 0 {
		c.QueryRetryDelay = d.QueryRetryDelay
	}
	if c.WatcherShutdownTimeout <= 0 {
		c.WatcherShutdownTimeout = d.WatcherShutdownTimeout
	}
	return c
}

// message is the server's cast message set.
type message interface {
	isMessage()
}

// changeHint asks for a re-check of the checkpoint.
type changeHint struct {
	at time.Time
}

// adoptMsg hands a freshly built snapshot to the loop.
type adoptMsg struct {
	snap *Snapshot
}

func (changeHint) isMessage() {}
func (adoptMsg) isMessage()   {}

type requestKind int

const (
	// reqSnapshot waits for a snapshot.
	reqSnapshot requestKind = iota
	// reqPeek answers immediately, possibly with nil.
	reqPeek
)

// request is a call message. It carries the caller's context so deferred
// requests of callers that gave up can be dropped.
type request struct {
	kind requestKind
	ctx  context.Context
}

type ruleServer struct {
	cfg    Config
	loader Loader

	current   *Snapshot
	lastCheck time.Time
	watcher   *watcher.Watcher
	logger    *zerolog.Logger
}

func (s *ruleServer) Init(ctx context.Context, self *actor.Ref[message, request, *Snapshot]) error {
	s.logger = self.Logger()

	watcherLogger := self.Logger().With().Str("parent", self.Name()).Logger()
	w, _ := watcher.Spawn(ctx, s.cfg.Watcher, watcher.NotifierFunc(func(ctx context.Context, hint watcher.ChangeHint) error {
		return self.Cast(ctx, changeHint{at: hint.ObservedAt})
	}), &watcherLogger)
	s.watcher = w

	self.Logger().Info().
		Str("checkpoint", s.cfg.Paths.CheckpointPath()).
		Str("rules", s.cfg.Paths.RulesPath()).
		Msg("Rule server started")

	self.CastAfter(0, changeHint{at: time.Now()})
	return nil
}

func (s *ruleServer) HandleCast(ctx context.Context, self *actor.Ref[message, request, *Snapshot], msg message) error {
	switch m := msg.(type) {
	case changeHint:
		if !m.at.After(s.lastCheck) {
			self.Logger().Debug().Time("observed_at", m.at).Msg("Hint already covered by a newer check")
			return nil
		}
		s.lastCheck = time.Now()
		go s.reload(ctx, self, s.current)

	case adoptMsg:
		s.adopt(self.Logger(), m.snap)

	default:
		return fmt.Errorf("unexpected message %T", msg)
	}
	return nil
}

func (s *ruleServer) HandleCall(_ context.Context, self *actor.Ref[message, request, *Snapshot], req request, reply actor.Reply[*Snapshot]) error {
	if s.current != nil || req.kind == reqPeek {
		reply.Send(s.current)
		return nil
	}

	if req.ctx != nil && req.ctx.Err() != nil {
		self.Logger().Debug().Msg("Dropping deferred query, caller is gone")
		return nil
	}

	metrics.RecordQuery("deferred", 0)
	self.Logger().Warn().Dur("retry_in", s.cfg.QueryRetryDelay).Msg("No rules loaded yet, deferring query")
	self.RelayCallAfter(s.cfg.QueryRetryDelay, req, reply)
	return nil
}

func (s *ruleServer) Terminate(error) {
	if s.watcher == nil {
		return
	}
	if err := s.watcher.Shutdown(s.cfg.WatcherShutdownTimeout); errors.Is(err, actor.ErrShutdownTimeout) {
		s.logger.Error().
			Dur("timeout", s.cfg.WatcherShutdownTimeout).
			Msg("File watcher did not stop in time, abandoning it")
	}
}

// adopt replaces the current snapshot if snap is strictly newer.
func (s *ruleServer) adopt(logger *zerolog.Logger, snap *Snapshot) {
	if !snap.Newer(s.current) {
		metrics.RecordReload(metrics.ReloadDiscarded)
		logger.Debug().
			Int64("timestamp", snap.Timestamp).
			Int64("current", s.current.Timestamp).
			Msg("Discarding snapshot that is not newer")
		return
	}

	s.current = snap
	metrics.RecordSnapshotAdopted(snap.Timestamp, snap.Index.Len())
	logger.Info().
		Str("model_date", snap.Label).
		Int("rules", snap.Rules).
		Int("antecedents", snap.Index.Len()).
		Msg("New rules adopted")
}

// reload runs the read side of the pipeline off the loop. cur is the
// snapshot that was current when the hint was handled; the adoption message
// re-checks against whatever is current by then.
func (s *ruleServer) reload(ctx context.Context, self *actor.Ref[message, request, *Snapshot], cur *Snapshot) {
	logger := self.Logger()

	cp, err := s.loader.Checkpoint(ctx)
	if err != nil {
		s.retry(ctx, self, fmt.Errorf("read checkpoint: %w", err))
		return
	}
	if cur != nil && cp.Timestamp <= cur.Timestamp {
		metrics.RecordReload(metrics.ReloadStale)
		logger.Debug().Int64("timestamp", cp.Timestamp).Msg("Checkpoint unchanged")
		return
	}

	start := time.Now()
	rules, err := s.loader.Rules(ctx)
	if err != nil {
		s.retry(ctx, self, fmt.Errorf("read rules: %w", err))
		return
	}
	snap := NewSnapshot(cp.Timestamp, rules)
	metrics.RuleReloadDuration.Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		return
	}
	if err := self.Cast(ctx, adoptMsg{snap: snap}); err != nil {
		logger.Debug().Err(err).Msg("Server stopped before the snapshot could be adopted")
	}
}

// retry logs a failed reload and schedules a fresh hint.
func (s *ruleServer) retry(ctx context.Context, self *actor.Ref[message, request, *Snapshot], err error) {
	if ctx.Err() != nil {
		return
	}

	result := metrics.ReloadFailed
	if IsRejected(err) {
		result = metrics.ReloadRejected
	}
	metrics.RecordReload(result)

	self.Logger().Error().Err(err).Dur("retry_in", s.cfg.RetryDelay).Msg("Failed to reload rules, retrying")
	self.CastAfter(s.cfg.RetryDelay, changeHint{at: time.Now()})
}
