// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

// Package actor provides a small generic mailbox runtime.
//
// An actor is a value whose mutable state is only touched from one goroutine,
// the loop started by Run or Spawn. Other goroutines talk to it through a
// *Ref: Cast enqueues a one-way message, Call enqueues a request together with
// a one-shot reply slot and waits for the answer. The mailbox is a bounded
// channel, so senders block when the actor falls behind.
//
// Lifecycle:
//
//	Starting ──Init ok──> Running ──cancel / fatal error──> Stopping ──> Stopped
//
// Cancellation is cooperative. The loop waits on the next message and on the
// actor's context at the same time and never interrupts a running handler. A
// message taken from the mailbox after cancellation has won the race is
// dropped. A handler that returns an error or panics stops only its own actor;
// the runtime does not restart it.
//
// Example:
//
//	ref, task := actor.Spawn(ctx, &counter{}, actor.Options{Name: "counter"})
//	_ = ref.Cast(ctx, 1)
//	n, err := ref.Call(ctx, struct{}{})
//	ref.Cancel()
//	<-task.Done()
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/songrules/internal/logging"
	"github.com/tomtom215/songrules/internal/metrics"
)

// DefaultMailboxSize is the mailbox depth used when Options.MailboxSize is zero.
const DefaultMailboxSize = 8

var (
	// ErrDisconnected is returned to senders once the actor has been
	// cancelled or has stopped.
	ErrDisconnected = errors.New("actor: disconnected")

	// ErrAlreadyStarted is returned by Run when the loop was already started.
	ErrAlreadyStarted = errors.New("actor: already started")

	// ErrShutdownTimeout is returned by Shutdown when the loop did not stop in time.
	ErrShutdownTimeout = errors.New("actor: shutdown timed out")
)

// Actor is implemented by the state owned by one actor loop.
//
// C is the cast message type, Q the call request type and R the call reply
// type. Handlers run on the loop goroutine and must not block on their own
// mailbox; use CastAfter, RelayCallAfter or a detached goroutine for that.
type Actor[C, Q, R any] interface {
	// Init runs once on the loop goroutine before the first message.
	Init(ctx context.Context, self *Ref[C, Q, R]) error

	// HandleCast handles a one-way message.
	HandleCast(ctx context.Context, self *Ref[C, Q, R], msg C) error

	// HandleCall handles a request. The handler answers through reply, either
	// right away or later by handing reply to RelayCallAfter.
	HandleCall(ctx context.Context, self *Ref[C, Q, R], msg Q, reply Reply[R]) error
}

// Terminator is optionally implemented by actors that own resources. It is
// called on the loop goroutine while Stopping, with the error that stopped
// the loop (nil after a clean cancellation).
type Terminator interface {
	Terminate(err error)
}

// Reply is the one-shot reply slot of a call.
type Reply[R any] struct {
	ch chan R
}

// Send delivers the reply. Only the first Send has an effect; it reports
// whether the value was delivered.
func (r Reply[R]) Send(v R) bool {
	select {
	case r.ch <- v:
		return true
	default:
		return false
	}
}

// State is the lifecycle state of an actor loop.
type State int32

const (
	Starting State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configures an actor.
type Options struct {
	// Name identifies the actor in logs and metrics.
	// Default: "actor"
	Name string

	// MailboxSize is the bounded mailbox depth.
	// Default: 8
	MailboxSize int

	// Logger is the parent logger; an "actor" field is added to it.
	// Default: the global logger
	Logger *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "actor"
	}
	if o.MailboxSize <= 0 {
		o.MailboxSize = DefaultMailboxSize
	}
	if o.Logger == nil {
		l := logging.Logger()
		o.Logger = &l
	}
	return o
}

type envelope[C, Q, R any] struct {
	call  bool
	cast  C
	req   Q
	reply chan R
}

// Task is the background side of an actor: it completes when the loop exits.
type Task struct {
	done chan struct{}
	err  error
}

// Done is closed once the actor has reached Stopped.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that stopped the loop. It is only meaningful after
// Done is closed; a clean cancellation yields nil.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the loop exits or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ref is the handle used to talk to an actor. It is safe for concurrent use
// and may be shared freely.
type Ref[C, Q, R any] struct {
	name    string
	actor   Actor[C, Q, R]
	mailbox chan envelope[C, Q, R]
	ctx     context.Context
	cancel  context.CancelFunc
	logger  zerolog.Logger
	started atomic.Bool
	state   atomic.Int32
	task    *Task
}

// New creates an actor without starting its loop. The actor's context is a
// child of parent, so cancelling parent cancels the actor. Messages sent
// before Run wait in the mailbox.
func New[C, Q, R any](parent context.Context, a Actor[C, Q, R], opts Options) *Ref[C, Q, R] {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(parent)

	return &Ref[C, Q, R]{
		name:    opts.Name,
		actor:   a,
		mailbox: make(chan envelope[C, Q, R], opts.MailboxSize),
		ctx:     ctx,
		cancel:  cancel,
		logger:  opts.Logger.With().Str("actor", opts.Name).Logger(),
		task:    &Task{done: make(chan struct{})},
	}
}

// Spawn creates an actor and runs its loop on a new goroutine.
func Spawn[C, Q, R any](parent context.Context, a Actor[C, Q, R], opts Options) (*Ref[C, Q, R], *Task) {
	ref := New(parent, a, opts)
	go ref.Run() //nolint:errcheck // the error is kept in the Task
	return ref, ref.task
}

// Name returns the actor's name.
func (r *Ref[C, Q, R]) Name() string {
	return r.name
}

// Context returns the actor's context. Children and detached jobs of the
// actor derive from it so that they stop with the actor.
func (r *Ref[C, Q, R]) Context() context.Context {
	return r.ctx
}

// Logger returns the actor's logger.
func (r *Ref[C, Q, R]) Logger() *zerolog.Logger {
	return &r.logger
}

// State returns the current lifecycle state.
func (r *Ref[C, Q, R]) State() State {
	return State(r.state.Load())
}

// Task returns the background task of the actor.
func (r *Ref[C, Q, R]) Task() *Task {
	return r.task
}

// Done is closed once the actor has stopped.
func (r *Ref[C, Q, R]) Done() <-chan struct{} {
	return r.task.done
}

// Cancel requests cooperative shutdown. It is idempotent.
func (r *Ref[C, Q, R]) Cancel() {
	r.cancel()
}

// Shutdown cancels the actor and waits up to timeout for its loop to exit.
// It returns ErrShutdownTimeout if the bound elapses, otherwise the error
// that stopped the loop.
func (r *Ref[C, Q, R]) Shutdown(timeout time.Duration) error {
	r.Cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.task.done:
		return r.task.err
	case <-timer.C:
		return ErrShutdownTimeout
	}
}

// Cast enqueues a one-way message, blocking while the mailbox is full.
func (r *Ref[C, Q, R]) Cast(ctx context.Context, msg C) error {
	return r.send(ctx, envelope[C, Q, R]{cast: msg})
}

// Call enqueues a request and waits for its reply. It fails with
// ErrDisconnected if the actor stops without replying.
func (r *Ref[C, Q, R]) Call(ctx context.Context, msg Q) (R, error) {
	var zero R

	reply := make(chan R, 1)
	if err := r.send(ctx, envelope[C, Q, R]{call: true, req: msg, reply: reply}); err != nil {
		return zero, err
	}

	select {
	case v := <-reply:
		return v, nil
	case <-r.task.done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrDisconnected
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// RelayCall re-enqueues a request whose reply slot is still open, so that a
// later handler invocation answers the original caller.
func (r *Ref[C, Q, R]) RelayCall(ctx context.Context, msg Q, reply Reply[R]) error {
	return r.send(ctx, envelope[C, Q, R]{call: true, req: msg, reply: reply.ch})
}

// CastAfter sends msg to the actor after delay from a detached goroutine.
// Nothing is sent if the actor is cancelled first.
func (r *Ref[C, Q, R]) CastAfter(delay time.Duration, msg C) {
	go func() {
		if !r.sleep(delay) {
			return
		}
		if err := r.Cast(r.ctx, msg); err != nil {
			r.logger.Debug().Err(err).Msg("delayed cast dropped")
		}
	}()
}

// RelayCallAfter re-enqueues a pending call after delay. If the actor stops
// first the caller observes ErrDisconnected.
func (r *Ref[C, Q, R]) RelayCallAfter(delay time.Duration, msg Q, reply Reply[R]) {
	go func() {
		if !r.sleep(delay) {
			return
		}
		if err := r.RelayCall(r.ctx, msg, reply); err != nil {
			r.logger.Debug().Err(err).Msg("delayed call dropped")
		}
	}()
}

// sleep waits for delay and reports false if the actor was cancelled first.
func (r *Ref[C, Q, R]) sleep(delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-r.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (r *Ref[C, Q, R]) send(ctx context.Context, env envelope[C, Q, R]) error {
	if r.ctx.Err() != nil {
		return ErrDisconnected
	}

	select {
	case r.mailbox <- env:
		return nil
	case <-r.ctx.Done():
		return ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run runs the actor loop on the calling goroutine until the actor is
// cancelled or a handler fails. A clean cancellation returns nil.
func (r *Ref[C, Q, R]) Run() error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	err := r.loop()
	r.finish(err)
	return err
}

func (r *Ref[C, Q, R]) loop() error {
	r.state.Store(int32(Starting))
	if r.ctx.Err() != nil {
		return nil
	}

	if err := r.safely(func() error { return r.actor.Init(r.ctx, r) }); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	r.state.Store(int32(Running))
	r.logger.Debug().Msg("actor running")

	for {
		select {
		case <-r.ctx.Done():
			return nil

		case env := <-r.mailbox:
			if r.ctx.Err() != nil {
				metrics.RecordActorDrop(r.name)
				return nil
			}
			if err := r.dispatch(env); err != nil {
				return err
			}
		}
	}
}

func (r *Ref[C, Q, R]) dispatch(env envelope[C, Q, R]) error {
	if env.call {
		metrics.RecordActorMessage(r.name, "call", len(r.mailbox))
		return r.safely(func() error {
			return r.actor.HandleCall(r.ctx, r, env.req, Reply[R]{ch: env.reply})
		})
	}

	metrics.RecordActorMessage(r.name, "cast", len(r.mailbox))
	return r.safely(func() error {
		return r.actor.HandleCast(r.ctx, r, env.cast)
	})
}

// safely converts a handler panic into an error.
func (r *Ref[C, Q, R]) safely(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("actor %s: panic: %v", r.name, p)
		}
	}()
	return fn()
}

func (r *Ref[C, Q, R]) finish(err error) {
	r.state.Store(int32(Stopping))
	r.cancel()

	if err != nil {
		metrics.RecordActorFailure(r.name)
		r.logger.Error().Err(err).Msg("actor stopped by fatal error")
	} else {
		r.logger.Debug().Msg("actor stopping")
	}

	if t, ok := r.actor.(Terminator); ok {
		if termErr := r.safely(func() error { t.Terminate(err); return nil }); termErr != nil {
			r.logger.Error().Err(termErr).Msg("terminate failed")
		}
	}

	r.task.err = err
	r.state.Store(int32(Stopped))
	close(r.task.done)
}
