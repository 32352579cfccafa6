// Package actor implements a mailbox-based actor runtime: single-consumer
// message queues, tell/ask primitives, and failure isolation, generalized
// from a partitioned dispatch loop into a per-actor single-consumer mailbox.
package actor

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/tevino/abool"

	"github.com/archivant/lexfetch/internal/core"
)

// defaultAskTimeout is the implicit per-call ask deadline.
const defaultAskTimeout = 5 * time.Second

// defaultMailboxCapacity bounds the pending-message queue per actor.
const defaultMailboxCapacity = 1024

// Message is a single mailbox entry. Handle runs to completion before the
// next message is dequeued.
type Message struct {
	fn    func()
	reply chan struct{}
}

// Actor is a single-consumer mailbox plus dispatch loop. Construct one per
// stateful component (Fetch Worker, Discovery, Persistence, Coordinator);
// the zero value is not usable, use New.
type Actor struct {
	name    string
	mailbox chan Message
	stopped *abool.AtomicBool
	done    chan struct{}
	onError func(err error)
	wg      conc.WaitGroup
}

// New creates and starts an Actor. onError is invoked (never blocking the
// dispatcher) whenever a handler panics — it must never itself panic.
func New(name string, onError func(err error)) *Actor {
	a := &Actor{
		name:    name,
		mailbox: make(chan Message, defaultMailboxCapacity),
		stopped: abool.New(),
		done:    make(chan struct{}),
		onError: onError,
	}
	a.wg.Go(a.dispatchLoop)
	return a
}

// dispatchLoop is the single consumer: one message at a time, in send order.
func (a *Actor) dispatchLoop() {
	defer close(a.done)
	for msg := range a.mailbox {
		a.runOne(msg)
	}
}

// runOne invokes msg.fn, isolating handler panics so a single bad handler
// never kills the dispatcher.
func (a *Actor) runOne(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("actor handler panicked", "actor", a.name, "panic", r)
			if a.onError != nil {
				a.onError(core.NewFetchError(core.KindSystem, "", 0, nil))
			}
		}
		if msg.reply != nil {
			close(msg.reply)
		}
	}()
	msg.fn()
}

// Tell enqueues fn for asynchronous execution and returns immediately. No
// reply is produced. Tell on a stopped actor is a silent no-op (the message
// is dropped), matching "late tells after stop are dropped".
func (a *Actor) Tell(fn func()) {
	if a.stopped.IsSet() {
		return
	}
	select {
	case a.mailbox <- Message{fn: fn}:
	default:
		slog.Warn("actor mailbox full, dropping tell", "actor", a.name)
	}
}

// Ask enqueues fn and blocks until fn has run, ctx is cancelled, the
// implicit ask timeout elapses, or the actor stops first — whichever comes
// first. A late reply after timeout is simply dropped.
func (a *Actor) Ask(ctx context.Context, fn func()) error {
	if a.stopped.IsSet() {
		return core.ErrActorStopped
	}

	reply := make(chan struct{})
	askCtx, cancel := context.WithTimeout(ctx, defaultAskTimeout)
	defer cancel()

	select {
	case a.mailbox <- Message{fn: fn, reply: reply}:
	case <-askCtx.Done():
		return classifyAskErr(askCtx)
	}

	select {
	case <-reply:
		return nil
	case <-askCtx.Done():
		return classifyAskErr(askCtx)
	case <-a.done:
		return core.ErrActorStopped
	}
}

func classifyAskErr(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return core.ErrAskTimeout
	}
	return core.ErrCancelled
}

// Stop enqueues a terminal sentinel: the dispatcher drains whatever is
// already queued, then exits. Stop blocks until the dispatcher has drained
// or deadline elapses, whichever is first. In-flight Ask calls whose reply
// has not been produced by then receive ActorStopped.
func (a *Actor) Stop(deadline time.Duration) {
	if !a.stopped.SetToIf(false, true) {
		return
	}
	close(a.mailbox)

	timer := time.NewTimer(deadline)
	defer timer.Stop()
	select {
	case <-a.done:
	case <-timer.C:
		slog.Warn("actor stop deadline exceeded, abandoning drain", "actor", a.name)
	}
}

// Name returns the actor's identifying label, used in logs and metrics.
func (a *Actor) Name() string { return a.name }
