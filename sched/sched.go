// Package sched defines the scheduling capability the task core depends on,
// together with a default host-independent backend.
//
// A Scheduler arranges for a unit of work to run after an initial delay and,
// if a repeat interval is given, every interval thereafter until cancelled.
// Concrete backends bound to a particular host runtime only need to satisfy
// the Scheduler interface; the core never depends on anything more.
package sched

import (
	"sync"
	"sync/atomic"
	"time"
)

// Token is a monotonic cancellation flag shared between a task and the
// backend executing it. Once cancelled it never transitions back.
//
// Every backend-specific cancellation handle implements Token directly;
// no adaptation layer is involved.
type Token interface {
	// Cancel marks the token as cancelled. Cancel is idempotent.
	Cancel()

	// IsCancelled reports whether Cancel has been called.
	IsCancelled() bool
}

// Scheduler is the single capability the task core requires.
//
// Contract for any backend:
//   - The work must never be invoked concurrently with itself
//     (single-flight per schedule).
//   - No further invocation starts once cancellation is observed at a
//     repetition boundary; an invocation already in flight is not interrupted.
//   - after and every are non-negative; every == 0 means single-shot.
//   - ctx is opaque to the core. A backend may interpret it (for example,
//     binding execution to a particular affinity domain); a nil ctx must fall
//     back to a reasonable default execution environment.
type Scheduler interface {
	Schedule(work func(), after, every time.Duration, ctx any) Token
}

// Executor redirects an invocation onto a caller-supplied execution context.
// The default backend recognizes Executor values passed as the schedule ctx.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Execute(fn func()) { f(fn) }

// Inline runs the work directly on the scheduling goroutine.
var Inline Executor = ExecutorFunc(func(fn func()) { fn() })

// Spawn runs each invocation on a fresh goroutine. The default backend still
// waits for the invocation to finish before the next repetition, so work
// stays single-flight per schedule.
var Spawn Executor = ExecutorFunc(func(fn func()) { go fn() })

// CancelFlag is the default Token implementation: an atomic flag paired with
// a channel so parked workers wake promptly instead of sleeping out their
// interval after cancellation.
type CancelFlag struct {
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewToken creates an active CancelFlag.
func NewToken() *CancelFlag {
	return &CancelFlag{done: make(chan struct{})}
}

// Cancel marks the flag cancelled and wakes any worker parked on Done.
func (f *CancelFlag) Cancel() {
	f.cancelled.Store(true)
	f.once.Do(func() { close(f.done) })
}

// IsCancelled reports whether Cancel has been called.
func (f *CancelFlag) IsCancelled() bool {
	return f.cancelled.Load()
}

// Done returns a channel closed when the flag is cancelled.
func (f *CancelFlag) Done() <-chan struct{} {
	return f.done
}
