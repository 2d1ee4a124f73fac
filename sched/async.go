package sched

import (
	"time"

	"github.com/rs/zerolog"
)

// Async is the default, host-independent Scheduler backend.
//
// Each scheduled unit gets its own lightweight worker goroutine that parks
// for the delay, invokes the work, and parks again between repetitions.
// One worker per pending unit keeps the design simple: periodic work neither
// starves a shared pool nor requires a timer wheel, and the per-unit overhead
// is acceptable because scheduled tasks are expected to be sparse.
type Async struct {
	log zerolog.Logger
}

// NewAsync creates the default backend. A nil logger disables logging.
func NewAsync(log *zerolog.Logger) *Async {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Async{log: *log}
}

// Schedule arranges for work to run after the given delay and, if every is
// positive, at that interval until the returned token is cancelled.
//
// If ctx implements Executor, each invocation is redirected onto it; the
// worker still waits for the redirected invocation to finish before the next
// repetition, so the work stays single-flight. Any other ctx value, including
// nil, results in inline invocation on the worker goroutine.
func (s *Async) Schedule(work func(), after, every time.Duration, ctx any) Token {
	tok := NewToken()
	exec, _ := ctx.(Executor)
	go s.loop(tok, work, after, every, exec)
	return tok
}

func (s *Async) loop(tok *CancelFlag, work func(), after, every time.Duration, exec Executor) {
	if after > 0 && !s.park(tok, after) {
		return
	}
	if tok.IsCancelled() {
		return
	}
	if every <= 0 {
		s.invoke(tok, work, exec)
		return
	}
	for !tok.IsCancelled() {
		s.invoke(tok, work, exec)
		if !s.park(tok, every) {
			return
		}
	}
}

// park blocks for d or until the token is cancelled.
// It reports false when the wait ended due to cancellation.
func (s *Async) park(tok *CancelFlag, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-tok.Done():
		return false
	}
}

// invoke runs one guarded invocation, redirecting onto exec when supplied.
// Cancellation is checked once more right before invoking, so a token
// cancelled during the park is observed at the repetition boundary.
func (s *Async) invoke(tok *CancelFlag, work func(), exec Executor) {
	if tok.IsCancelled() {
		return
	}
	if exec == nil {
		s.guarded(work)
		return
	}
	done := make(chan struct{})
	exec.Execute(func() {
		defer close(done)
		s.guarded(work)
	})
	<-done
}

// guarded runs work and keeps a raw panic from killing the worker.
// The task core routes its own faults through the exception policy before
// they reach here; this is the backstop for work scheduled directly.
func (s *Async) guarded(work func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("scheduled work panicked")
		}
	}()
	work()
}
