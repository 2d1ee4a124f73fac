package routines

import (
	"sync"
	"time"

	"routines/internal/errs"
)

// None is the input type of a pipeline root and the output type of stages
// that produce nothing.
type None = struct{}

// promise is a single-value handoff between consecutive pipeline stages:
// stage N resolves it with its output, stage N+1 consumes it. It replaces
// the original design's back-pointer into mutable previous-stage state.
type promise[O any] struct {
	done chan struct{}

	mu       sync.Mutex
	val      O
	resolved bool
	subs     []func(O)
}

func newPromise[O any]() *promise[O] {
	return &promise[O]{done: make(chan struct{})}
}

// resolve publishes the value exactly once; later calls are ignored.
func (p *promise[O]) resolve(v O) {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return
	}
	p.val = v
	p.resolved = true
	subs := p.subs
	p.subs = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

// subscribe runs fn with the value, immediately when already resolved.
func (p *promise[O]) subscribe(fn func(O)) {
	p.mu.Lock()
	if p.resolved {
		v := p.val
		p.mu.Unlock()
		fn(v)
		return
	}
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

func (p *promise[O]) wait() O {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.val
}

func (p *promise[O]) waitFor(timeout time.Duration) (O, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return p.wait(), true
	case <-timer.C:
		var zero O
		return zero, false
	}
}

// Stage is one link in a builder-composed pipeline of tasks.
//
// A Stage[I] carries the configuration (delay, interval, context) for the
// next transformation to be attached, which will receive an I. Attaching a
// transformation with Apply produces the next stage; the attached task is
// constructed and scheduled as soon as its input is available — immediately
// for the root stage (against the pipeline's anchor time), or when the
// previous stage's task completes otherwise.
type Stage[I any] struct {
	svc    *Service
	anchor time.Time   // root stage only
	result *promise[I] // output of the previously attached stage; nil at root
	err    error       // sticky configuration fault

	after time.Duration
	every time.Duration
	ctx   any
}

// Fluent starts a new pipeline anchored at the given instant. The first
// attached stage is scheduled against the anchor; every later stage is
// scheduled as soon as its predecessor completes.
func (s *Service) Fluent(anchor time.Time) *Stage[None] {
	return &Stage[None]{svc: s, anchor: anchor}
}

// After sets the initial delay for the next attached transformation.
func (s *Stage[I]) After(d time.Duration) *Stage[I] {
	s.after = d
	return s
}

// Every sets the repeat interval for the next attached transformation. The
// repetition stops once the stage's output satisfies the task's default
// stop condition.
func (s *Stage[I]) Every(d time.Duration) *Stage[I] {
	s.every = d
	return s
}

// Context sets the opaque scheduler context for the next attached
// transformation.
func (s *Stage[I]) Context(ctx any) *Stage[I] {
	s.ctx = ctx
	return s
}

// Join blocks until the most recently attached stage completes and returns
// its output. Joining a root stage before any transformation was attached
// is a usage fault reported as ErrNoStage.
func (s *Stage[I]) Join() (I, error) {
	var zero I
	if s.err != nil {
		return zero, s.err
	}
	if s.result == nil {
		return zero, errs.New(errs.ErrNoStage, "join on pipeline root")
	}
	return s.result.wait(), nil
}

// JoinFor is Join with a deadline; it returns ErrJoinTimeout when the stage
// has not completed in time, leaving the pipeline running.
func (s *Stage[I]) JoinFor(timeout time.Duration) (I, error) {
	var zero I
	if s.err != nil {
		return zero, s.err
	}
	if s.result == nil {
		return zero, errs.New(errs.ErrNoStage, "join on pipeline root")
	}
	v, ok := s.result.waitFor(timeout)
	if !ok {
		return zero, errs.New(errs.ErrJoinTimeout, "stage join")
	}
	return v, nil
}

// Apply attaches a transformation consuming the previous stage's output and
// returns the stage for the transformation after it.
//
// Apply is a package function because Go methods cannot introduce the new
// output type parameter R.
func Apply[I, R any](s *Stage[I], fn func(I) (R, error)) *Stage[R] {
	next := &Stage[R]{svc: s.svc, err: s.err}
	if s.err != nil {
		return next
	}
	if fn == nil {
		next.err = errs.New(errs.ErrNilFn, "pipeline stage")
		return next
	}

	p := newPromise[R]()
	next.result = p

	after, every, ctx := s.after, s.every, s.ctx
	svc := s.svc

	start := func(in I, at time.Time) {
		t, err := NewTask(TaskConfig[I, R]{
			Input:   in,
			Fn:      fn,
			After:   after,
			Every:   every,
			Context: ctx,
		})
		if err != nil {
			// Unreachable: fn was checked above and durations come from
			// the stage setters.
			return
		}
		t.adopt(svc.cfg)
		t.OnComplete(func(out R) { p.resolve(out) })
		if _, err := t.ScheduleAt(at); err != nil {
			svc.log.Error().Err(err).Msg("scheduling pipeline stage failed")
		}
	}

	if s.result == nil {
		var zero I
		start(zero, s.anchor)
	} else {
		s.result.subscribe(func(in I) { start(in, time.Now()) })
	}
	return next
}

// Supply attaches a transformation that ignores its input.
func Supply[I, R any](s *Stage[I], fn func() (R, error)) *Stage[R] {
	if fn == nil {
		return Apply[I, R](s, nil)
	}
	return Apply(s, func(I) (R, error) { return fn() })
}

// Accept attaches a consuming transformation producing no output.
func Accept[I any](s *Stage[I], fn func(I) error) *Stage[None] {
	if fn == nil {
		return Apply[I, None](s, nil)
	}
	return Apply(s, func(in I) (None, error) { return None{}, fn(in) })
}

// Run attaches a transformation that neither consumes nor produces.
func Run[I any](s *Stage[I], fn func() error) *Stage[None] {
	if fn == nil {
		return Apply[I, None](s, nil)
	}
	return Apply(s, func(I) (None, error) { return None{}, fn() })
}
