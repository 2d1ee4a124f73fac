package routines

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"routines/internal/domain"
	"routines/internal/errs"
	"routines/sched"
)

// Schedulable is anything the service can hand to a scheduler backend.
// Tasks are the only implementation; pipeline stages and recurring calendar
// tasks are built on top of them.
type Schedulable interface {
	// ScheduleAt requests execution anchored at the given instant. The
	// effective delay is the task's configured After plus the distance from
	// now to the anchor, clamped at zero.
	ScheduleAt(at time.Time) (sched.Token, error)

	adopt(cfg Config)
}

// Info is the non-generic view of a task handed to exception policies.
type Info interface {
	// ID returns the task's identifier.
	ID() string

	// Repeats reports whether the task has a positive repeat interval.
	Repeats() bool

	// Runs returns the number of execution cycles completed so far,
	// including the cycle currently being handled.
	Runs() int

	// IsCancelled reports whether the task's active token is cancelled.
	IsCancelled() bool
}

// TaskConfig describes a single unit of deferred, optionally repeating work.
//
// Parameters:
//   - ID: Optional identifier used in logs and metrics; generated if empty.
//   - Input: Immutable input handed to Fn on every invocation.
//   - Fn: The work function. Required. A returned error (or a panic, which
//     is recovered and converted to an error) is routed through OnError.
//   - After: Initial delay before the first invocation.
//   - Every: Repeat interval; zero means single-shot.
//   - Next: Optional continuation scheduled once the task completes normally.
//   - OnError: Exception policy; defaults to LogAndContinue.
//   - StopWhen: Predicate deciding when a repeating task stops. Defaults to
//     "output is the Ok variant" for Result-shaped outputs and "output is
//     not the zero value" otherwise.
//   - Context: Opaque value handed to the scheduler backend.
//   - Scheduler: Backend executing the task. Tasks scheduled through a
//     Service inherit its backend when this is nil.
//   - Logger, Observer: Ambient hooks, likewise inherited from the Service
//     when unset.
type TaskConfig[I, O any] struct {
	ID       string
	Input    I
	Fn       func(I) (O, error)
	After    time.Duration
	Every    time.Duration
	Next     func(O) Schedulable
	OnError  Handler[O]
	StopWhen func(O) bool
	Context  any

	Scheduler sched.Scheduler
	Logger    *zerolog.Logger
	Observer  Observer
}

// Task is the execution unit: it holds input and output, lifecycle state,
// the exception policy, chain-to-next logic, blocking join, and
// re-scheduling. All shared state is guarded by a single mutex; the
// scheduling guard is a separate atomic so concurrent Schedule calls stay
// idempotent without taking the lock.
type Task[I, O any] struct {
	cfg      TaskConfig[I, O]
	log      zerolog.Logger
	logSet   bool
	observer Observer

	scheduling atomic.Bool

	mu        sync.Mutex
	status    TaskStatus
	last      O
	lastErr   error
	runs      int
	startAt   time.Time
	endAt     time.Time
	token     sched.Token
	ready     chan struct{} // closed once the active token is published
	callbacks []func(O)
	done      chan struct{}
}

var taskSeq atomic.Int64

func nextTaskID() string {
	return fmt.Sprintf("task-%d", taskSeq.Add(1))
}

// NewTask validates the configuration and creates an idle task.
//
// Configuration faults are reported eagerly: a nil Fn or a negative delay or
// interval never reaches the scheduler.
func NewTask[I, O any](cfg TaskConfig[I, O]) (*Task[I, O], error) {
	if cfg.Fn == nil {
		return nil, errs.New(errs.ErrNilFn, fmt.Sprintf("task id - %s", cfg.ID))
	}
	if cfg.After < 0 || cfg.Every < 0 {
		return nil, errs.New(errs.ErrWrongTime, fmt.Sprintf("negative delay or interval, id: %s", cfg.ID))
	}
	if cfg.ID == "" {
		cfg.ID = nextTaskID()
	}

	t := &Task[I, O]{
		cfg:      cfg,
		observer: cfg.Observer,
		status:   domain.Idle,
		done:     make(chan struct{}),
	}
	if cfg.Logger != nil {
		t.log = cfg.Logger.With().Str("task", cfg.ID).Logger()
		t.logSet = true
	} else {
		t.log = zerolog.Nop()
	}
	return t, nil
}

// adopt fills unset ambient dependencies from a service configuration.
func (t *Task[I, O]) adopt(cfg Config) {
	if t.cfg.Scheduler == nil {
		t.cfg.Scheduler = cfg.Scheduler
	}
	if t.observer == nil {
		t.observer = cfg.Observer
	}
	if !t.logSet && cfg.Logger != nil {
		// Stored in the config too, so chained tasks inherit it.
		t.cfg.Logger = cfg.Logger
		t.log = cfg.Logger.With().Str("task", t.cfg.ID).Logger()
		t.logSet = true
	}
}

// Schedule requests execution anchored at the current instant.
func (t *Task[I, O]) Schedule() (sched.Token, error) {
	return t.ScheduleAt(time.Now())
}

// ScheduleAt requests execution anchored at the given instant.
//
// Only one scheduling request is active per task at a time: a second call
// while the task is scheduled or running returns the existing token instead
// of creating a second schedule. Scheduling a task that already reached
// terminal state is a no-op returning the last token.
func (t *Task[I, O]) ScheduleAt(at time.Time) (sched.Token, error) {
	if t.cfg.Scheduler == nil {
		return nil, errs.New(errs.ErrNoScheduler, t.cfg.ID)
	}

	t.mu.Lock()
	if t.status.Terminal() {
		tok := t.token
		t.mu.Unlock()
		return tok, nil
	}
	if !t.scheduling.CompareAndSwap(false, true) {
		// The winner installed t.ready in the same critical section it won
		// the guard, so losers can always park until the token is published.
		ready := t.ready
		t.mu.Unlock()
		if ready != nil {
			<-ready
		}
		return t.currentToken(), nil
	}
	ready := make(chan struct{})
	t.ready = ready
	t.mu.Unlock()

	delay := t.cfg.After + time.Until(at)
	if delay < 0 {
		delay = 0
	}

	// The backend may fire before Schedule returns the token; the first
	// invocation waits until the token reference is in place.
	tok := t.cfg.Scheduler.Schedule(func() {
		<-ready
		t.runProtected()
	}, delay, t.cfg.Every, t.cfg.Context)

	t.mu.Lock()
	t.token = tok
	if t.status == domain.Idle {
		t.status = domain.Scheduling
	}
	t.mu.Unlock()
	close(ready)

	t.log.Debug().Dur("after", delay).Dur("every", t.cfg.Every).Msg("task scheduled")
	return tok, nil
}

// runProtected wraps one execution cycle and releases the scheduling guard
// once the task will not repeat, so a finished schedule can be observed as
// inactive.
func (t *Task[I, O]) runProtected() {
	t.runCycle()
	if t.willNotRepeat() {
		t.scheduling.Store(false)
	}
}

// runCycle performs one execution cycle: invoke the work function, classify
// the outcome, apply the exception policy if needed, and either leave the
// task repeat-pending or drive it to terminal state and chain the next task.
func (t *Task[I, O]) runCycle() {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.status = domain.Running
	if t.startAt.IsZero() {
		t.startAt = time.Now()
	}
	t.mu.Unlock()

	out, err := t.apply()

	t.mu.Lock()
	t.runs++
	t.mu.Unlock()

	if err != nil {
		decision := t.handler()(t, err)
		out = decision.Out

		t.mu.Lock()
		t.lastErr = err
		t.mu.Unlock()

		if decision.Strategy == StopAll {
			if tok := t.currentToken(); tok != nil {
				tok.Cancel()
			}
			t.finish(out, domain.Complete)
			return
		}
	}

	t.setLast(out)

	// A repeating task stops itself once the (possibly substituted) output
	// satisfies the stop predicate.
	if t.Repeats() && t.stopWhen()(out) {
		if tok := t.currentToken(); tok != nil {
			tok.Cancel()
		}
	}

	if t.willNotRepeat() {
		completed := t.finish(out, domain.Complete)
		if completed && t.cfg.Next != nil {
			if nxt := t.cfg.Next(out); nxt != nil {
				nxt.adopt(Config{Scheduler: t.cfg.Scheduler, Logger: t.cfg.Logger, Observer: t.observer})
				if _, err := nxt.ScheduleAt(time.Now()); err != nil {
					t.log.Error().Err(err).Msg("chaining next task failed")
				}
			}
		}
	}
}

// apply invokes the work function, converting a panic into a work fault so
// it is routed through the exception policy like any other error.
func (t *Task[I, O]) apply() (out O, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.ErrTaskPanicked, fmt.Sprintf("task id: %s, panic: %v", t.cfg.ID, r))
		}
	}()
	return t.cfg.Fn(t.cfg.Input)
}

// finish drives the task to a terminal state exactly once. It records the
// final output, runs completion callbacks in registration order on the
// calling goroutine, wakes joiners, and delivers the terminal snapshot to
// the observer. Returns false when the task was already terminal.
func (t *Task[I, O]) finish(out O, status domain.TaskStatus) bool {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.last = out
	t.status = status
	t.endAt = time.Now()
	cbs := make([]func(O), len(t.callbacks))
	copy(cbs, t.callbacks)
	snapshot := t.snapshotLocked()
	close(t.done)
	t.mu.Unlock()

	for _, cb := range cbs {
		t.safeCallback(cb, out)
	}
	if t.observer != nil {
		t.observer.SaveMetrics(snapshot)
	}
	t.log.Debug().Str("status", string(status)).Int("runs", snapshot.Runs).Msg("task finished")
	return true
}

// safeCallback isolates completion callbacks: a panicking callback is logged
// and surfaced to the observer, never propagated into the state machine.
func (t *Task[I, O]) safeCallback(cb func(O), out O) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Msg("completion callback panicked")
			if t.observer != nil {
				t.observer.CallbackFault(t.cfg.ID, r)
			}
		}
	}()
	cb(out)
}

// Cancel cancels the active token, clears the scheduling guard, and forces
// an immediate transition to terminal state using whatever last result was
// recorded. Cancel is idempotent. An invocation already in flight is allowed
// to finish but cannot alter the result any more.
func (t *Task[I, O]) Cancel() {
	if tok := t.currentToken(); tok != nil {
		tok.Cancel()
	}
	t.scheduling.Store(false)

	t.mu.Lock()
	out := t.last
	t.mu.Unlock()
	t.finish(out, domain.Cancelled)
}

// Join blocks the calling goroutine until the task reaches terminal state
// and returns the last recorded result.
func (t *Task[I, O]) Join() O {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// JoinFor blocks up to the given timeout. When the deadline elapses first it
// returns ErrJoinTimeout without touching the task's own state: the task
// keeps running, only the waiting caller gives up.
func (t *Task[I, O]) JoinFor(timeout time.Duration) (O, error) {
	if timeout <= 0 {
		select {
		case <-t.done:
			return t.Join(), nil
		default:
			var zero O
			return zero, errs.New(errs.ErrJoinTimeout, t.cfg.ID)
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return t.Join(), nil
	case <-timer.C:
		var zero O
		return zero, errs.New(errs.ErrJoinTimeout, t.cfg.ID)
	}
}

// JoinContext blocks until terminal state or context cancellation.
func (t *Task[I, O]) JoinContext(ctx context.Context) (O, error) {
	select {
	case <-t.done:
		return t.Join(), nil
	case <-ctx.Done():
		var zero O
		return zero, ctx.Err()
	}
}

// OnComplete registers a callback fired exactly once with the final result.
// Callbacks run synchronously, in registration order, on the goroutine that
// detected completion. Registering on an already-terminal task fires the
// callback immediately and still retains it.
func (t *Task[I, O]) OnComplete(cb func(O)) {
	t.mu.Lock()
	terminal := t.status.Terminal()
	out := t.last
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()

	if terminal {
		t.safeCallback(cb, out)
	}
}

// ID returns the task's identifier.
func (t *Task[I, O]) ID() string { return t.cfg.ID }

// Repeats reports whether the task has a positive repeat interval.
func (t *Task[I, O]) Repeats() bool { return t.cfg.Every > 0 }

// Runs returns the number of execution cycles started so far.
func (t *Task[I, O]) Runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

// IsCancelled reports whether the task's active token has been cancelled.
func (t *Task[I, O]) IsCancelled() bool {
	tok := t.currentToken()
	return tok != nil && tok.IsCancelled()
}

// IsComplete reports whether the task reached a terminal state.
func (t *Task[I, O]) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.Terminal()
}

// Status returns the current lifecycle state.
func (t *Task[I, O]) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// State returns a snapshot of the task's execution state.
func (t *Task[I, O]) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Task[I, O]) snapshotLocked() TaskState {
	return TaskState{
		TaskID:  t.cfg.ID,
		StartAt: t.startAt,
		EndAt:   t.endAt,
		Status:  t.status,
		Runs:    t.runs,
		Err:     t.lastErr,
	}
}

func (t *Task[I, O]) currentToken() sched.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}

func (t *Task[I, O]) setLast(out O) {
	t.mu.Lock()
	if !t.status.Terminal() {
		t.last = out
	}
	t.mu.Unlock()
}

// willNotRepeat reports whether no further invocation will occur: the task
// is single-shot, or its token has been cancelled.
func (t *Task[I, O]) willNotRepeat() bool {
	if t.cfg.Every <= 0 {
		return true
	}
	tok := t.currentToken()
	return tok != nil && tok.IsCancelled()
}

func (t *Task[I, O]) handler() Handler[O] {
	if t.cfg.OnError != nil {
		return t.cfg.OnError
	}
	return LogAndContinue[O](&t.log)
}

func (t *Task[I, O]) stopWhen() func(O) bool {
	if t.cfg.StopWhen != nil {
		return t.cfg.StopWhen
	}
	return defaultStop[O]
}

// defaultStop is the stop condition for repeating tasks: the Ok variant for
// Result-shaped outputs, a non-zero value otherwise. The zero value stands
// in for the original notion of "no output yet".
func defaultStop[O any](out O) bool {
	if r, ok := any(out).(interface{ IsOk() bool }); ok {
		return r.IsOk()
	}
	v := any(out)
	if v == nil {
		return false
	}
	return !reflect.ValueOf(v).IsZero()
}
