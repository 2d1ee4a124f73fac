package routines

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"routines/monitoring"
	"routines/result"
	"routines/sched"
)

// blockingScheduler parks inside Schedule until released, exposing the
// window in which a concurrent schedule request has no token to read yet.
type blockingScheduler struct {
	inner   sched.Scheduler
	entered chan struct{}
	release chan struct{}
}

func (s *blockingScheduler) Schedule(work func(), after, every time.Duration, ctx any) sched.Token {
	close(s.entered)
	<-s.release
	return s.inner.Schedule(work, after, every, ctx)
}

func TestNewTask_Validation(t *testing.T) {
	_, err := NewTask(TaskConfig[int, int]{})
	assert.ErrorIs(t, err, ErrNilFn)

	fn := func(in int) (int, error) { return in, nil }

	_, err = NewTask(TaskConfig[int, int]{Fn: fn, After: -time.Second})
	assert.ErrorIs(t, err, ErrWrongTime)

	_, err = NewTask(TaskConfig[int, int]{Fn: fn, Every: -time.Second})
	assert.ErrorIs(t, err, ErrWrongTime)

	task, err := NewTask(TaskConfig[int, int]{Fn: fn})
	assert.NoError(t, err)
	assert.NotEmpty(t, task.ID())

	task, err = NewTask(TaskConfig[int, int]{ID: "my-task", Fn: fn})
	assert.NoError(t, err)
	assert.Equal(t, "my-task", task.ID())
}

func TestTask_SingleShot(t *testing.T) {
	svc := Default()

	task, err := NewTask(TaskConfig[string, int]{
		Input: "hello",
		Fn:    func(in string) (int, error) { return len(in), nil },
	})
	assert.NoError(t, err)
	assert.Equal(t, Idle, task.Status())
	assert.False(t, task.Repeats())

	_, err = svc.Schedule(task)
	assert.NoError(t, err)

	assert.Equal(t, 5, task.Join())
	assert.True(t, task.IsComplete())
	assert.Equal(t, Complete, task.Status())
	assert.Equal(t, 1, task.Runs())
}

func TestTask_NoSchedulerConfigured(t *testing.T) {
	task, err := NewTask(TaskConfig[int, int]{
		Fn: func(in int) (int, error) { return in, nil },
	})
	assert.NoError(t, err)

	_, err = task.Schedule()
	assert.ErrorIs(t, err, ErrNoScheduler)
}

func TestTask_RepeatsUntilNonZeroOutput(t *testing.T) {
	svc := Default()
	var attempts atomic.Int32

	task, err := NewTask(TaskConfig[struct{}, int]{
		Fn: func(struct{}) (int, error) {
			if attempts.Add(1) < 3 {
				return 0, nil
			}
			return 42, nil
		},
		Every: 10 * time.Millisecond,
	})
	assert.NoError(t, err)
	assert.True(t, task.Repeats())

	_, err = svc.Schedule(task)
	assert.NoError(t, err)

	assert.Equal(t, 42, task.Join())
	assert.Equal(t, 3, task.Runs())
	assert.Equal(t, Complete, task.Status())
}

func TestTask_RepeatsUntilOkResult(t *testing.T) {
	svc := Default()
	var attempts atomic.Int32

	task, err := NewTask(TaskConfig[struct{}, result.Result[int, error]]{
		Fn: func(struct{}) (result.Result[int, error], error) {
			if attempts.Add(1) < 3 {
				return result.Err[int, error](errors.New("not ready")), nil
			}
			return result.Ok[int, error](9), nil
		},
		Every: 10 * time.Millisecond,
	})
	assert.NoError(t, err)

	_, err = svc.Schedule(task)
	assert.NoError(t, err)

	out := task.Join()
	assert.True(t, out.IsOk())
	assert.Equal(t, 9, out.Unwrap())
	assert.Equal(t, 3, task.Runs())
}

func TestTask_StopWhenOverride(t *testing.T) {
	svc := Default()
	var attempts atomic.Int32

	task, err := NewTask(TaskConfig[struct{}, int]{
		Fn: func(struct{}) (int, error) {
			return int(attempts.Add(1)), nil
		},
		Every:    10 * time.Millisecond,
		StopWhen: func(v int) bool { return v >= 3 },
	})
	assert.NoError(t, err)

	_, err = svc.Schedule(task)
	assert.NoError(t, err)

	assert.Equal(t, 3, task.Join())
	assert.Equal(t, 3, task.Runs())
}

func TestTask_ScheduleIsIdempotent(t *testing.T) {
	svc := Default()
	release := make(chan struct{})

	task, err := NewTask(TaskConfig[struct{}, int]{
		Fn: func(struct{}) (int, error) {
			<-release
			return 1, nil
		},
	})
	assert.NoError(t, err)

	tok1, err := svc.Schedule(task)
	assert.NoError(t, err)
	tok2, err := svc.Schedule(task)
	assert.NoError(t, err)
	assert.Same(t, tok1, tok2)

	close(release)
	assert.Equal(t, 1, task.Join())

	// Re-scheduling a terminal task is a no-op returning the last token.
	tok3, err := svc.Schedule(task)
	assert.NoError(t, err)
	assert.Same(t, tok1, tok3)
	assert.Equal(t, 1, task.Runs())
}

func TestTask_ScheduleRaceReturnsSameToken(t *testing.T) {
	backend := &blockingScheduler{
		inner:   sched.NewAsync(nil),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	task, err := NewTask(TaskConfig[struct{}, int]{
		Fn:        func(struct{}) (int, error) { return 1, nil },
		Scheduler: backend,
	})
	assert.NoError(t, err)

	var tok1, tok2 sched.Token
	first := make(chan struct{})
	go func() {
		defer close(first)
		tok1, _ = task.Schedule()
	}()

	// The first call is now parked inside the backend; a second call must
	// wait for the token instead of returning nil.
	<-backend.entered
	second := make(chan struct{})
	go func() {
		defer close(second)
		tok2, _ = task.Schedule()
	}()

	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	<-first
	<-second

	assert.NotNil(t, tok1)
	assert.Same(t, tok1, tok2)
	assert.Equal(t, 1, task.Join())
}

func TestTask_CancelBeforeFirstRun(t *testing.T) {
	svc := Default()
	var ran atomic.Bool

	task, err := NewTask(TaskConfig[struct{}, int]{
		Fn: func(struct{}) (int, error) {
			ran.Store(true)
			return 1, nil
		},
		After: 100 * time.Millisecond,
	})
	assert.NoError(t, err)

	_, err = svc.Schedule(task)
	assert.NoError(t, err)

	task.Cancel()
	task.Cancel() // idempotent

	assert.Equal(t, 0, task.Join())
	assert.Equal(t, Cancelled, task.Status())
	assert.True(t, task.IsCancelled())

	time.Sleep(150 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.Equal(t, 0, task.Runs())
}

func TestTask_CancelKeepsLastOutput(t *testing.T) {
	svc := Default()
	var attempts atomic.Int32

	task, err := NewTask(TaskConfig[struct{}, int]{
		Fn: func(struct{}) (int, error) {
			attempts.Add(1)
			return 0, nil // zero output keeps the repetition going
		},
		Every: 10 * time.Millisecond,
	})
	assert.NoError(t, err)

	_, err = svc.Schedule(task)
	assert.NoError(t, err)

	for attempts.Load() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	task.Cancel()

	assert.Equal(t, Cancelled, task.Status())
	assert.GreaterOrEqual(t, task.Runs(), 2)
}

func TestTask_JoinFor(t *testing.T) {
	svc := Default()

	task, err := NewTask(TaskConfig[struct{}, int]{
		Fn: func(struct{}) (int, error) {
			time.Sleep(60 * time.Millisecond)
			return 7, nil
		},
	})
	assert.NoError(t, err)

	_, err = svc.Schedule(task)
	assert.NoError(t, err)

	_, err = task.JoinFor(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrJoinTimeout)

	// The timed-out join left the task running.
	out, err := task.JoinFor(time.Second)
	assert.NoError(t, err)
	assert.Equal(t, 7, out)

	// A non-positive timeout on a terminal task still returns the result.
	out, err = task.JoinFor(0)
	assert.NoError(t, err)
	assert.Equal(t, 7, out)
}

func TestTask_JoinContext(t *testing.T) {
	svc := Default()

	task, err := NewTask(TaskConfig[struct{}, int]{
		Fn: func(struct{}) (int, error) {
			time.Sleep(100 * time.Millisecond)
			return 7, nil
		},
	})
	assert.NoError(t, err)

	_, err = svc.Schedule(task)
	assert.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = task.JoinContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	out, err := task.JoinContext(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 7, out)
}

func TestTask_OnComplete(t *testing.T) {
	svc := Default()
	var order []int

	task, err := NewTask(TaskConfig[struct{}, int]{
		Fn: func(struct{}) (int, error) { return 5, nil },
	})
	assert.NoError(t, err)

	done := make(chan struct{})
	task.OnComplete(func(out int) { order = append(order, out) })
	task.OnComplete(func(out int) {
		order = append(order, out*2)
		close(done)
	})

	_, err = svc.Schedule(task)
	assert.NoError(t, err)

	<-done
	assert.Equal(t, []int{5, 10}, order)

	// Late registration fires immediately with the final result.
	late := make(chan int, 1)
	task.OnComplete(func(out int) { late <- out })
	assert.Equal(t, 5, <-late)
}

func TestTask_CallbackPanicIsIsolated(t *testing.T) {
	mon := monitoring.NewMemory()
	svc := New(Config{Observer: mon})

	task, err := NewTask(TaskConfig[struct{}, int]{
		ID: "panicky-callback",
		Fn: func(struct{}) (int, error) { return 1, nil },
	})
	assert.NoError(t, err)

	var secondRan atomic.Bool
	task.OnComplete(func(int) { panic("callback boom") })
	task.OnComplete(func(int) { secondRan.Store(true) })

	_, err = svc.Schedule(task)
	assert.NoError(t, err)

	assert.Equal(t, 1, task.Join())
	assert.True(t, secondRan.Load(), "later callbacks run despite the panic")

	faults := mon.Faults()
	assert.Len(t, faults, 1)
	assert.Equal(t, "panicky-callback", faults[0].TaskID)
	assert.Equal(t, "callback boom", faults[0].Recovered)
}

func TestTask_PanicBecomesWorkFault(t *testing.T) {
	svc := Default()

	task, err := NewTask(TaskConfig[struct{}, int]{
		Fn: func(struct{}) (int, error) { panic("boom") },
	})
	assert.NoError(t, err)

	_, err = svc.Schedule(task)
	assert.NoError(t, err)

	assert.Equal(t, 0, task.Join())
	assert.Equal(t, Complete, task.Status())
	assert.ErrorIs(t, task.State().Err, ErrTaskPanicked)
}

func TestTask_ChainsNextOnCompletion(t *testing.T) {
	svc := Default()

	second, err := NewTask(TaskConfig[int, int]{
		Input: 5,
		Fn:    func(in int) (int, error) { return in * 2, nil },
	})
	assert.NoError(t, err)

	first, err := NewTask(TaskConfig[struct{}, int]{
		Fn:   func(struct{}) (int, error) { return 5, nil },
		Next: func(int) Schedulable { return second },
	})
	assert.NoError(t, err)

	_, err = svc.Schedule(first)
	assert.NoError(t, err)

	// The chained task inherits the service's backend from its parent.
	assert.Equal(t, 10, second.Join())
}

// syncBuffer is an io.Writer safe for the worker goroutines logging into it.
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

func TestTask_ChainedTaskInheritsLogger(t *testing.T) {
	buf := &syncBuffer{}
	logger := zerolog.New(buf)
	svc := New(Config{Logger: &logger})

	second, err := NewTask(TaskConfig[int, int]{
		ID:    "chained-child",
		Input: 5,
		Fn:    func(in int) (int, error) { return in * 2, nil },
	})
	assert.NoError(t, err)

	first, err := NewTask(TaskConfig[struct{}, int]{
		Fn:   func(struct{}) (int, error) { return 5, nil },
		Next: func(int) Schedulable { return second },
	})
	assert.NoError(t, err)

	_, err = svc.Schedule(first)
	assert.NoError(t, err)
	assert.Equal(t, 10, second.Join())

	assert.Contains(t, buf.String(), `"task":"chained-child"`)
}

func TestTask_CancelledTaskDoesNotChain(t *testing.T) {
	svc := Default()
	var chained atomic.Bool

	second, err := NewTask(TaskConfig[int, int]{
		Fn: func(in int) (int, error) {
			chained.Store(true)
			return in, nil
		},
	})
	assert.NoError(t, err)

	first, err := NewTask(TaskConfig[struct{}, int]{
		Fn:    func(struct{}) (int, error) { return 5, nil },
		After: 80 * time.Millisecond,
		Next:  func(int) Schedulable { return second },
	})
	assert.NoError(t, err)

	_, err = svc.Schedule(first)
	assert.NoError(t, err)
	first.Cancel()

	time.Sleep(150 * time.Millisecond)
	assert.False(t, chained.Load())
}

func TestTask_ObserverReceivesTerminalSnapshot(t *testing.T) {
	mon := monitoring.NewMemory()
	svc := New(Config{Observer: mon})

	task, err := NewTask(TaskConfig[struct{}, int]{
		ID: "observed",
		Fn: func(struct{}) (int, error) { return 1, nil },
	})
	assert.NoError(t, err)

	_, err = svc.Schedule(task)
	assert.NoError(t, err)
	task.Join()

	metrics := mon.GetMetrics()
	state, ok := metrics["observed"]
	assert.True(t, ok)
	assert.Equal(t, Complete, state.Status)
	assert.Equal(t, 1, state.Runs)
	assert.False(t, state.StartAt.IsZero())
	assert.False(t, state.EndAt.IsZero())
}

func TestService_Defaults(t *testing.T) {
	svc := Default()
	assert.NotNil(t, svc.Observer())

	_, ok := svc.Observer().(*monitoring.Memory)
	assert.True(t, ok)
}
