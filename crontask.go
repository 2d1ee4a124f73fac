package routines

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"routines/cron"
	"routines/internal/errs"
)

// CronTask repeatedly runs a function at the instants produced by a cron
// schedule. It is a plain loop over the task core's one-shot scheduling:
// after each firing it computes the next occurrence and schedules a fresh
// task at that instant. Calendar logic never enters the task core itself.
type CronTask struct {
	svc      *Service
	schedule *cron.Schedule
	fn       func() error
	log      zerolog.Logger

	mu        sync.Mutex
	cancelled bool
	current   *Task[None, None]
}

// ScheduleCron parses the cron expression and starts the recurring loop.
//
// A work fault from fn is routed through the default exception policy of
// the underlying task (logged, then continued); the loop proceeds to the
// next occurrence either way. The loop ends silently once the schedule
// yields no further occurrence within the search horizon, or when Cancel
// is called.
func (s *Service) ScheduleCron(expr string, fn func() error) (*CronTask, error) {
	if fn == nil {
		return nil, errs.New(errs.ErrNilFn, "cron task")
	}
	schedule, err := cron.Parse(expr)
	if err != nil {
		return nil, err
	}

	ct := &CronTask{
		svc:      s,
		schedule: schedule,
		fn:       fn,
		log:      s.log.With().Str("cron", expr).Logger(),
	}
	ct.scheduleNext()
	return ct, nil
}

func (ct *CronTask) scheduleNext() {
	ct.mu.Lock()
	if ct.cancelled {
		ct.mu.Unlock()
		return
	}
	ct.mu.Unlock()

	next := ct.schedule.Next(time.Now(), 1)
	if len(next) == 0 {
		ct.log.Debug().Msg("cron schedule exhausted")
		return
	}
	at := next[0]

	t, err := NewTask(TaskConfig[None, None]{
		Fn: func(None) (None, error) {
			return None{}, ct.fn()
		},
	})
	if err != nil {
		return
	}
	t.adopt(ct.svc.cfg)
	// Reschedule off completion rather than inside the work function, so a
	// work fault handled with Continue still keeps the calendar loop alive.
	t.OnComplete(func(None) { ct.scheduleNext() })

	ct.mu.Lock()
	if ct.cancelled {
		ct.mu.Unlock()
		return
	}
	ct.current = t
	ct.mu.Unlock()

	if _, err := t.ScheduleAt(at); err != nil {
		ct.log.Error().Err(err).Msg("scheduling cron occurrence failed")
	}
}

// Cancel stops the loop and cancels the pending occurrence, if any.
// Cancel is idempotent.
func (ct *CronTask) Cancel() {
	ct.mu.Lock()
	if ct.cancelled {
		ct.mu.Unlock()
		return
	}
	ct.cancelled = true
	current := ct.current
	ct.mu.Unlock()

	if current != nil {
		current.Cancel()
	}
}
