// Package routines provides a small, embeddable task-scheduling core: a unit
// of deferred, possibly-repeating work that can be delayed, repeated at an
// interval, chained into a pipeline of dependent stages, cancelled, and
// awaited synchronously.
//
// Features:
//   - Generic Task[I, O] with a compare-and-set lifecycle state machine,
//     idempotent scheduling, blocking and timed joins, and completion
//     callbacks.
//   - Pluggable Scheduler backends behind a single-method contract; the
//     default backend parks one lightweight worker per scheduled unit.
//   - Pluggable exception policies (log-and-continue, log-and-stop, carry)
//     deciding what happens when a work function fails.
//   - Fluent pipelines wiring each stage's output into the next stage's
//     input through single-value promises.
//   - A cron occurrence engine expanding field specifications into concrete
//     execution instants, consumed by a recurring calendar task wrapper.
//   - Structured logging via zerolog and a pluggable Observer collecting
//     terminal task snapshots.
//
// Example usage:
//
//	svc := routines.Default()
//
//	task, _ := routines.NewTask(routines.TaskConfig[string, int]{
//		Input: "hello",
//		Fn: func(in string) (int, error) {
//			return len(in), nil
//		},
//	})
//
//	svc.Schedule(task)
//	n := task.Join() // 5
package routines

import (
	"time"

	"github.com/rs/zerolog"

	"routines/internal/domain"
	"routines/monitoring"
	"routines/sched"
)

// TaskStatus represents the current lifecycle state of a task.
//
// Possible statuses:
//   - Idle
//   - Scheduling
//   - Running
//   - Complete
//   - Cancelled
type TaskStatus = domain.TaskStatus

const (
	Idle       = domain.Idle
	Scheduling = domain.Scheduling
	Running    = domain.Running
	Complete   = domain.Complete
	Cancelled  = domain.Cancelled
)

// TaskState is a snapshot of a task's execution: timestamps, run count,
// final status, and the last work fault. Snapshots of terminal tasks are
// delivered to the configured Observer.
type TaskState = domain.TaskState

// Observer collects terminal task snapshots and surfaced callback faults.
//
// The default is an in-memory implementation suitable for debugging and
// tests; replace it to forward metrics to dashboards or time-series stores.
type Observer = domain.Observer

// Config carries the ambient dependencies shared by everything a Service
// schedules.
//
// Parameters:
//   - Scheduler: Backend executing scheduled work. Defaults to the
//     host-independent sched.Async backend.
//   - Logger: Structured logger. Defaults to a no-op logger.
//   - Observer: Metrics sink. Defaults to monitoring.NewMemory().
type Config struct {
	Scheduler sched.Scheduler
	Logger    *zerolog.Logger
	Observer  Observer
}

// Service orchestrates task scheduling: it injects ambient dependencies
// into tasks, starts pipelines, and runs recurring calendar tasks.
type Service struct {
	cfg Config
	log zerolog.Logger
}

// New creates a Service, filling unset configuration with defaults.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = sched.NewAsync(cfg.Logger)
	}
	if cfg.Observer == nil {
		cfg.Observer = monitoring.NewMemory()
	}
	return &Service{cfg: cfg, log: *cfg.Logger}
}

// Default creates a Service with the default backend, logger, and observer.
func Default() *Service {
	return New(Config{})
}

// Schedule requests execution of the task anchored at the current instant.
// Tasks lacking a scheduler, logger, or observer inherit the service's.
func (s *Service) Schedule(t Schedulable) (sched.Token, error) {
	return s.ScheduleAt(t, time.Now())
}

// ScheduleAt requests execution of the task anchored at the given instant.
func (s *Service) ScheduleAt(t Schedulable, at time.Time) (sched.Token, error) {
	t.adopt(s.cfg)
	return t.ScheduleAt(at)
}

// Observer returns the configured metrics sink.
func (s *Service) Observer() Observer {
	return s.cfg.Observer
}
