package domain

import "time"

// TaskStatus represents the current lifecycle state of a task.
//
// It is used to track and manage the transitions of scheduled tasks.
// Possible values include:
// - Idle:       The task has been created but not yet scheduled.
// - Scheduling: A schedule request is active; the backend has not invoked the task yet.
// - Running:    The task is executing, or waiting between repetitions.
// - Complete:   The task reached its terminal state through normal execution.
// - Cancelled:  The task was cancelled before producing a final output.
type TaskStatus string

const (
	// Idle indicates the task exists but no schedule request has been made.
	Idle TaskStatus = "idle"

	// Scheduling indicates a schedule request has been accepted and the
	// backend will invoke the task after its configured delay.
	Scheduling TaskStatus = "scheduling"

	// Running indicates the task has been invoked at least once and is
	// either executing or parked between repetitions.
	Running TaskStatus = "running"

	// Complete indicates the task reached terminal state with a final output.
	// The last result is immutable from this point on.
	Complete TaskStatus = "complete"

	// Cancelled indicates the task was forced into terminal state by Cancel.
	// The last result is whatever was recorded before cancellation.
	Cancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is one of the two terminal states.
func (s TaskStatus) Terminal() bool {
	return s == Complete || s == Cancelled
}

// TaskState is a lightweight snapshot of a task's execution used for data transfer.
// It provides a thread-safe way to expose task state without direct access to
// the internal structure.
type TaskState struct {
	// TaskID is the unique identifier of the task whose state is represented.
	TaskID string

	// StartAt indicates when the task's first invocation began.
	// It is zero if the task was never invoked.
	StartAt time.Time

	// EndAt marks when the task reached terminal state.
	EndAt time.Time

	// Status is the lifecycle state at the time the snapshot was taken.
	Status TaskStatus

	// Runs is the number of completed execution cycles.
	Runs int

	// Err holds the last work fault routed through the exception policy, if any.
	Err error
}

// Observer collects execution metrics and surfaced faults from tasks.
//
// Implementations can persist metrics in various ways, such as in-memory
// storage for debugging, structured logging, or external monitoring systems.
type Observer interface {
	// SaveMetrics stores the terminal snapshot of a task's execution.
	SaveMetrics(dto TaskState)

	// CallbackFault records a panic recovered from a completion callback.
	// Callback faults never propagate into the task's state machine; this
	// hook is the only place they become visible.
	CallbackFault(taskID string, recovered any)
}
