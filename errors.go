package routines

import "routines/internal/errs"

// User-facing sentinel errors. Match with errors.Is; the wrapped message
// carries the task or stage detail.
var (
	// ErrNilFn reports a task or stage configured without a work function.
	ErrNilFn = errs.ErrNilFn

	// ErrWrongTime reports a negative delay or interval.
	ErrWrongTime = errs.ErrWrongTime

	// ErrNoScheduler reports a schedule attempt with no backend configured.
	ErrNoScheduler = errs.ErrNoScheduler

	// ErrJoinTimeout reports a timed join whose deadline elapsed before the
	// task reached terminal state.
	ErrJoinTimeout = errs.ErrJoinTimeout

	// ErrTaskPanicked wraps a panic recovered from a work function.
	ErrTaskPanicked = errs.ErrTaskPanicked

	// ErrNoStage reports a join on a pipeline root before any
	// transformation was attached.
	ErrNoStage = errs.ErrNoStage
)
