package routines

import (
	"github.com/rs/zerolog"

	"routines/result"
)

// Strategy is the exception-handling decision made after a work fault.
type Strategy int

const (
	// Continue lets execution proceed: a repeating task keeps repeating at
	// the same interval; a single-shot task completes with the policy's
	// substituted output.
	Continue Strategy = iota

	// StopAll cancels remaining repetitions and the chain; the policy's
	// substituted output becomes the final result.
	StopAll
)

func (s Strategy) String() string {
	switch s {
	case Continue:
		return "continue"
	case StopAll:
		return "stop_all"
	default:
		return "unknown"
	}
}

// Decision pairs a strategy with the output substituted for the failed
// execution cycle.
type Decision[O any] struct {
	Strategy Strategy
	Out      O
}

// Handler decides what happens when a task's work function fails.
//
// Handlers receive the non-generic task view and the work fault, and may
// close over task-local state to implement retry counts, backoff, or
// dead-letter behavior.
type Handler[O any] func(task Info, err error) Decision[O]

// LogAndContinue logs the fault and continues with a zero-value output.
// This is the default policy.
func LogAndContinue[O any](log *zerolog.Logger) Handler[O] {
	return func(task Info, err error) Decision[O] {
		if log != nil {
			log.Error().Err(err).Str("task", task.ID()).Int("runs", task.Runs()).
				Msg("task function failed, continuing")
		}
		var zero O
		return Decision[O]{Strategy: Continue, Out: zero}
	}
}

// LogAndStop logs the fault and stops all remaining repetitions and the
// chain, completing with a zero-value output.
func LogAndStop[O any](log *zerolog.Logger) Handler[O] {
	return func(task Info, err error) Decision[O] {
		if log != nil {
			log.Error().Err(err).Str("task", task.ID()).Int("runs", task.Runs()).
				Msg("task function failed, stopping")
		}
		var zero O
		return Decision[O]{Strategy: StopAll, Out: zero}
	}
}

// Carry converts the work fault into an Err result and continues, letting
// downstream consumers observe the error as a value.
//
// Carry only instantiates for tasks whose output is Result[R, error], so
// applying it to a non-Result task is a compile-time error rather than the
// runtime configuration fault the policy would otherwise have to detect.
func Carry[R any]() Handler[result.Result[R, error]] {
	return func(_ Info, err error) Decision[result.Result[R, error]] {
		return Decision[result.Result[R, error]]{
			Strategy: Continue,
			Out:      result.Err[R, error](err),
		}
	}
}
