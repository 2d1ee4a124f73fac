// Package result provides a tagged union representing a computation that
// either succeeded (Ok) or failed (Err).
//
// It is particularly useful for repeating tasks: the task core treats an Ok
// result as the signal to stop repeating, while an Err result keeps the
// repetition going. This lets "poll until done" tasks express completion
// purely through their return value.
package result

import "fmt"

// Result holds exactly one of a success value of type R or an error value of
// type E. The zero value is an Err carrying E's zero value.
type Result[R, E any] struct {
	ok  bool
	val R
	err E
}

// Ok creates a successful result.
func Ok[R, E any](value R) Result[R, E] {
	return Result[R, E]{ok: true, val: value}
}

// Err creates an error result.
func Err[R, E any](err E) Result[R, E] {
	return Result[R, E]{err: err}
}

// IsOk reports whether the result is the Ok variant.
func (r Result[R, E]) IsOk() bool { return r.ok }

// IsErr reports whether the result is the Err variant.
func (r Result[R, E]) IsErr() bool { return !r.ok }

// Unwrap returns the success value.
//
// Calling Unwrap on an Err is a programming error and panics.
func (r Result[R, E]) Unwrap() R {
	if !r.ok {
		panic(fmt.Sprintf("result: Unwrap called on Err(%v)", r.err))
	}
	return r.val
}

// UnwrapErr returns the error value.
//
// Calling UnwrapErr on an Ok is a programming error and panics.
func (r Result[R, E]) UnwrapErr() E {
	if r.ok {
		panic(fmt.Sprintf("result: UnwrapErr called on Ok(%v)", r.val))
	}
	return r.err
}

// UnwrapOr returns the success value, or def if the result is an Err.
func (r Result[R, E]) UnwrapOr(def R) R {
	if !r.ok {
		return def
	}
	return r.val
}

func (r Result[R, E]) String() string {
	if r.ok {
		return fmt.Sprintf("Ok(%v)", r.val)
	}
	return fmt.Sprintf("Err(%v)", r.err)
}

// Map transforms the success value, passing an Err through unchanged.
//
// Map is a package function rather than a method because Go methods cannot
// introduce additional type parameters.
func Map[R, E, R2 any](r Result[R, E], fn func(R) R2) Result[R2, E] {
	if !r.ok {
		return Err[R2, E](r.err)
	}
	return Ok[R2, E](fn(r.val))
}

// MapErr transforms the error value, passing an Ok through unchanged.
func MapErr[R, E, E2 any](r Result[R, E], fn func(E) E2) Result[R, E2] {
	if r.ok {
		return Ok[R, E2](r.val)
	}
	return Err[R, E2](fn(r.err))
}

// AndThen chains a computation onto the success value. An Err short-circuits.
func AndThen[R, E, R2 any](r Result[R, E], fn func(R) Result[R2, E]) Result[R2, E] {
	if !r.ok {
		return Err[R2, E](r.err)
	}
	return fn(r.val)
}

// Match reduces the result to a single value by applying exactly one of the
// two supplied functions.
func Match[R, E, T any](r Result[R, E], onOk func(R) T, onErr func(E) T) T {
	if r.ok {
		return onOk(r.val)
	}
	return onErr(r.err)
}
