package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNilFn     = errors.New("task function is empty")
	ErrWrongTime = errors.New("wrong time")
)

var (
	ErrNoScheduler  = errors.New("no scheduler configured")
	ErrJoinTimeout  = errors.New("join timed out")
	ErrTaskPanicked = errors.New("task panicked")
)

var (
	ErrNoStage = errors.New("no stage attached")
)

func New(err error, str string) error {
	return fmt.Errorf("%w: %s", err, str)
}
