package runner

import (
	"errors"
	"fmt"
)

// ExitError is returned by Execute when the command ran but did not exit 0.
type ExitError struct {
	Command string
	// Code is the exit status, or -1 when the child was killed by a signal.
	Code int
	// State is the OS description of how the process ended, e.g. "signal: terminated".
	State string
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return fmt.Sprintf("command %q did not exit normally (%s)", e.Command, e.State)
	}
	return fmt.Sprintf("command %q failed with exit code %d", e.Command, e.Code)
}

// ExitCode extracts the child's exit code from err. ok is false when err
// does not carry an ExitError.
func ExitCode(err error) (code int, ok bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
