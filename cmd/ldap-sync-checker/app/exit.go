package app

import (
	"errors"
	"fmt"
)

// Process exit codes
const (
	ExitInSync          = 0
	ExitOutOfSync       = 1
	ExitProviderFailure = 2
	ExitConfigError     = 3
)

// ExitError carries the process exit code of a failed command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCode maps a command error to the process exit code. Errors that are not
// an ExitError come from flag parsing or setup and count as configuration errors.
func exitCode(err error) int {
	if err == nil {
		return ExitInSync
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitConfigError
}

func configError(err error) error {
	return &ExitError{Code: ExitConfigError, Err: err}
}
