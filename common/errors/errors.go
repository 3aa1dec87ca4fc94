package errors

import "fmt"

// ExitCodeError carries the exit code a process, or the attempt to start one,
// ended with alongside the underlying error.
type ExitCodeError struct {
	code ExitCode
	error
}

func NewError(err error, exitCode ExitCode) *ExitCodeError {
	if err == nil {
		return nil
	}
	return &ExitCodeError{exitCode, err}
}

func (e *ExitCodeError) GetExitCode() ExitCode {
	if e == nil {
		return 0
	}
	return e.code
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit code %d: %v", e.code, e.error)
}

// Cause returns the wrapped error so pkg/errors.Cause can unwrap it.
func (e *ExitCodeError) Cause() error {
	return e.error
}

// GetExitCode returns the exit code of err if it is an *ExitCodeError, or
// GenericFailureExitCode otherwise. A nil err yields 0.
func GetExitCode(err error) ExitCode {
	if err == nil {
		return 0
	}
	if e, ok := err.(*ExitCodeError); ok {
		return e.GetExitCode()
	}
	return GenericFailureExitCode
}
