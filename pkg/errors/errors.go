// Package errors defines the sentinel errors shared by the word index and
// maps them to process exit codes.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration     = errors.New("invalid configuration")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrProtocolViolation = errors.New("termination protocol violated")
	ErrSinkUnavailable   = errors.New("sink unavailable")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
)

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

type AppError struct {
	Err      error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, exitCode int, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		ExitCode: exitCode,
	}
}

func Newf(sentinel error, exitCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: exitCode,
	}
}

// Configf is shorthand for a configuration AppError.
func Configf(format string, args ...any) *AppError {
	return Newf(ErrConfiguration, ExitFailure, format, args...)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return ExitUsage
	default:
		return ExitFailure
	}
}
