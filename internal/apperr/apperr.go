// Package apperr defines the error kinds shared across subsystem boundaries.
// Low-level errors are translated to one of these kinds at the boundary so
// that the HTTP layer and the CLI can map them to status codes uniformly.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates bad caller input.
	ErrValidation = errors.New("validation error")
	// ErrState indicates an operation not allowed from the current phase.
	ErrState = errors.New("state error")
	// ErrNotFound indicates an unknown slug, proposal, or session.
	ErrNotFound = errors.New("not found")
	// ErrStorageUnavailable indicates the embedded store cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrVcs indicates a git operation failed.
	ErrVcs = errors.New("vcs error")
	// ErrBackendUnavailable indicates an optional dependency is missing.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrTimeout indicates a subprocess or request deadline expired.
	ErrTimeout = errors.New("timeout")
	// ErrConflict indicates a uniqueness or locking violation.
	ErrConflict = errors.New("conflict")
	// ErrInternal indicates an unexpected failure.
	ErrInternal = errors.New("internal error")
)

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrValidation, args)...)
}

// Statef wraps ErrState with a formatted reason.
func Statef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrState, args)...)
}

// NotFoundf wraps ErrNotFound with a formatted reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrNotFound, args)...)
}

// Vcsf wraps ErrVcs with a formatted reason.
func Vcsf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrVcs, args)...)
}

// Backendf wraps ErrBackendUnavailable with a formatted reason.
func Backendf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrBackendUnavailable, args)...)
}

// Timeoutf wraps ErrTimeout with a formatted reason.
func Timeoutf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrTimeout, args)...)
}

// Storagef wraps ErrStorageUnavailable with a formatted reason.
func Storagef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrStorageUnavailable, args)...)
}

func prepend(err error, args []any) []any {
	return append([]any{err}, args...)
}

// ExitCode maps an error to the process exit codes surfaced to external
// callers: 0 success, 1 user-correctable, 2 precondition failed, 64 internal.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrValidation), errors.Is(err, ErrVcs), errors.Is(err, ErrNotFound):
		return 1
	case errors.Is(err, ErrState), errors.Is(err, ErrConflict):
		return 2
	default:
		return 64
	}
}
