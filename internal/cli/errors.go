package cli

import (
	"errors"

	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// exitError attaches a process exit code to an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func userError(err error) error { return &exitError{code: exitUserError, err: err} }
func sysError(err error) error  { return &exitError{code: exitSysError, err: err} }

// userErrors are the sentinels caused by bad input rather than a failing
// system.
var userErrors = []error{
	types.ErrInvalidKey,
	types.ErrInvalidOwner,
	types.ErrInvalidFilter,
	types.ErrInvalidData,
	types.ErrNotFound,
	types.ErrUnencodable,
	types.ErrTypeMismatch,
	types.ErrBackendEmpty,
	types.ErrBackendUnknown,
	types.ErrDuplicateKeys,
}

// classify wraps err as a user error when it matches one of userErrors and
// as a system error otherwise. nil stays nil.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return userError(err)
		}
	}
	return sysError(err)
}

// exitCode maps an error returned by the root command to an exit code.
// Errors without a code come from cobra itself (bad flags, wrong argument
// count) and count as user errors.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}
