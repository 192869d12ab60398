package repository

import (
	"errors"
	"fmt"
)

// ErrAuthRequired is returned when the remote challenged for a
// credential but none is configured for the repository.
var ErrAuthRequired = errors.New("authentication required")

// ErrAuthUnsupported is returned when a credential is configured but
// matches none of the mechanisms the remote currently accepts.
var ErrAuthUnsupported = errors.New("unsupported authentication")

// ErrorKind classifies the cause of a failed update.
type ErrorKind int

const (
	// ErrorKindGit is a failure in the version-control layer,
	// including authentication failures raised during fetch
	// negotiation.
	ErrorKindGit ErrorKind = iota
	// ErrorKindIO is a local filesystem failure.
	ErrorKindIO
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindGit:
		return "git"
	case ErrorKindIO:
		return "io"
	default:
		return "unknown"
	}
}

// UpdateError is the typed failure surfaced by Repository.Update.
// Every update failure is either a git-layer or a local I/O failure,
// no other error kinds originate from the update sequence.
type UpdateError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

func newGitError(op string, err error) *UpdateError {
	return &UpdateError{Kind: ErrorKindGit, Op: op, Err: err}
}

func newIOError(op string, err error) *UpdateError {
	return &UpdateError{Kind: ErrorKindIO, Op: op, Err: err}
}

// IsGitError reports whether err is an update failure in the
// version-control layer.
func IsGitError(err error) bool {
	var uErr *UpdateError
	return errors.As(err, &uErr) && uErr.Kind == ErrorKindGit
}

// IsIOError reports whether err is an update failure in the local
// filesystem.
func IsIOError(err error) bool {
	var uErr *UpdateError
	return errors.As(err, &uErr) && uErr.Kind == ErrorKindIO
}
