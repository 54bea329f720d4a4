package lifecycle

import (
	"errors"
	"fmt"
)

// OpenErrorKind classifies why the live store could not be used.
type OpenErrorKind int

const (
	// OpenFailure: the file is corrupt, of an incompatible format, or
	// unreadable. Recovered with an in-memory fallback.
	OpenFailure OpenErrorKind = iota

	// StepFailed: a migration step failed and was rolled back.
	// Recovered with an in-memory fallback.
	StepFailed

	// VersionRegression: the store was written by a newer binary. Fatal.
	VersionRegression
)

func (k OpenErrorKind) String() string {
	switch k {
	case OpenFailure:
		return "open_failure"
	case StepFailed:
		return "step_failed"
	case VersionRegression:
		return "version_regression"
	default:
		return fmt.Sprintf("OpenErrorKind(%d)", int(k))
	}
}

// OpenError describes a live store that could not be opened or migrated.
type OpenError struct {
	Kind OpenErrorKind
	Path string
	Err  error
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpenError) Unwrap() error {
	return e.Err
}

// Message is the human-readable text handed to the FailureObserver.
func (e *OpenError) Message() string {
	switch e.Kind {
	case StepFailed:
		return "The data store could not be upgraded to this version."
	case VersionRegression:
		return "The data store was created by a newer version of this application."
	default:
		return "The data store could not be opened."
	}
}

// IsFatal reports whether the caller should stop rather than continue on a
// fallback store.
func (e *OpenError) IsFatal() bool {
	return e.Kind == VersionRegression
}

// ErrNotOpen is returned by operations that need the live store before it
// has been opened.
var ErrNotOpen = errors.New("live store is not open")

// ErrDegraded is returned by operations that need a durable store while the
// manager is running on its in-memory fallback.
var ErrDegraded = errors.New("live store is degraded to memory")
