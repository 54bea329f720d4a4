package migrate

import (
	"errors"
	"fmt"
)

// ErrVersionRegression matches any VersionRegressionError via errors.Is.
var ErrVersionRegression = errors.New("stored schema version is newer than supported")

// ErrInvalidStep is returned when registering a malformed step.
var ErrInvalidStep = errors.New("invalid migration step")

// VersionRegressionError reports a store written by a newer binary.
// No transform is attempted and the stored version is left as it is.
type VersionRegressionError struct {
	// Stored is the version persisted in the store.
	Stored int

	// Target is the version this binary migrates to.
	Target int
}

// Error implements the error interface.
func (e *VersionRegressionError) Error() string {
	return fmt.Sprintf("%s: stored=%d target=%d", ErrVersionRegression, e.Stored, e.Target)
}

// Is reports whether target is ErrVersionRegression.
func (e *VersionRegressionError) Is(target error) bool {
	return target == ErrVersionRegression
}

// StepFailedError reports the step whose transform failed. The migration
// transaction has been rolled back when this error is returned.
type StepFailedError struct {
	// Index is the step's position in registry order.
	Index int

	// Name is the step's registered name.
	Name string

	// Gate is the step's version gate.
	Gate int

	// Cause is the transform's error.
	Cause error
}

// Error implements the error interface.
func (e *StepFailedError) Error() string {
	return fmt.Sprintf("migration step %d (%s, gate %d) failed: %v", e.Index, e.Name, e.Gate, e.Cause)
}

// Unwrap returns the transform's error.
func (e *StepFailedError) Unwrap() error {
	return e.Cause
}

// IsVersionRegression returns true if err is or wraps a VersionRegressionError.
func IsVersionRegression(err error) bool {
	return errors.Is(err, ErrVersionRegression)
}

// IsStepFailed returns true if err is or wraps a StepFailedError.
// Uses errors.As to handle wrapped errors.
func IsStepFailed(err error) bool {
	var se *StepFailedError
	return errors.As(err, &se)
}
