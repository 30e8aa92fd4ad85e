package adapter

import (
	"errors"
	"fmt"
)

// ErrorKind classifies probe failures for the runner.
type ErrorKind string

const (
	// Transient covers timeouts, 5xx responses and connection resets; the
	// run fails but the next scheduled tick retries.
	Transient ErrorKind = "transient"
	// Permanent covers misconfiguration and incompatible upstream schemas;
	// surfaced as a failed run needing operator attention.
	Permanent ErrorKind = "permanent"
)

// ProbeError wraps a probe failure with its kind.
type ProbeError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe failed (%s): %v", e.Kind, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a retryable probe failure.
func NewTransientError(err error) error {
	return &ProbeError{Kind: Transient, Err: err}
}

// NewPermanentError wraps err as a non-retryable probe failure.
func NewPermanentError(err error) error {
	return &ProbeError{Kind: Permanent, Err: err}
}

// KindOf extracts the error kind from err, defaulting to Transient so an
// unclassified failure is retried rather than escalated.
func KindOf(err error) ErrorKind {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Transient
}
