package processor

import (
	"errors"
	"fmt"
)

// Phase is the chain phase a processor ran in.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// FailureKind classifies an ExecutionError.
type FailureKind string

const (
	// KindFailed means the processor returned an error.
	KindFailed FailureKind = "failed"

	// KindTimeout means the processor exceeded its deadline.
	KindTimeout FailureKind = "timeout"

	// KindCanceled means the caller cancelled the invocation.
	KindCanceled FailureKind = "canceled"

	// KindPanic means the processor panicked.
	KindPanic FailureKind = "panic"
)

// ExecutionError reports a processor invocation that did not produce
// output.
type ExecutionError struct {
	Processor string
	Phase     Phase

	// Subject is the resource URI (pre) or "group:<name>" (post).
	Subject string

	Kind FailureKind
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("processor %s (%s) %s on %s: %v", e.Processor, e.Phase, e.Kind, e.Subject, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecutionError returns true if err is or wraps an ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// IsTimeout returns true if err is or wraps an ExecutionError of kind timeout.
func IsTimeout(err error) bool {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Kind == KindTimeout
	}
	return false
}
