package cache

import (
	"errors"
	"fmt"
)

// ComputationError reports a compute function that failed while holding a
// key's single-flight slot. Every caller waiting on the slot receives the
// same error; the slot is released, so a later call computes again.
type ComputationError struct {
	Key Key
	Err error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("compute %s: %v", e.Key, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

// IsComputationError returns true if err is or wraps a ComputationError.
func IsComputationError(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}
