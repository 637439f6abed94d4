package store

import (
	"errors"
	"fmt"
)

// ErrTransient marks a failure of shared storage (unreachable, timed out, lost a
// compare-and-set race too many times). It is the only retryable failure class; the
// caller is expected to resubmit the identical request.
var ErrTransient = errors.New("transient store error")

// Transient wraps err so that errors.Is(err, ErrTransient) holds. Nil stays nil and
// errors that are already transient are returned as is.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
