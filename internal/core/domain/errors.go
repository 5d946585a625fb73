package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSwapNotFound means no swap with the given payment hash is tracked.
	ErrSwapNotFound = errors.New("swap not found")

	// ErrPrecondition means a lifecycle guard rejected the operation
	// (e.g. claiming a swap that was never committed). Not retried.
	ErrPrecondition = errors.New("precondition violated")

	// ErrProofMismatch means a merkle proof did not reproduce the
	// committed root. Indicates fraud or relay corruption; never retried
	// as if it could succeed.
	ErrProofMismatch = errors.New("merkle proof mismatch")
)

// TransientError wraps a network or RPC failure that is safe to retry with
// backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err (or anything it wraps) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
