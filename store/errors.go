package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a record does not exist. It is a
// permanent failure: retrying cannot change the outcome.
var ErrNotFound = errors.New("gatekit: record not found")

// ErrIteratorDone is returned by Iterator.Next when the result sequence
// is exhausted.
var ErrIteratorDone = errors.New("gatekit: iterator done")

// Class is the failure classification driving retry policy.
type Class int

const (
	// ClassTransient marks failures worth retrying (timeouts, resets,
	// rate limiting, 5xx-equivalent responses).
	ClassTransient Class = iota

	// ClassPermanent marks failures retrying cannot fix (not found,
	// invalid argument, backend-side permission denied).
	ClassPermanent

	// ClassConflict marks optimistic-concurrency violations.
	ClassConflict
)

// String returns the string representation of the class.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// TransientError marks an error as retryable.
type TransientError struct {
	Err error
}

// Error returns the error message.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks an error as not retryable.
type PermanentError struct {
	Err error
}

// Error returns the error message.
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *PermanentError) Unwrap() error { return e.Err }

// ConflictError marks an optimistic-concurrency clash on a versioned put.
type ConflictError struct {
	Err error
}

// Error returns the error message.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConflictError) Unwrap() error { return e.Err }

// UnavailableError is returned once the attempt budget is exhausted on
// transient failures. It is distinct from PermanentError so callers can
// apply circuit breaking or degrade gracefully.
type UnavailableError struct {
	Op       string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Error returns the error message.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable after %d attempts (%s): %v",
		e.Op, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

// Unwrap returns the last transient error observed.
func (e *UnavailableError) Unwrap() error { return e.Err }

// UnknownOutcomeError is returned for a write whose request may have
// been delivered but whose response was lost. The caller must verify
// current state before reapplying; the store never retries these.
type UnknownOutcomeError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *UnknownOutcomeError) Error() string {
	return fmt.Sprintf("%s outcome unknown, verify before reapplying: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *UnknownOutcomeError) Unwrap() error { return e.Err }

// Transient wraps err as a pre-classified transient failure. Backend
// adapters use this to short-circuit classification.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as a pre-classified permanent failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Conflict wraps err as a pre-classified concurrency conflict.
func Conflict(err error) error {
	if err == nil {
		return nil
	}
	return &ConflictError{Err: err}
}

// IsTransient reports whether err classifies as retryable.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ClassTransient
}

// IsPermanent reports whether err classifies as not retryable.
func IsPermanent(err error) bool {
	return err != nil && Classify(err) == ClassPermanent
}

// IsConflict reports whether err classifies as a concurrency conflict.
func IsConflict(err error) bool {
	return err != nil && Classify(err) == ClassConflict
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether err is a terminal retry-budget exhaustion.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// IsUnknownOutcome reports whether err is an ambiguous write outcome.
func IsUnknownOutcome(err error) bool {
	var ue *UnknownOutcomeError
	return errors.As(err, &ue)
}
