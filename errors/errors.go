// Package errors provides error handling for mdq.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Structured hints and details for operator-facing messages
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrTransport) {
//	    // retry on next sync pass
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
)

// Sentinel errors for the mdq error taxonomy.
// Use these with errors.Is() for type-safe error checking.
// Wrap them with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested record does not exist locally
	ErrNotFound = New("not found")

	// ErrTransport indicates the scheduler gateway was unreachable or timed
	// out. Transport failures are recorded per job and retried on the next
	// sync pass; they are never fatal to the process.
	ErrTransport = New("scheduler unreachable")

	// ErrSubmissionRejected indicates the scheduler actively refused a job
	// (quota exceeded, bad spec). The job stays in a retryable state.
	ErrSubmissionRejected = New("submission rejected by scheduler")

	// ErrConsistency indicates an operation against a job in an incompatible
	// lifecycle state (re-submitting a submitted job, remote-deleting a job
	// with no remote id). Always a usage error, never retried.
	ErrConsistency = New("inconsistent job state")

	// ErrTimeout indicates a bounded gateway call did not return in time.
	// Treated as a transport failure for the single job in question.
	ErrTimeout = New("operation timed out")
)

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsTransport checks if an error is or wraps ErrTransport or ErrTimeout
func IsTransport(err error) bool {
	return err != nil && IsAny(err, ErrTransport, ErrTimeout)
}

// IsConsistency checks if an error is or wraps ErrConsistency
func IsConsistency(err error) bool {
	return err != nil && Is(err, ErrConsistency)
}

// IsSubmissionRejected checks if an error is or wraps ErrSubmissionRejected
func IsSubmissionRejected(err error) bool {
	return err != nil && Is(err, ErrSubmissionRejected)
}

// NewNotFound creates a not-found error with a formatted message
func NewNotFound(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewConsistency creates a consistency error with a formatted message
func NewConsistency(format string, args ...interface{}) error {
	return Wrap(ErrConsistency, Newf(format, args...).Error())
}
