// Package errors provides domain-specific error types for sever.
//
// These types carry structured context (source, target, termination
// tier, retryability) that lets the retry and orchestration layers
// decide how to handle failures without string matching.
package errors

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	// ErrRunInProgress is returned when a disconnect run is rejected
	// because another full run holds the single-flight guard.
	ErrRunInProgress = errors.New("disconnect run already in progress")

	// ErrQueueClosed is returned by Enqueue after the batch queue has
	// been shut down.
	ErrQueueClosed = errors.New("batch queue is closed")

	// ErrCancelled resolves pending batch operations when the queue
	// shuts down before processing them.
	ErrCancelled = errors.New("operation cancelled")

	// ErrBreakerOpen is returned when a source's enumeration circuit
	// breaker is open and the call was short-circuited.
	ErrBreakerOpen = errors.New("circuit breaker is open")

	// ErrNotSupported is returned by platform adapters on operating
	// systems they do not cover.
	ErrNotSupported = errors.New("not supported on this platform")
)

// ── Structured error types ───────────────────────────────────────────

// EnumerationError means a connection source failed to list its
// connections.  The caller is expected to fall back to a minimal
// known-safe result rather than propagate it.
type EnumerationError struct {
	Source string // "sessions", "clients"
	Err    error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerate %s: %v", e.Source, e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// TerminationError represents a failed attempt to terminate a single
// connection.  Retryable reports whether burning more attempts in the
// current tier can help; non-retryable failures escalate immediately.
type TerminationError struct {
	Kind      string // "session" or "client"
	Target    string // session id or pid
	Tier      string // "logoff", "disconnect", "force", "terminate", "kill"
	Err       error
	Retryable bool
}

func (e *TerminationError) Error() string {
	s := fmt.Sprintf("%s %s %s: %v", e.Tier, e.Kind, e.Target, e.Err)
	if !e.Retryable {
		s += " (non-retryable)"
	}
	return s
}

func (e *TerminationError) Unwrap() error { return e.Err }

// NetworkError means the network collaborator failed.  It is recorded
// in the aggregate result, never fatal to the run.
type NetworkError struct {
	Op  string // "prepare", "disable"
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// OrchestrationError wraps an unexpected failure (including a
// recovered panic) caught at the orchestrator boundary.
type OrchestrationError struct {
	Stage string
	Err   error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestration failed during %s: %v", e.Stage, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

// ── Constructors ─────────────────────────────────────────────────────

// WrapEnumeration creates an EnumerationError.
func WrapEnumeration(source string, err error) *EnumerationError {
	return &EnumerationError{Source: source, Err: err}
}

// WrapTermination creates a TerminationError, classifying
// retryability from the underlying error.
func WrapTermination(kind, target, tier string, err error) *TerminationError {
	return &TerminationError{
		Kind:      kind,
		Target:    target,
		Tier:      tier,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapNetwork creates a NetworkError.
func WrapNetwork(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying within its current
// termination tier.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TerminationError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return classifyRetryable(err)
}

// classifyRetryable recognises platform error codes for which retrying
// is futile: access denied, privilege not held, invalid parameter, and
// target-already-gone.  Everything else is treated as transient.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EPERM, syscall.EACCES, syscall.EINVAL, syscall.ESRCH:
			return false
		}
	}
	return true
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use sever/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
