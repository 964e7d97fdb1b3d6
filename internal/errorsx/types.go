// Package errorsx implements the core's error taxonomy: the fatal,
// structured error kinds the spec requires (InvalidInput,
// CircularDependency, ScopeParseError, SessionFileError, Deadlock,
// NoSession) plus the transient/permanent classification and retry
// primitives used by the Session Store's flush path.
package errorsx

import (
	"errors"
	"fmt"
	"strings"
)

// InvalidInputError is returned when a PRD fails validation or persisted
// data fails schema validation.
type InvalidInputError struct {
	Reason string
	Err    error
}

func (e *InvalidInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid input: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

// NewInvalidInput builds an InvalidInputError.
func NewInvalidInput(reason string, err error) error {
	return &InvalidInputError{Reason: reason, Err: err}
}

// CircularDependencyError is a subkind of InvalidInput describing a cycle
// (or self-dependency) found by the dependency validator.
type CircularDependencyError struct {
	CyclePath   []string
	CycleLength int
	TaskID      string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected (length=%d): %s", e.CycleLength, strings.Join(e.CyclePath, " -> "))
}

// NewCircularDependency builds a CircularDependencyError.
func NewCircularDependency(cyclePath []string, taskID string) error {
	return &CircularDependencyError{CyclePath: cyclePath, CycleLength: len(cyclePath), TaskID: taskID}
}

// ScopeParseError is returned when a scope string cannot be parsed.
type ScopeParseError struct {
	InvalidInput   string
	ExpectedFormat string
}

func (e *ScopeParseError) Error() string {
	return fmt.Sprintf("invalid scope %q: expected %s", e.InvalidInput, e.ExpectedFormat)
}

// NewScopeParseError builds a ScopeParseError.
func NewScopeParseError(input, expected string) error {
	return &ScopeParseError{InvalidInput: input, ExpectedFormat: expected}
}

// SessionFileError wraps a filesystem operation failure with the path,
// operation name, and (when available) the OS error code.
type SessionFileError struct {
	Path      string
	Operation string
	Code      string
	Err       error
}

func (e *SessionFileError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("session file error: %s %s: %s: %v", e.Operation, e.Path, e.Code, e.Err)
	}
	return fmt.Sprintf("session file error: %s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *SessionFileError) Unwrap() error { return e.Err }

// NewSessionFileError builds a SessionFileError, inferring the OS error
// code from err when possible.
func NewSessionFileError(path, operation string, err error) error {
	return &SessionFileError{Path: path, Operation: operation, Code: ErrnoCode(err), Err: err}
}

// DeadlockError is fatal to a Concurrent Executor run: Planned subtasks
// remain but none is runnable.
type DeadlockError struct {
	Blocked map[string][]string // subtask ID -> unmet dependency IDs
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("deadlock: %d subtask(s) blocked", len(e.Blocked))
}

// NewDeadlock builds a DeadlockError.
func NewDeadlock(blocked map[string][]string) error {
	return &DeadlockError{Blocked: blocked}
}

// NoSessionError indicates a mutation or query required an initialized
// session that does not exist. This is a programming error.
type NoSessionError struct {
	Op string
}

func (e *NoSessionError) Error() string {
	return fmt.Sprintf("no active session: %s", e.Op)
}

// NewNoSession builds a NoSessionError.
func NewNoSession(op string) error { return &NoSessionError{Op: op} }

// --- transient/permanent classification, mirroring the teacher's
// internal/shared/errors package (NewTransientError/NewPermanentError,
// IsTransient/IsPermanent) used to decide whether flushUpdates should
// retry a given failure. ---

// ErrorType classifies an error along the transient/permanent/degraded axis.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeTransient
	ErrorTypePermanent
	ErrorTypeDegraded
)

type classifiedError struct {
	errType  ErrorType
	message  string
	fallback string
	err      error
}

func (e *classifiedError) Error() string {
	if e.message != "" {
		return e.message
	}
	if e.err != nil {
		return e.err.Error()
	}
	return "unknown error"
}

func (e *classifiedError) Unwrap() error { return e.err }

// NewTransientError wraps err as retryable with a human-readable message.
func NewTransientError(err error, message string) error {
	return &classifiedError{errType: ErrorTypeTransient, message: message, err: err}
}

// NewPermanentError wraps err as non-retryable with a human-readable message.
func NewPermanentError(err error, message string) error {
	return &classifiedError{errType: ErrorTypePermanent, message: message, err: err}
}

// NewDegradedError wraps err to signal a fallback path should be used.
func NewDegradedError(err error, message, fallback string) error {
	return &classifiedError{errType: ErrorTypeDegraded, message: message, fallback: fallback, err: err}
}

// GetErrorType returns the classification attached to err, if any.
func GetErrorType(err error) ErrorType {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.errType
	}
	return ErrorTypeUnknown
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if GetErrorType(err) == ErrorTypeTransient {
		return true
	}
	if GetErrorType(err) == ErrorTypePermanent {
		return false
	}
	return false
}

// IsPermanent reports whether err is explicitly non-retryable.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return GetErrorType(err) == ErrorTypePermanent
}

// IsDegraded reports whether err signals a fallback path is available.
func IsDegraded(err error) bool {
	if err == nil {
		return false
	}
	return GetErrorType(err) == ErrorTypeDegraded
}
