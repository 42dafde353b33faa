// Package apperrors implements the error taxonomy of the orchestration
// core (§7): typed wrapper structs with a Message/Err pair, an Error()/
// Unwrap() pair, and classification predicates, in the same shape as the
// teacher's internal/errors/types.go (TransientError/PermanentError/
// DegradedError) but with names matching this domain's six error kinds.
package apperrors

import "fmt"

// ValidationError: malformed request or missing context input; 4xx to the
// caller. Does not create a Task if raised before creation.
type ValidationError struct {
	Err     error
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("validation error: %v", e.Err)
	}
	return "validation error"
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(err error, message string) *ValidationError {
	return &ValidationError{Err: err, Message: message}
}

// NotFoundError: task id, service name, step name, or handler type
// unknown; 404 to the caller.
type NotFoundError struct {
	Err     error
	Message string
	Kind    string // "task", "service", "step", "handler"
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return "not found"
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func NewNotFoundError(kind, message string) *NotFoundError {
	return &NotFoundError{Kind: kind, Message: message}
}

// WorkerError: any exception raised from inside a step or background
// worker; recorded in Task.Error/Task.Message, task becomes failed.
// Transient marks whether the failure is worth retrying (§12.5).
type WorkerError struct {
	Err       error
	Message   string
	Transient bool
}

func (e *WorkerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "worker error"
}

func (e *WorkerError) Unwrap() error { return e.Err }

func NewWorkerError(err error, message string, transient bool) *WorkerError {
	return &WorkerError{Err: err, Message: message, Transient: transient}
}

// CancellationError is a WorkerError subtype signaling cooperative stop;
// the task becomes cancelled, not failed.
type CancellationError struct {
	*WorkerError
}

func NewCancellationError(message string) *CancellationError {
	if message == "" {
		message = "cancelled"
	}
	return &CancellationError{WorkerError: &WorkerError{Message: message}}
}

// PersistenceError: store read/write failure. The offending operation
// fails atomically; no cache mutation, no event emission follows it.
type PersistenceError struct {
	Err     error
	Message string
}

func (e *PersistenceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("persistence error: %v", e.Err)
	}
	return "persistence error"
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func NewPersistenceError(err error, message string) *PersistenceError {
	return &PersistenceError{Err: err, Message: message}
}

// NotifierError: send to a particular observer failed; handled internally
// by pruning the observer. Exported chiefly so callers can log it; it never
// propagates out of the Notifier except from send_snapshot (§4.2).
type NotifierError struct {
	Err     error
	Message string
}

func (e *NotifierError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("notifier error: %v", e.Err)
	}
	return "notifier error"
}

func (e *NotifierError) Unwrap() error { return e.Err }

func NewNotifierError(err error, message string) *NotifierError {
	return &NotifierError{Err: err, Message: message}
}

// Classification helpers, mirroring the teacher's IsTransient/IsPermanent
// style (errors.As against each known wrapper type).

func IsValidation(err error) bool {
	var e *ValidationError
	return asError(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return asError(err, &e)
}

func IsCancellation(err error) bool {
	var e *CancellationError
	return asError(err, &e)
}

func IsWorker(err error) bool {
	var e *WorkerError
	return asError(err, &e)
}

func IsPersistence(err error) bool {
	var e *PersistenceError
	return asError(err, &e)
}

func IsRetryable(err error) bool {
	var e *WorkerError
	if asError(err, &e) {
		return e.Transient
	}
	return false
}
