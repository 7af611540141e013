package orders

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a broker error. Processors and the controller branch
// on the kind; the message travels with the order as its fault message.
type ErrorKind string

const (
	// KindNotFound indicates an absent order or cloud instance.
	KindNotFound ErrorKind = "not_found"

	// KindUnexpected indicates an internal-contract violation: a nil order,
	// a duplicate order id, a state with no registered list. Never caused by
	// user input.
	KindUnexpected ErrorKind = "unexpected"

	// KindDependencyDetected indicates a delete blocked by live dependents.
	KindDependencyDetected ErrorKind = "dependency_detected"

	// KindUnavailableProvider indicates transient connectivity loss to a
	// cloud or to a federation peer. Retried indefinitely.
	KindUnavailableProvider ErrorKind = "unavailable_provider"

	// KindProviderFailure indicates a definitive rejection or failure
	// reported by a cloud plugin.
	KindProviderFailure ErrorKind = "provider_failure"

	// KindInvalidParameter indicates a malformed request reaching the core,
	// e.g. an unsupported resource type for an allocation query.
	KindInvalidParameter ErrorKind = "invalid_parameter"
)

// Error is the classified error type used throughout the broker.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind

	// Message is the human-readable detail. For provider-side failures it
	// is recorded on the order as the fault message.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two broker errors match when
// their kinds match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewUnexpectedError creates an internal-contract-violation error.
func NewUnexpectedError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnexpected, Message: fmt.Sprintf(format, args...)}
}

// NewDependencyDetectedError creates a delete-blocked-by-dependents error.
func NewDependencyDetectedError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindDependencyDetected, Message: fmt.Sprintf(format, args...)}
}

// NewUnavailableProviderError creates a transient-connectivity error.
func NewUnavailableProviderError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnavailableProvider, Message: fmt.Sprintf(format, args...)}
}

// NewProviderFailureError creates a definitive provider-failure error.
func NewProviderFailureError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindProviderFailure, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidParameterError creates a malformed-request error.
func NewInvalidParameterError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidParameter, Message: fmt.Sprintf(format, args...)}
}

// WrapProviderFailure wraps an arbitrary plugin error as a provider failure,
// preserving the chain.
func WrapProviderFailure(message string, err error) *Error {
	return &Error{Kind: KindProviderFailure, Message: message, Err: err}
}

// KindOf returns the kind of a broker error, or KindProviderFailure for any
// other non-nil error (unclassified plugin errors are provider failures).
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProviderFailure
}

// IsNotFound reports whether err is classified as not-found.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// IsUnexpected reports whether err is classified as an internal-contract
// violation.
func IsUnexpected(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindUnexpected
}

// IsDependencyDetected reports whether err is a delete-blocked error.
func IsDependencyDetected(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindDependencyDetected
}

// IsUnavailableProvider reports whether err is a transient connectivity
// error.
func IsUnavailableProvider(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindUnavailableProvider
}

// IsInvalidParameter reports whether err is a malformed-request error.
func IsInvalidParameter(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindInvalidParameter
}
