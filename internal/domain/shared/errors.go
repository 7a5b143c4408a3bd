package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain errors into the categories the core
// distinguishes for retry and surfacing decisions.
type ErrorKind string

const (
	// KindInvalidInput indicates a malformed or out-of-range payload; returned to caller, not retried
	KindInvalidInput ErrorKind = "INVALID_INPUT"

	// KindNotFound indicates a shipment/stop/reroute is absent
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindStateConflict indicates a command incompatible with current state
	KindStateConflict ErrorKind = "STATE_CONFLICT"

	// KindConflict indicates an optimistic-concurrency violation; caller re-reads and retries
	KindConflict ErrorKind = "CONFLICT"

	// KindTransient indicates a temporary dependency failure; retried with bounded backoff
	KindTransient ErrorKind = "TRANSIENT"

	// KindTimeout indicates internal work exceeded its deadline
	KindTimeout ErrorKind = "TIMEOUT"

	// KindDeadlineExceeded indicates the caller's deadline elapsed before admission
	KindDeadlineExceeded ErrorKind = "DEADLINE_EXCEEDED"

	// KindOverload indicates full queues or lagging subscribers
	KindOverload ErrorKind = "OVERLOAD"

	// KindServiceUnavailable indicates a dependency stayed down after retries
	KindServiceUnavailable ErrorKind = "SERVICE_UNAVAILABLE"

	// KindRoutingUnavailable indicates both routing providers failed
	KindRoutingUnavailable ErrorKind = "ROUTING_UNAVAILABLE"
)

// DomainError is the base error type for all domain errors
type DomainError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

// NewDomainError creates a domain error of the given kind
func NewDomainError(kind ErrorKind, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

// WrapDomainError creates a domain error of the given kind wrapping a cause
func WrapDomainError(kind ErrorKind, message string, cause error) *DomainError {
	return &DomainError{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the error kind from an error chain.
// Unclassified errors report as TRANSIENT so callers default to retrying.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}

// IsKind reports whether any error in the chain carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// IsRetryable reports whether the error should be retried with backoff
func IsRetryable(err error) bool {
	kind := KindOf(err)
	return kind == KindTransient || kind == KindConflict || kind == KindTimeout
}

// ValidationError carries the offending field for payload validation failures
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
