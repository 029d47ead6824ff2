// Package apperrors defines the error taxonomy shared by the workflow
// services. Domain failures (validation, preconditions, state conflicts,
// authorization, missing entities) are returned as *Error values carrying a
// Kind so the HTTP boundary can render a specific message. Infrastructure
// failures are wrapped with KindInfra and are the only retryable kind.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindPrecondition      Kind = "PRECONDITION_FAILED"
	KindState             Kind = "STATE_ERROR"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindAuthorization     Kind = "FORBIDDEN"
	KindUnauthenticated   Kind = "UNAUTHENTICATED"
	KindNotFound          Kind = "NOT_FOUND"
	KindInfra             Kind = "SERVICE_UNAVAILABLE"
)

// Error is the single error type returned across service boundaries.
type Error struct {
	Kind    Kind
	Message string

	// Populated for state and transition errors.
	State  string
	Action string
	Role   string

	// Field names the offending input for validation errors.
	Field string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindInfra {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the same request unchanged.
func (e *Error) Retryable() bool { return e.Kind == KindInfra }

// Validation reports malformed input.
func Validation(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Precondition reports an action invoked before the state it needs exists.
func Precondition(format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

// State reports an action the current state forbids outside a transition table,
// e.g. deleting evidence while it is under review.
func State(state, action, reason string) *Error {
	return &Error{
		Kind:    KindState,
		State:   state,
		Action:  action,
		Message: fmt.Sprintf("cannot %s while %s: %s", action, state, reason),
	}
}

// InvalidTransition reports a transition missing from a workflow's table.
func InvalidTransition(state, action, role string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		State:   state,
		Action:  action,
		Role:    role,
		Message: fmt.Sprintf("transition %q is not allowed from state %s for role %s", action, state, role),
	}
}

// Forbidden reports a failed role or ownership guard.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated reports a missing or invalid credential.
func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

// NotFound reports an id that does not resolve.
func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// Infra wraps a storage, network or driver failure.
func Infra(op string, err error) *Error {
	return &Error{Kind: KindInfra, Message: op, Err: err}
}

// KindOf returns the Kind of err, or KindInfra for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfra
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// IsDomain reports whether err is a recoverable domain error.
func IsDomain(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind != KindInfra
}
