// Package errs defines the small error taxonomy shared by every component.
// Each kind maps to exactly one HTTP status and response shape in the
// dispatcher; components return these instead of bare errors so the
// dispatcher never has to guess how to render a failure.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the sum type of error categories the dispatcher understands.
type Kind int

const (
	// Internal is the zero value so an unclassified error defaults safely.
	Internal Kind = iota
	Validation
	AuthRequired
	AuthForbidden
	NotFound
	RemoteUnavailable
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case AuthRequired:
		return "auth_required"
	case AuthForbidden:
		return "auth_forbidden"
	case NotFound:
		return "not_found"
	case RemoteUnavailable:
		return "remote_unavailable"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error wraps a Kind with a message and an optional retryable flag.
type Error struct {
	Kind          Kind
	Message       string
	Retryable     bool
	Violations    []string // for Validation: human-readable schema violations
	CorrelationID string   // for Internal: correlation id surfaced to the caller
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// As reports whether target is an *Error and populates it; used by the
// dispatcher via errors.As to recover the Kind from a wrapped error chain.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

func newErr(k Kind, retryable bool, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Retryable: retryable}
}

func NewValidation(violations []string) *Error {
	return &Error{Kind: Validation, Message: "validation failed", Violations: violations}
}

func NewAuthRequired(skill string) *Error {
	return newErr(AuthRequired, false, "authentication required for skill %q", skill)
}

func NewAuthForbidden(skill string) *Error {
	return newErr(AuthForbidden, false, "caller not permitted to execute skill %q", skill)
}

func NewNotFoundSkill(id string) *Error {
	return newErr(NotFound, false, "unknown skill %q", id)
}

func NewNotFoundRepo(repo string) *Error {
	return newErr(NotFound, false, "repository not tracked: %s", repo)
}

func NewRemoteUnavailable(cause error) *Error {
	return &Error{Kind: RemoteUnavailable, Message: "remote knowledge base unavailable", Retryable: true, cause: cause}
}

func NewConflict() *Error {
	return &Error{Kind: Conflict, Message: "conflict", Retryable: true}
}

func NewInternal(correlationID string, cause error) *Error {
	return &Error{Kind: Internal, Message: "internal error", cause: cause, CorrelationID: correlationID}
}
