// Package errs holds the error taxonomy shared by the order source, the poller
// and the effect flows.
//
// Every error carries one of the sentinel kinds below. Callers branch on the
// kind with errors.Is and never on message text:
//
//	ErrTransient        network / 5xx / rate limit, retried on the next poll tick
//	ErrNotFound         the order does not exist, polling stops
//	ErrUnauthorized     credentials rejected, polling stops
//	ErrValidationFailed the backend rejected the request: a mutation keeps its
//	                    dialog open, a fetch stops polling
//	ErrConflict         the mutation clashes with existing state (duplicate review)
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrTransient        = errors.New("transient failure")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
)

const genericMessage = "Something went wrong. Please try again."

// Error is a classified failure. Unwrap returns the kind so errors.Is works
// against the sentinels; Cause keeps the underlying error for logs.
type Error struct {
	Kind    error
	Field   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Field)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (cause: %v)", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func Transient(cause error) *Error {
	return &Error{Kind: ErrTransient, Cause: cause}
}

func NotFound(what, id string) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("%s %q", what, id)}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: ErrUnauthorized, Message: message}
}

func ValidationFailed(field, message string) *Error {
	return &Error{Kind: ErrValidationFailed, Field: field, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: ErrConflict, Message: message}
}

// IsFatal reports the kinds that end a session: the order is gone or access
// was revoked.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized)
}

// IsTransient treats unclassified errors as transient: a poll loop must never
// give up because of an error it does not recognise.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	return !IsFatal(err) && !errors.Is(err, ErrValidationFailed) && !errors.Is(err, ErrConflict)
}

// UserMessage returns the text shown to the customer. Validation and conflict
// messages come from the server (or the local validator) and are shown
// verbatim; everything else maps to a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		if errors.Is(e, ErrValidationFailed) || errors.Is(e, ErrConflict) {
			return e.Message
		}
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "This order could not be found."
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	}
	return genericMessage
}
