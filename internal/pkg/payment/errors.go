package payment

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide how much to reveal and
// which status to answer with.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindConfiguration  Kind = "configuration_error"
	KindAuthentication Kind = "authentication_error"
	KindConflict       Kind = "conflict"
	KindNotFound       Kind = "not_found"
	KindUpstream       Kind = "upstream_error"
	KindInternal       Kind = "internal_error"
)

// Error is the error type returned by every Service operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func validationError(format string, args ...any) *Error {
	return newError(KindValidation, nil, format, args...)
}

func configurationError(format string, args ...any) *Error {
	return newError(KindConfiguration, nil, format, args...)
}

func authenticationError(format string, args ...any) *Error {
	return newError(KindAuthentication, nil, format, args...)
}

func conflictError(format string, args ...any) *Error {
	return newError(KindConflict, nil, format, args...)
}

func notFoundError(format string, args ...any) *Error {
	return newError(KindNotFound, nil, format, args...)
}

func upstreamError(err error, format string, args ...any) *Error {
	return newError(KindUpstream, err, format, args...)
}

func internalError(err error, format string, args ...any) *Error {
	return newError(KindInternal, err, format, args...)
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the message that may be shown to a caller. Internal
// failures never expose their detail.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}
