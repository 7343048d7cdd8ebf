// Package apperr defines the error kinds surfaced by the service boundaries.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP and process boundaries.
type Kind string

const (
	Validation      Kind = "VALIDATION"
	TokenGeneration Kind = "TOKEN_GENERATION"
	Agent           Kind = "AGENT"
	Unhandled       Kind = "UNHANDLED"
)

// Error carries a kind, a client facing message and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// TokenError reports a failure to produce an access token.
func TokenError(cause error) *Error {
	return Wrap(TokenGeneration, cause, "Could not generate LiveKit token: %v", cause)
}

// AgentError reports a failure to start or run a voice agent session.
func AgentError(cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &Error{Kind: Agent, Message: msg, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or Unhandled.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unhandled
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
