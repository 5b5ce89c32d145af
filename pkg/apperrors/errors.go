// Package apperrors defines the error taxonomy shared by the admission layer
// and the billing core. Each Kind maps to exactly one HTTP status; the
// message is the only part ever shown to a client.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindInvalidToken    Kind = "invalid_token"
	KindForbidden       Kind = "forbidden"
	KindBadRequest      Kind = "bad_request"
	KindNotFound        Kind = "not_found"
	KindRateLimited     Kind = "rate_limited"
	KindUpstream        Kind = "upstream_error"
	KindInternal        Kind = "internal_error"
)

var statusByKind = map[Kind]int{
	KindUnauthenticated: http.StatusUnauthorized,
	KindInvalidToken:    http.StatusForbidden,
	KindForbidden:       http.StatusForbidden,
	KindBadRequest:      http.StatusBadRequest,
	KindNotFound:        http.StatusNotFound,
	KindRateLimited:     http.StatusTooManyRequests,
	KindUpstream:        http.StatusBadGateway,
	KindInternal:        http.StatusInternalServerError,
}

// Error is a classified application error. Err holds the underlying cause
// for logging and is never serialized.
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

// StatusCode returns the HTTP status for the error's kind.
func (e *Error) StatusCode() int {
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind carrying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }

func InvalidToken(message string) *Error { return New(KindInvalidToken, message) }

func Forbidden(message string) *Error { return New(KindForbidden, message) }

func BadRequest(message string) *Error { return New(KindBadRequest, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

func RateLimited(message string) *Error { return New(KindRateLimited, message) }

// Upstream reports a failure of an external provider.
func Upstream(message string, cause error) *Error { return Wrap(KindUpstream, message, cause) }

// Internal reports an unexpected failure; the cause stays server-side.
func Internal(message string, cause error) *Error { return Wrap(KindInternal, message, cause) }

// As extracts the classified error from err. Errors outside the taxonomy
// become KindInternal with a generic message.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal server error", err)
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
