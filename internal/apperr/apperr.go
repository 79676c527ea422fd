// Package apperr defines the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation      Code = "validation"
	CodeConflict        Code = "conflict"
	CodeInvalidState    Code = "invalid_state"
	CodeInvalidRequest  Code = "invalid_request"
	CodeGateway         Code = "gateway"
	CodeUnauthenticated Code = "unauthenticated"
	CodeForbidden       Code = "forbidden"
	CodeNotFound        Code = "not_found"
	CodeNotConfigured   Code = "not_configured"
	CodeRateLimited     Code = "rate_limited"
	CodeInternal        Code = "internal"
)

// Error carries a display-safe Message; Err keeps the underlying cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a message consumer should redeliver.
func (e *Error) Retryable() bool {
	return e.Code == CodeInternal || e.Code == CodeGateway
}

func New(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func Validation(msg string) *Error     { return New(CodeValidation, msg, nil) }
func Conflict(msg string) *Error       { return New(CodeConflict, msg, nil) }
func InvalidState(msg string) *Error   { return New(CodeInvalidState, msg, nil) }
func InvalidRequest(msg string) *Error { return New(CodeInvalidRequest, msg, nil) }
func Forbidden(msg string) *Error      { return New(CodeForbidden, msg, nil) }
func NotFound(msg string) *Error       { return New(CodeNotFound, msg, nil) }
func Unauthenticated(msg string) *Error {
	return New(CodeUnauthenticated, msg, nil)
}
func NotConfigured(msg string) *Error { return New(CodeNotConfigured, msg, nil) }

// Gateway wraps a payment provider rejection; its message is passed through.
func Gateway(msg string, err error) *Error { return New(CodeGateway, msg, err) }

// Internal hides err behind a generic message.
func Internal(err error) *Error { return New(CodeInternal, "internal server error", err) }

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// HTTPStatus maps a code onto the REST status convention.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeConflict, CodeInvalidState, CodeInvalidRequest, CodeGateway:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Resolve converts any error into a status and a message safe to show users.
func Resolve(err error) (int, string) {
	if appErr, ok := As(err); ok {
		return HTTPStatus(appErr.Code), appErr.Message
	}
	return http.StatusInternalServerError, "internal server error"
}
