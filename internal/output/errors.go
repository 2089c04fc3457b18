package output

import (
	"errors"
	"fmt"
)

// Error is a structured error with code, message, and optional hint.
//
// Every failure leaving the request layer is one of three kinds:
//   - CodeNetwork: the server was never reached (HTTPStatus 0).
//   - CodeHTTP: the server answered with a non-2xx status.
//   - CodeSessionExpired: no usable credentials could be obtained.
type Error struct {
	Code       string
	Message    string
	Hint       string
	HTTPStatus int
	Retryable  bool

	// SessionExpired is true only when re-authentication is required. A 401
	// that follows a successful refresh carries false: the session is valid
	// but the operation is not permitted.
	SessionExpired bool

	Cause error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Hint)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *Error) ExitCode() int {
	return ExitCodeFor(e.Code, e.HTTPStatus)
}

// Error constructors for common cases.

func ErrUsage(msg string) *Error {
	return &Error{Code: CodeUsage, Message: msg}
}

func ErrUsageHint(msg, hint string) *Error {
	return &Error{Code: CodeUsage, Message: msg, Hint: hint}
}

func ErrConfig(msg, hint string) *Error {
	return &Error{Code: CodeConfig, Message: msg, Hint: hint}
}

// ErrNetwork wraps a transport failure. Status is always 0.
func ErrNetwork(cause error) *Error {
	return &Error{
		Code:    CodeNetwork,
		Message: "Network error",
		Hint:    cause.Error(),
		Cause:   cause,
	}
}

// ErrHTTP is a non-2xx response with a classified message.
func ErrHTTP(status int, msg string) *Error {
	return &Error{
		Code:       CodeHTTP,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  status >= 500,
	}
}

// ErrHTTPUnauthorized is a 401 received after the session was successfully
// refreshed.
func ErrHTTPUnauthorized(msg string) *Error {
	if msg == "" {
		msg = "You are not allowed to perform this action"
	}
	return &Error{
		Code:       CodeHTTP,
		Message:    msg,
		HTTPStatus: 401,
	}
}

// ErrSessionExpired signals that the user must sign in again.
func ErrSessionExpired(msg string) *Error {
	if msg == "" {
		msg = "Your session has expired. Please sign in again."
	}
	return &Error{
		Code:           CodeSessionExpired,
		Message:        msg,
		Hint:           "Run: booth auth login",
		HTTPStatus:     401,
		SessionExpired: true,
	}
}

// AsError attempts to convert an error to an *Error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    CodeHTTP,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsSessionExpired reports whether err requires the user to sign in again.
func IsSessionExpired(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.SessionExpired
}

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeNetwork
}

// HTTPStatus returns the HTTP status carried by err, or 0.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus
	}
	return 0
}
