// Package apperr provides the error taxonomy shared by the dispatcher, the
// sandbox and the native commands.
package apperr

import "errors"

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// CodeValidation marks malformed arguments to an individual command.
	CodeValidation Code = "VALIDATION"
	// CodePolicyViolation marks a forbidden pattern detected before execution.
	CodePolicyViolation  Code = "POLICY_VIOLATION"
	CodeExecutionTimeout Code = "EXECUTION_TIMEOUT"
	// CodeExecutionFailure marks an uncaught fault in a script or native handler.
	CodeExecutionFailure Code = "EXECUTION_FAILURE"
	// CodeExternalService marks an unreachable store or upstream API.
	CodeExternalService Code = "EXTERNAL_SERVICE"
	// CodeProtectedName marks an attempt to change a native command.
	CodeProtectedName Code = "PROTECTED_NAME"
	CodeMisconfigured Code = "MISCONFIGURED"
	CodeNotFound      Code = "NOT_FOUND"
)

// Error is the domain error type with a code and an internal message.
// Message is meant for logs; user-visible text is rendered by the publisher.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
