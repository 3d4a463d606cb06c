package sandbox

import (
	"errors"
	"fmt"

	"github.com/hyperifyio/cmdbot/internal/apperr"
)

// Status is the terminal state of one script invocation.
type Status int

const (
	StatusCompleted Status = iota + 1
	StatusRejected
	StatusTimedOut
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusRejected:
		return "rejected"
	case StatusTimedOut:
		return "timed_out"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptySource is returned by Validate for blank scripts.
	ErrEmptySource = apperr.New(apperr.CodeValidation, "script is empty")
	// ErrLengthExceeded is returned when a script is longer than the
	// configured maximum. Execution never starts.
	ErrLengthExceeded = apperr.New(apperr.CodePolicyViolation, "script exceeds maximum length")
	// ErrTimeout is returned when a script runs past its deadline.
	ErrTimeout = apperr.New(apperr.CodeExecutionTimeout, "script execution timed out")
)

// ForbiddenPatternError reports the first denied capability found in a
// script's source.
type ForbiddenPatternError struct {
	Category Category
	Pattern  string
}

func (e *ForbiddenPatternError) Error() string {
	return fmt.Sprintf("script contains forbidden pattern: %s (%s)", e.Pattern, e.Category)
}

// Unwrap lets callers match on the policy-violation code.
func (e *ForbiddenPatternError) Unwrap() error {
	return apperr.New(apperr.CodePolicyViolation, "forbidden pattern")
}

// RuntimeError is an uncaught fault raised while a script ran or compiled.
// Message is already sanitised for display.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string { return "script failed: " + e.Message }

// Unwrap lets callers match on the execution-failure code.
func (e *RuntimeError) Unwrap() error {
	return apperr.New(apperr.CodeExecutionFailure, e.Message)
}

// Result is the tagged outcome of Engine.Run. Text is set for
// StatusCompleted; Err is set for every other status.
type Result struct {
	Status    Status
	Text      string
	Truncated bool
	Err       error
}

// Completed builds a successful result.
func Completed(text string) Result { return Result{Status: StatusCompleted, Text: text} }

// Rejected builds a result for a script refused before execution.
func Rejected(err error) Result { return Result{Status: StatusRejected, Err: err} }

func timedOut() Result { return Result{Status: StatusTimedOut, Err: ErrTimeout} }

func failed(msg string) Result {
	return Result{Status: StatusFailed, Err: &RuntimeError{Message: msg}}
}

// Category returns the matched deny-list category for a forbidden-pattern
// rejection, or "".
func (r Result) Category() Category {
	var fp *ForbiddenPatternError
	if errors.As(r.Err, &fp) {
		return fp.Category
	}
	return ""
}

// LengthExceeded reports whether the script was rejected for its size.
func (r Result) LengthExceeded() bool {
	return r.Err == ErrLengthExceeded
}
