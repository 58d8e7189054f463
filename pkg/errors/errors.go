// Package errors provides structured error types for sb3fix.
//
// Every failure the repair can run into maps to one machine-readable [Code]:
//
//   - ARCHIVE_NOT_FOUND: the archive path does not exist
//   - ARCHIVE_UNREADABLE: the archive cannot be opened or is not a valid container
//   - MALFORMED_DESCRIPTOR: the descriptor entry does not decode as a project
//   - WRITE_FAILURE: building the temporary container or replacing the archive failed
//
// # Usage
//
//	err := errors.New(errors.ErrCodeMalformedDescriptor, "targets must be an array")
//	if errors.Is(err, errors.ErrCodeMalformedDescriptor) {
//	    // Handle broken descriptor
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeWriteFailure, origErr, "replace %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Archive access errors
	ErrCodeArchiveNotFound   Code = "ARCHIVE_NOT_FOUND"
	ErrCodeArchiveUnreadable Code = "ARCHIVE_UNREADABLE"

	// Content errors
	ErrCodeMalformedDescriptor Code = "MALFORMED_DESCRIPTOR"

	// Output errors
	ErrCodeWriteFailure Code = "WRITE_FAILURE"

	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// Only the outermost *Error in the chain is consulted, so a WRITE_FAILURE
// wrapping a MALFORMED_DESCRIPTOR reports WRITE_FAILURE.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message (and cause, if any) without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}
