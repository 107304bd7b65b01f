// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling for team-table operations.
// Authorization, not-found, and conflict outcomes are returned as data by
// the store; this package covers the remaining fail-fast paths and the
// wire envelope mapping.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies team-table errors for envelopes and monitoring.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates input validation failed before any mutation.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeUnauthorized indicates the acting agent lacks the required role
	// or ownership relation.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeNotFound indicates a referenced entity is absent.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeRateLimit indicates the sender exceeded its window quota.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeConflict indicates a conditional update lost a race.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeStorageBusy indicates the engine could not acquire a write lock
	// within the busy timeout. Callers retry the whole operation.
	CodeStorageBusy ErrorCode = "STORAGE_BUSY"
)

// Error is a typed error carrying a classification code.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for the uniform error envelope.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}{
		Error: e.Message,
		Code:  string(e.Code),
	})
}

// New creates an Error with the given code and message.
func New(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error with an underlying cause.
func Wrap(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Err: cause}
}

// AsError converts err to *Error, unwrapping through the error chain and
// wrapping unknown errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if stderrors.As(err, &te) {
		return te
	}
	return Wrap(CodeInternal, "internal error", err)
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var te *Error
	return stderrors.As(err, &te) && te.Code == code
}

// StatusCode maps an error code to an HTTP status for transport adapters.
func StatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeUnauthorized:
		return 403
	case CodeInvalidInput:
		return 400
	case CodeRateLimit:
		return 429
	case CodeConflict:
		return 409
	case CodeStorageBusy:
		return 503
	default:
		return 500
	}
}
