package apierr

import (
	"errors"
	"fmt"
)

// Error is a structured error with a machine-readable code, human-readable
// message, HTTP status, optional extra fields rendered next to the message,
// and an optional wrapped cause (never serialized).
type Error struct {
	code    Code
	message string
	status  int
	fields  map[string]any
	cause   error
}

// New creates an Error without a cause.
func New(code Code, status int, message string) *Error {
	return &Error{code: code, message: message, status: status}
}

// Wrap creates an Error that wraps a cause for logging/unwrapping.
func Wrap(code Code, status int, message string, cause error) *Error {
	return &Error{code: code, message: message, status: status, cause: cause}
}

// Error implements the error interface. Includes the cause for log output.
func (e *Error) Error() string {
	if e.cause != nil && e.cause.Error() != e.message {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Unwrap returns the wrapped cause for errors.Is/errors.As chaining.
func (e *Error) Unwrap() error { return e.cause }

// Code returns the machine-readable error code.
func (e *Error) Code() Code { return e.code }

// Message returns the human-readable message.
func (e *Error) Message() string { return e.message }

// Status returns the HTTP status code.
func (e *Error) Status() int { return e.status }

// WithField returns a copy of e carrying an extra key/value pair.
func (e *Error) WithField(key string, value any) *Error {
	out := *e
	out.fields = make(map[string]any, len(e.fields)+1)
	for k, v := range e.fields {
		out.fields[k] = v
	}
	out.fields[key] = value
	return &out
}

// Field returns the extra value stored under key.
func (e *Error) Field(key string) (any, bool) {
	v, ok := e.fields[key]
	return v, ok
}

// Fields returns a copy of the extra fields.
func (e *Error) Fields() map[string]any {
	out := make(map[string]any, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// As returns err as an *Error. Errors that are not already structured are
// wrapped as INTERNAL_ERROR.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return InternalError(err)
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.code == code
}

// ErrorResponse is the wire format written as JSON by the HTTP surface for
// non-tool routes.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the inner object of ErrorResponse.
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Response returns the wire-format representation of this error.
func (e *Error) Response() ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    e.code,
			Message: e.message,
		},
	}
}
