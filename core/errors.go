package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"message"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return fmt.Sprintf("%s: %s", err.Fields[0].Field, err.Fields[0].Error)
		}
		return ""
	}
	return err.Err.Error()
}

// ErrorCode classifies business rule violations.
type ErrorCode string

const (
	CodeNotConfigured      ErrorCode = "NotConfigured"
	CodeNotFound           ErrorCode = "NotFound"
	CodeConflict           ErrorCode = "Conflict"
	CodeInvalidState       ErrorCode = "InvalidState"
	CodePreconditionFailed ErrorCode = "PreconditionFailed"
)

// StateError is returned when an operation is refused because of the current state of the data.
type StateError struct {
	Code    ErrorCode
	Message string
}

func NewStateError(code ErrorCode, format string, args ...interface{}) error {
	return &StateError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (err StateError) Error() string {
	return err.Message
}

// ErrorCodeOf returns the code of the StateError wrapped by err, if any.
func ErrorCodeOf(err error) (ErrorCode, bool) {
	if sErr, ok := errors.Cause(err).(*StateError); ok {
		return sErr.Code, true
	}
	return "", false
}

// HasErrorCode tells whether err is a StateError with the given code.
func HasErrorCode(err error, code ErrorCode) bool {
	c, ok := ErrorCodeOf(err)
	return ok && c == code
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
