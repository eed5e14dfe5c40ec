package apperr

import (
	"errors"
	"net/http"
)

// Code classifies an application failure.
type Code string

const (
	CodeMissingCredential Code = "missing_credential"
	CodeInvalidCredential Code = "invalid_credential"
	CodeExpired           Code = "expired"
	CodeUnknownUser       Code = "unknown_user"
	CodeUpstream          Code = "upstream"
	CodeConflict          Code = "conflict"
	CodeNotFound          Code = "not_found"
	CodeValidation        Code = "validation"
	CodeTooLarge          Code = "too_large"
)

// Error is a coded application error. Message is safe to return to clients;
// Cause is for logs only.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and client-facing message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error that keeps the underlying cause for logging.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in the chain, or "" if none.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// MessageOf returns the client-facing message of the first *Error in the chain.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps an error to its transport status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeMissingCredential, CodeInvalidCredential, CodeExpired, CodeUnknownUser:
		return http.StatusUnauthorized
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
