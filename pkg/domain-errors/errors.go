// Package domainerrors defines the error taxonomy shared by services and
// transport adapters. Services return *Error values; handlers translate them
// into HTTP responses with HTTPStatus.
//
// Stores never return these. They return pkg/platform/sentinel errors which
// services wrap with a code:
//
//	if errors.Is(err, sentinel.ErrNotFound) {
//	    return dErrors.Wrap(err, dErrors.CodeNotFound, "vault not found")
//	}
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies a class of failure. The string value is what clients see
// in the "error" field of a response body.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeInvalidToken       Code = "invalid_token"
	CodeQuotaExceeded      Code = "quota_exceeded"
	CodeConflict           Code = "conflict"
	CodeExternalService    Code = "external_service"
	CodeNotFound           Code = "not_found"
	CodeForbidden          Code = "forbidden"
	CodeUnauthorized       Code = "unauthorized"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error with an optional machine-readable reason and
// an optional wrapped cause. The cause is never shown to clients.
type Error struct {
	Code    Code
	Message string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a domain error with the same code and message.
// This lets tests assert with errors.Is against a freshly built value.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// NewWithReason builds an error carrying a reason for clients that branch on
// it, such as token failures ("EXPIRED", "NOT_FOUND").
func NewWithReason(code Code, msg, reason string) *Error {
	return &Error{Code: code, Message: msg, Reason: reason}
}

func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// As extracts the outermost domain error from err.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// CodeOf returns the code of err, or CodeInternal for non-domain errors.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to the status written by transport adapters.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeInvalidCredentials, CodeInvalidToken, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
