package apperr

import (
	"errors"
	"net/http"
)

// Error codes for the polling pipeline failure taxonomy. Handlers map
// pipeline sentinel errors onto these before writing a response.
const (
	CodeConfigMissing       = "config_missing"
	CodeUnauthenticated     = "unauthenticated"
	CodeExchangeFailed      = "exchange_failed"
	CodeRefreshInvalid      = "refresh_invalid"
	CodeNotConnected        = "not_connected"
	CodeProviderUnavailable = "provider_unavailable"
	CodeMalformedResponse   = "malformed_response"
)

type Error struct {
	Code       string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Unauthorized(code, message string) *Error {
	return &Error{Code: code, Message: message, StatusCode: http.StatusUnauthorized}
}

func Forbidden(code, message string) *Error {
	return &Error{Code: code, Message: message, StatusCode: http.StatusForbidden}
}

func BadRequest(code, message string) *Error {
	return &Error{Code: code, Message: message, StatusCode: http.StatusBadRequest}
}

func NotFound(code, message string) *Error {
	return &Error{Code: code, Message: message, StatusCode: http.StatusNotFound}
}

func Conflict(code, message string) *Error {
	return &Error{Code: code, Message: message, StatusCode: http.StatusConflict}
}

func Internal(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, StatusCode: http.StatusInternalServerError, Cause: cause}
}

func TooManyRequests(code, message string) *Error {
	return &Error{Code: code, Message: message, StatusCode: http.StatusTooManyRequests}
}

func BadGateway(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, StatusCode: http.StatusBadGateway, Cause: cause}
}

func AsError(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
