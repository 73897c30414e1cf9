package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Reason  string // optional sub-code, e.g. UNSUPPORTED_MEDIA_TYPE
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error kinds surfaced to HTTP callers.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeUpstreamFailure    = "UPSTREAM_FAILURE"
)

// BadRequest reasons.
const (
	ReasonUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	ReasonMalformedDocument    = "MALFORMED_DOCUMENT"
	ReasonUnsupportedFormat    = "UNSUPPORTED_FORMAT"
)

// Common application errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("service unavailable")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewBadRequest(reason, message string, cause error) *AppError {
	return &AppError{Code: CodeBadRequest, Reason: reason, Message: message, Cause: cause}
}

func NewUnauthorized(message string, cause error) *AppError {
	return NewAppError(CodeUnauthorized, message, cause)
}

func NewServiceUnavailable(message string, cause error) *AppError {
	return NewAppError(CodeServiceUnavailable, message, cause)
}

func NewUpstreamFailure(message string, cause error) *AppError {
	return NewAppError(CodeUpstreamFailure, message, cause)
}

// AsAppError unwraps err to the first AppError in its chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the AppError code of err, or "" for other errors.
func CodeOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// ReasonOf returns the AppError sub-code of err, or "".
func ReasonOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Reason
	}
	return ""
}

// HTTPStatus maps an error to the status code returned to callers.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
