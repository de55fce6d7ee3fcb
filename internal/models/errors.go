package models

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies failures so handlers and the worker can react without
// string matching.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation_error"
	KindUnauthorized   ErrorKind = "unauthorized"
	KindNotFound       ErrorKind = "not_found"
	KindInternal       ErrorKind = "internal_server_error"
	KindNotImplemented ErrorKind = "not_implemented"
	KindTimeout        ErrorKind = "timeout"
	KindTokenRefresh   ErrorKind = "token_refresh_error"
	KindExternalAPI    ErrorKind = "external_api_error"
)

type AppError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Status: http.StatusBadRequest, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: message}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{Kind: KindNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func NewInternalServerError(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Status: http.StatusInternalServerError, Message: message, Err: err}
}

func NewNotImplementedError(operation string) *AppError {
	return &AppError{Kind: KindNotImplemented, Status: http.StatusNotImplemented, Message: fmt.Sprintf("%s is not implemented", operation)}
}

func NewTimeoutError(message string) *AppError {
	return &AppError{Kind: KindTimeout, Status: http.StatusGatewayTimeout, Message: message}
}

func NewTokenRefreshError(provider string, err error) *AppError {
	return &AppError{Kind: KindTokenRefresh, Status: http.StatusBadGateway, Message: fmt.Sprintf("failed to refresh %s token", provider), Err: err}
}

// ExternalAPIError is a structured error body returned by Instagram or TikTok.
type ExternalAPIError struct {
	Provider   string
	HTTPStatus int
	Code       string
	Subcode    string
	Message    string
	LogID      string
	Transient  bool
}

func (e *ExternalAPIError) Error() string {
	msg := fmt.Sprintf("%s API error: %s - Code:%s", e.Provider, e.Message, e.Code)
	if e.Subcode != "" {
		msg += " Subcode:" + e.Subcode
	}
	return msg
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// StatusCode maps err to the HTTP status the API responds with.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	var apiErr *ExternalAPIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// ErrorCode returns the machine readable kind of err.
func ErrorCode(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	var apiErr *ExternalAPIError
	if errors.As(err, &apiErr) {
		return KindExternalAPI
	}
	return KindInternal
}

// IsRetryable reports whether a publish failure is likely to succeed when
// attempted again later: transient platform errors, rate limits, 5xx
// responses, timeouts and network failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *ExternalAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient || apiErr.HTTPStatus == http.StatusTooManyRequests || apiErr.HTTPStatus >= 500
	}
	if IsKind(err, KindTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
