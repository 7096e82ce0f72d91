package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Debug returns diagnostic detail for non-production responses.
func (e *DomainError) Debug() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// ErrorBody is the JSON envelope written for every failed request.
type ErrorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Debug   string `json:"debug,omitempty"`
}

// Body renders the envelope; debug detail is included only when exposeDebug is set.
func (e *DomainError) Body(exposeDebug bool) ErrorBody {
	body := ErrorBody{Status: e.HTTPStatus, Message: e.Message}
	if exposeDebug {
		body.Debug = e.Debug()
	}
	return body
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, cause error) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Err: cause}
}

func NewValidationError(message string) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, nil)
}

func NewNotFound(resource string) error {
	return NewDomainError("NOT_FOUND", fmt.Sprintf("%s not found", resource), http.StatusNotFound, nil)
}

func NewUnauthorized(message string, cause error) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, cause)
}

func NewForbidden(message string, cause error) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, cause)
}

func NewServiceUnavailable(message string, cause error) error {
	return NewDomainError("SERVICE_UNAVAILABLE", message, http.StatusServiceUnavailable, cause)
}

func NewInternalError(err error) error {
	return NewDomainError("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError, err)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewDomainError("TIMEOUT", "Request timed out", http.StatusServiceUnavailable, err)
	}
	return NewDomainError("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError, err)
}
