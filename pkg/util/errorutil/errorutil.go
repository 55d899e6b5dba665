package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to callers of the session core.
const (
	CodeDecodeFailure     = "DECODE_FAILURE"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeRemoteInvalid     = "REMOTE_INVALID"
	CodeRemoteUnreachable = "REMOTE_UNREACHABLE"
	CodeTwoFactorRequired = "TWO_FACTOR_REQUIRED"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternal          = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
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

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

// NewDecodeFailure reports a token that cannot be decoded.
func NewDecodeFailure(err error) error {
	return &DomainError{
		Code:       CodeDecodeFailure,
		Message:    "received token is not usable",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewTokenExpired reports a token whose expiry already passed.
func NewTokenExpired() error {
	return NewDomainError(CodeTokenExpired, "session token expired", http.StatusUnauthorized, nil)
}

// NewRemoteInvalid reports an explicit rejection by the auth server.
func NewRemoteInvalid(message string) error {
	if message == "" {
		message = "request rejected by auth server"
	}
	return NewDomainError(CodeRemoteInvalid, message, http.StatusUnauthorized, nil)
}

// NewRemoteUnreachable reports a network or server failure.
func NewRemoteUnreachable(err error) error {
	return &DomainError{
		Code:       CodeRemoteUnreachable,
		Message:    "connection error",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewTwoFactorRequired is the distinguishable login outcome asking for a code.
func NewTwoFactorRequired(message string) error {
	if message == "" {
		message = "two-factor code required"
	}
	return NewDomainError(CodeTwoFactorRequired, message, http.StatusPreconditionRequired, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
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
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
