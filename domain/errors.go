package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeInvalid            ErrorCode = "INVALID"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeInvalidOTP         ErrorCode = "INVALID_OTP"
	ErrCodeHashFormat         ErrorCode = "HASH_FORMAT"
	ErrCodeHashing            ErrorCode = "HASHING"
	ErrCodePersistence        ErrorCode = "PERSISTENCE"
	ErrCodeConfiguration      ErrorCode = "CONFIGURATION"
	ErrCodeInternal           ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrUserNotFound       = NewError(ErrCodeNotFound, "user not found")
	ErrSessionNotFound    = NewError(ErrCodeNotFound, "session not found")
	ErrDuplicateEmail     = NewError(ErrCodeConflict, "email already registered")
	ErrInvalidCredentials = NewError(ErrCodeInvalidCredentials, "invalid credentials")
	ErrInvalidOTP         = NewError(ErrCodeInvalidOTP, "invalid or expired one-time token")
	ErrSessionExpired     = NewError(ErrCodeUnauthorized, "session expired")
	ErrAccountDisabled    = NewError(ErrCodeUnauthorized, "account disabled")
	ErrUnauthorized       = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrInvalidPayload     = NewError(ErrCodeInvalid, "invalid payload")
	ErrPasswordMismatch   = NewError(ErrCodeInvalid, "passwords do not match")
	ErrPasswordLength     = NewError(ErrCodeInvalid, "password length out of bounds")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// CodeOf returns the classification of err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return ErrCodeInternal
}
