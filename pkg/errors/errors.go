package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones and wraps of a
// predefined error still match it through errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Generic errors.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrRateLimited  = New("RATE_LIMITED", http.StatusTooManyRequests, "too many requests, slow down")
)

// Attendance errors. Every one of these is an expected outcome that the caller can act on.
var (
	ErrSessionNotFound    = New("SESSION_NOT_FOUND", http.StatusNotFound, "class session not found")
	ErrSessionNotOngoing  = New("SESSION_NOT_ONGOING", http.StatusConflict, "class is not ongoing")
	ErrSessionLocked      = New("SESSION_LOCKED", http.StatusConflict, "class session can no longer be rescheduled")
	ErrTokenNotFound      = New("TOKEN_NOT_FOUND", http.StatusNotFound, "QR code not found or already used")
	ErrTokenExpired       = New("TOKEN_EXPIRED", http.StatusGone, "QR code has expired")
	ErrTokenAlreadyActive = New("TOKEN_ALREADY_ACTIVE", http.StatusConflict, "a QR code is already active for this class")
	ErrNotEnrolled        = New("NOT_ENROLLED", http.StatusForbidden, "you are not enrolled in this unit")
	ErrAlreadyMarked      = New("ALREADY_MARKED", http.StatusConflict, "attendance already marked for this class")
	ErrInvalidLocation    = New("INVALID_LOCATION", http.StatusBadRequest, "invalid location data")
	ErrStorage            = New("STORAGE_ERROR", http.StatusServiceUnavailable, "temporarily unable to process the request, try again")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Storage wraps a persistence failure. The cause is kept for logging but the
// public message stays generic.
func Storage(err error) *Error {
	return Wrap(err, ErrStorage.Code, ErrStorage.Status, ErrStorage.Message)
}
