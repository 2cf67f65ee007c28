package engine

import (
	"errors"
	"fmt"
)

// HandlerError is an error raised by the bus or a handler that carries a
// retry classification.
type HandlerError struct {
	// Code identifies the error category.
	Code HandlerErrorCode

	// Message is a human-readable description.
	Message string

	// MessageName identifies the message being handled, when known.
	MessageName string

	// Err is the underlying cause.
	Err error
}

// HandlerErrorCode categorizes handler errors.
type HandlerErrorCode string

const (
	// ErrCodeUnrecoverable marks an error that no retry can fix.
	ErrCodeUnrecoverable HandlerErrorCode = "UNRECOVERABLE"

	// ErrCodeNoHandler indicates no handler is registered for a message.
	ErrCodeNoHandler HandlerErrorCode = "NO_HANDLER"
)

// Error implements the error interface.
func (e *HandlerError) Error() string {
	if e.MessageName != "" {
		return fmt.Sprintf("%s: %s (message=%s)", e.Code, e.Message, e.MessageName)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Unrecoverable wraps err so the bus gives up on the message immediately.
// Returns nil for a nil err.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{
		Code:    ErrCodeUnrecoverable,
		Message: err.Error(),
		Err:     err,
	}
}

// IsUnrecoverable reports whether err must not be retried.
// Missing handlers are unrecoverable too.
// Uses errors.As to handle wrapped errors.
func IsUnrecoverable(err error) bool {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Code == ErrCodeUnrecoverable || he.Code == ErrCodeNoHandler
	}
	return false
}

// IsNoHandler reports whether err is a missing-handler error.
func IsNoHandler(err error) bool {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Code == ErrCodeNoHandler
	}
	return false
}

// NewNoHandlerError creates a HandlerError for an unroutable message.
func NewNoHandlerError(name string) *HandlerError {
	return &HandlerError{
		Code:        ErrCodeNoHandler,
		Message:     "no handler registered",
		MessageName: name,
	}
}
