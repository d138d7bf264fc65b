// Package domain contains domain errors used throughout the application.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrListenerRunning  = errors.New("pairing listener is already running")
	ErrListenerStopped  = errors.New("pairing listener is stopped")
	ErrListenerPaired   = errors.New("pairing listener already produced a result")
	ErrPairingTimeout   = errors.New("pairing timed out")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrAuthRejected     = errors.New("authorization rejected by user")
	ErrNoToken          = errors.New("no token in authorization response")
	ErrLoginFailed      = errors.New("login failed")
	ErrLinkNotFound     = errors.New("link connection not found")
	ErrNoPortAvailable  = errors.New("no available port in scan range")
	ErrHubNotRunning    = errors.New("event hub is not running")
	ErrSubscriberClosed = errors.New("subscriber is closed")
)

// Error codes for client responses.
const (
	ErrCodeBindFailed      = "BIND_FAILED"
	ErrCodePairingTimeout  = "PAIRING_TIMEOUT"
	ErrCodeInvalidPayload  = "INVALID_PAYLOAD"
	ErrCodeAuthRejected    = "AUTH_REJECTED"
	ErrCodeNoToken         = "NO_TOKEN"
	ErrCodeLoginFailed     = "LOGIN_FAILED"
	ErrCodeLinkNotFound    = "LINK_NOT_FOUND"
	ErrCodeNoPortAvailable = "NO_PORT_AVAILABLE"
	ErrCodeListenerState   = "LISTENER_STATE"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// PairingError represents an error from the pairing listener.
type PairingError struct {
	Op      string // Operation that failed
	Err     error  // Underlying error
	RawLine string // Offending handshake line, if any
}

func (e *PairingError) Error() string {
	if e.RawLine != "" {
		return fmt.Sprintf("pairing %s: %v: %q", e.Op, e.Err, e.RawLine)
	}
	return fmt.Sprintf("pairing %s: %v", e.Op, e.Err)
}

func (e *PairingError) Unwrap() error {
	return e.Err
}

// NewPairingError creates a new PairingError.
func NewPairingError(op string, err error, rawLine string) *PairingError {
	return &PairingError{
		Op:      op,
		Err:     err,
		RawLine: rawLine,
	}
}

// LinkError represents an error from outbound link operations.
type LinkError struct {
	Op      string // Operation that failed
	Err     error  // Underlying error
	Message string // Device-supplied failure message, if any
}

func (e *LinkError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("link %s: %v: %s", e.Op, e.Err, e.Message)
	}
	return fmt.Sprintf("link %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// NewLinkError creates a new LinkError.
func NewLinkError(op string, err error, message string) *LinkError {
	return &LinkError{
		Op:      op,
		Err:     err,
		Message: message,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
