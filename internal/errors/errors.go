// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated   = errors.New("user is not authenticated")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrEmailTaken         = errors.New("email already registered")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrObjectNotFound     = errors.New("object not found")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrInputValidation    = errors.New("input validation failed")
	ErrImportFailed       = errors.New("import failed")
	ErrTimeout            = errors.New("operation timed out")
)

// RemoteWriteError is returned when a write to the document database or the
// object store fails. Message carries the underlying error text verbatim.
type RemoteWriteError struct {
	Operation string
	Message   string
	Err       error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("remote write [%s]: %s", e.Operation, e.Message)
}

func (e *RemoteWriteError) Unwrap() error {
	return e.Err
}

// NewRemoteWriteError creates a new RemoteWriteError.
func NewRemoteWriteError(operation string, err error) *RemoteWriteError {
	msg := "an unknown error occurred"
	if err != nil {
		msg = err.Error()
	}
	return &RemoteWriteError{
		Operation: operation,
		Message:   msg,
		Err:       err,
	}
}

// RemoteReadError is returned when a read or subscription on a remote
// collaborator fails.
type RemoteReadError struct {
	Source  string
	Message string
	Err     error
}

func (e *RemoteReadError) Error() string {
	return fmt.Sprintf("remote read [%s]: %s", e.Source, e.Message)
}

func (e *RemoteReadError) Unwrap() error {
	return e.Err
}

// NewRemoteReadError creates a new RemoteReadError.
func NewRemoteReadError(source string, err error) *RemoteReadError {
	msg := "an unknown error occurred"
	if err != nil {
		msg = err.Error()
	}
	return &RemoteReadError{
		Source:  source,
		Message: msg,
		Err:     err,
	}
}

// DateParseError reports a trade date that could not be parsed.
// Aggregation absorbs it; it never reaches the user.
type DateParseError struct {
	TradeID string
	Field   string
	Value   string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("trade %s: cannot parse %s %q", e.TradeID, e.Field, e.Value)
}

// NewDateParseError creates a new DateParseError.
func NewDateParseError(tradeID, field, value string) *DateParseError {
	return &DateParseError{
		TradeID: tradeID,
		Field:   field,
		Value:   value,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ImportError represents a failure of the trade import service.
type ImportError struct {
	Source     string
	StatusCode int
	Message    string
	Err        error
}

func (e *ImportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("import error [%s] status %d: %s", e.Source, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("import error [%s]: %s: %v", e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("import error [%s]: %s", e.Source, e.Message)
}

func (e *ImportError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrImportFailed
}

// Retryable reports whether the failure is worth another attempt.
func (e *ImportError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}

// NewImportError creates a new ImportError.
func NewImportError(source string, statusCode int, message string, err error) *ImportError {
	return &ImportError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}
