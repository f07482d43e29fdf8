// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInsufficientData    = errors.New("insufficient data: no usable strike quotes")
	ErrUpstreamUnavailable = errors.New("quote source unavailable")
	ErrUnknownSymbol       = errors.New("unknown symbol")
	ErrUnknownExpiry       = errors.New("unknown expiry")
	ErrStaleData           = errors.New("cached data is stale")
	ErrConnectionClosed    = errors.New("connection closed")
	ErrQueueFull           = errors.New("outbound queue full")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrSessionExpired      = errors.New("session expired")
	ErrTimeout             = errors.New("operation timed out")
	ErrConfigInvalid       = errors.New("invalid configuration")
)

// Stable error codes reported to REST and WebSocket callers.
const (
	CodeInsufficientData    = "INSUFFICIENT_DATA"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeInvalidSymbol       = "INVALID_SYMBOL"
	CodeInvalidExpiry       = "INVALID_EXPIRY"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInternal            = "INTERNAL_ERROR"
)

// Code maps an error to its stable user-visible code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientData):
		return CodeInsufficientData
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrTimeout):
		return CodeUpstreamUnavailable
	case errors.Is(err, ErrUnknownSymbol):
		return CodeInvalidSymbol
	case errors.Is(err, ErrUnknownExpiry):
		return CodeInvalidExpiry
	default:
		var ve *ValidationError
		if errors.As(err, &ve) {
			return CodeInvalidRequest
		}
		return CodeInternal
	}
}

// UpstreamError represents a failure from the quote source. Transient
// failures may be retried by the caller with backoff; permanent ones
// must not be.
type UpstreamError struct {
	Op        string
	Symbol    string
	Transient bool
	Err       error
}

func (e *UpstreamError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("upstream error [%s] %s (%s): %v", e.Op, e.Symbol, kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUpstreamUnavailable
}

// Is lets UpstreamError satisfy errors.Is(err, ErrUpstreamUnavailable).
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(op, symbol string, transient bool, err error) *UpstreamError {
	return &UpstreamError{Op: op, Symbol: symbol, Transient: transient, Err: err}
}

// IsTransient reports whether the error chain contains a transient
// upstream failure.
func IsTransient(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Transient
	}
	return errors.Is(err, ErrTimeout)
}

// ValidationError represents a rejected request field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// DataError represents a data-related error scoped to a symbol.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{DataType: dataType, Symbol: symbol, Message: message, Err: err}
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
