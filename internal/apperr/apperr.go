// Package apperr defines the categorized error taxonomy used throughout the
// reconciliation core. Categorized errors are expected, frequent outcomes
// (budget exceeded, validation failed, provider down) and are carried as
// values, never as panics.
package apperr

import (
	"errors"
	"fmt"
	"time"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

// Type categorizes an error for retry/fallback decisions.
type Type string

const (
	// TypeValidation — bad or missing input shape. Never retryable.
	TypeValidation Type = "VALIDATION"
	// TypeProvider — adapter, network or auth failure. Retryable when transient.
	TypeProvider Type = "PROVIDER"
	// TypeCostLimit — a budget ceiling would be exceeded. Never retryable.
	TypeCostLimit Type = "COST_LIMIT"
	// TypeTimeout — an operation exceeded its bound. Retryable.
	TypeTimeout Type = "TIMEOUT"
	// TypeExtraction — uncategorized provider-result problem. Retryable.
	TypeExtraction Type = "EXTRACTION"
)

// Error is a categorized error with both a technical and a user-facing
// message. The technical message is for logs only and may reference
// internals; the user message never does.
type Error struct {
	Type      Type
	Message   string
	Retryable bool
	Timestamp time.Time
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a categorized error with the default retryability for its type.
func New(t Type, msg string) *Error {
	return &Error{Type: t, Message: msg, Retryable: defaultRetryable(t), Timestamp: time.Now().UTC()}
}

// Wrap categorizes an underlying error.
func Wrap(t Type, msg string, cause error) *Error {
	e := New(t, msg)
	e.Cause = cause
	return e
}

// Validation creates a non-retryable VALIDATION error.
func Validation(msg string) *Error { return New(TypeValidation, msg) }

// Provider creates a PROVIDER error; transient controls retryability.
func Provider(msg string, cause error, transient bool) *Error {
	e := Wrap(TypeProvider, msg, cause)
	e.Retryable = transient
	return e
}

// CostLimit creates a non-retryable COST_LIMIT error.
func CostLimit(msg string) *Error { return New(TypeCostLimit, msg) }

// Timeout creates a retryable TIMEOUT error.
func Timeout(msg string, cause error) *Error { return Wrap(TypeTimeout, msg, cause) }

// Extraction creates a retryable-by-default EXTRACTION error.
func Extraction(msg string, cause error) *Error { return Wrap(TypeExtraction, msg, cause) }

func defaultRetryable(t Type) bool {
	switch t {
	case TypeTimeout, TypeExtraction:
		return true
	default:
		return false
	}
}

// TypeOf returns the category of err, or TypeExtraction when err carries no
// category (an uncategorized failure from a provider path).
func TypeOf(err error) Type {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return TypeExtraction
}

// Retryable reports whether err may be retried.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// AsResultError converts err to its boundary-safe form for the given locale.
// Internal details (raw payloads, wrapped causes) are stripped; type and
// retryability survive.
func AsResultError(err error, locale string) *model.ResultError {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		e = Extraction("unexpected failure", nil)
	}
	return &model.ResultError{
		Type:        string(e.Type),
		Message:     e.Message,
		UserMessage: UserMessage(e.Type, locale),
		Retryable:   e.Retryable,
		Timestamp:   e.Timestamp,
	}
}
