// Package apperrors defines the error taxonomy shared across the analytics
// core: validation failures, classified storage failures, attribution
// failures, and aggregator flush failures.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// StorageErrorClass classifies a storage failure for retry decisions.
type StorageErrorClass string

const (
	StorageClassConnection  StorageErrorClass = "connection"
	StorageClassQuery       StorageErrorClass = "query"
	StorageClassTransaction StorageErrorClass = "transaction"
	StorageClassConstraint  StorageErrorClass = "constraint"
	StorageClassTimeout     StorageErrorClass = "timeout"
)

// ValidationError reports malformed or missing required input. It is never
// retried and surfaces to callers with a 400-equivalent status.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps an underlying record-store failure with a class used by
// the retry policy. Constraint violations are never retried.
type StorageError struct {
	Class StorageErrorClass
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed (%s): %v", e.Op, e.Class, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the failure class is transient.
func (e *StorageError) Retriable() bool {
	return e.Class == StorageClassConnection || e.Class == StorageClassTimeout
}

// NewStorageError wraps err with an explicit class.
func NewStorageError(class StorageErrorClass, op string, err error) *StorageError {
	return &StorageError{Class: class, Op: op, Err: err}
}

// WrapStorage classifies err from its message and wraps it. SQLite surfaces
// busy/locked conditions as plain errors, so classification is string-based.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}

	var se *StorageError
	if errors.As(err, &se) {
		return err
	}

	msg := strings.ToLower(err.Error())
	class := StorageClassQuery
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "busy"),
		strings.Contains(msg, "connection"):
		class = StorageClassConnection
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"):
		class = StorageClassTimeout
	case strings.Contains(msg, "constraint"), strings.Contains(msg, "unique"),
		strings.Contains(msg, "foreign key"):
		class = StorageClassConstraint
	case strings.Contains(msg, "transaction"):
		class = StorageClassTransaction
	}

	return &StorageError{Class: class, Op: op, Err: err}
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// AttributionError reports a failed attribution computation, typically a
// conversion that does not exist. A conversion with no prior attributable
// visits is NOT an error; it yields an empty result.
type AttributionError struct {
	ConversionID uint
	Message      string
}

func (e *AttributionError) Error() string {
	return fmt.Sprintf("attribution failed for conversion %d: %s", e.ConversionID, e.Message)
}

// NewAttributionError creates an AttributionError for the given conversion.
func NewAttributionError(conversionID uint, message string) *AttributionError {
	return &AttributionError{ConversionID: conversionID, Message: message}
}

// FlushError reports a failed persist tick in the real-time aggregator. The
// in-memory window is retained for retry on the next tick.
type FlushError struct {
	Attempt int
	Err     error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("snapshot flush failed (attempt %d): %v", e.Attempt, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}
