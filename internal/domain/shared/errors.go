// Package shared contains common domain types and errors used across all
// domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Configuration errors are surfaced synchronously at submission,
	// never through the async job mechanism.
	ErrConfiguration = errors.New("invalid configuration")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrAlreadyTerminal = errors.New("already in terminal state")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "analysis", "record", "job"
	Op      string // Operation that failed, e.g., "Aggregate", "Submit"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Student domain errors
var (
	ErrStudentNotFound  = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrInvalidStudentID = NewDomainError("student", "Validate", ErrInvalidID, "invalid student ID")
)

// Record domain errors
var (
	ErrUnknownSourceType = NewDomainError("record", "Validate", ErrInvalidInput, "unknown source type")
	ErrInvalidDirection  = NewDomainError("record", "Validate", ErrInvalidInput, "direction must be 'in' or 'out'")
	ErrInvalidMonth      = NewDomainError("record", "Validate", ErrInvalidFormat, "month must be formatted as YYYY-MM")
)

// Analysis domain errors
var (
	ErrInvalidWindow        = NewDomainError("analysis", "Validate", ErrInvalidInput, "window start must not be after end")
	ErrInvalidContamination = NewDomainError("analysis", "Validate", ErrConfiguration, "contamination must be in (0, 0.5)")
	ErrInvalidThresholdBand = NewDomainError("analysis", "Validate", ErrConfiguration, "high threshold must be greater than low threshold")
	ErrUnknownAnalysisKind  = NewDomainError("analysis", "Validate", ErrConfiguration, "unknown analysis kind")
)

// Job domain errors
var (
	ErrJobNotFound   = NewDomainError("job", "Query", ErrNotFound, "task not found")
	ErrJobTerminal   = NewDomainError("job", "Update", ErrAlreadyTerminal, "task already completed or failed")
	ErrRunnerStopped = NewDomainError("job", "Submit", ErrInvalidState, "runner is not accepting work")
)

// External service errors
var (
	ErrOracleUnavailable = NewDomainError("oracle", "Request", ErrServiceUnavailable, "scoring oracle is unavailable")
	ErrOracleBadResponse = NewDomainError("oracle", "Parse", ErrInvalidFormat, "invalid response from scoring oracle")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConfiguration checks if the error is a configuration error that should
// be reported to the submitter before any processing starts.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
