// Package shared holds the error kinds every domain package reports with.
// Callers classify failures with errors.Is against the kinds below, never by
// message text.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrNotFound = errors.New("not found")

	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrUnauthorized = errors.New("unauthorized")

	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError carries where a failure happened and what kind it is.
type DomainError struct {
	Domain  string // "gradebook", "orientation", "gradeapi"
	Op      string
	Kind    error
	Message string
	Err     error // cause, optional
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
}

// Unwrap prefers the cause; a bare error unwraps to its kind.
func (e *DomainError) Unwrap() error {
	if e.Err == nil {
		return e.Kind
	}
	return e.Err
}

// Is matches both the kind and anything in the cause chain.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError creates an error without a cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError attaches domain context to err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Gradebook.
var (
	ErrStudentNotFound = NewDomainError("gradebook", "Find", ErrNotFound, "student not found")
	ErrSectionEmpty    = NewDomainError("gradebook", "LoadCohort", ErrNotFound, "section has no students")
	ErrSubjectNotFound = NewDomainError("gradebook", "FindSubject", ErrNotFound, "subject not found")
	ErrInvalidWeights  = NewDomainError("gradebook", "Validate", ErrValueOutOfRange, "component weights must sum to 1")
	ErrInvalidSemester = NewDomainError("gradebook", "Validate", ErrInvalidInput, "semester must be 1 or 2")
)

// Orientation.
var (
	ErrUnknownTrack     = NewDomainError("orientation", "Track", ErrInvalidInput, "unknown orientation track")
	ErrInvalidBenchmark = NewDomainError("orientation", "Benchmark", ErrInvalidFormat, "invalid historical benchmark data")
)

// Upstream grade API.
var (
	ErrGradeAPIUnavailable  = NewDomainError("gradeapi", "Request", ErrServiceUnavailable, "grade API is unavailable")
	ErrGradeAPIRateLimited  = NewDomainError("gradeapi", "Request", ErrRateLimited, "grade API rate limit exceeded")
	ErrGradeAPIUnauthorized = NewDomainError("gradeapi", "Request", ErrUnauthorized, "grade API rejected credentials")
)

// IsNotFound reports a missing student, subject or section.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports bad caller input.
func IsValidation(err error) bool {
	for _, kind := range []error{ErrValidation, ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsExternalService reports a failure of the grade API or another dependency.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) || IsRetryable(err)
}

// IsRetryable reports transient failures.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
