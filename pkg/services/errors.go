// Package services provides the workflow management and execution history
// operations behind the HTTP API, with standardized service errors.
package services

import (
	"errors"
	"fmt"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest    = errors.New("invalid request")
	ErrTenantRequired    = errors.New("tenant ID is required")
	ErrInvalidStatus     = errors.New("invalid execution status")
	ErrInvalidOrigin     = errors.New("invalid action origin")
	ErrInvalidConnection = errors.New("invalid connection")

	// Not Found Errors (404 Not Found).
	ErrWorkflowNotFound  = persistence.ErrWorkflowNotFound
	ErrExecutionNotFound = persistence.ErrExecutionNotFound

	// Unprocessable workflow graphs (422 Unprocessable Entity).
	ErrWorkflowInvalid = errors.New("workflow is not valid")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrTenantRequired) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidOrigin) ||
		errors.Is(err, ErrInvalidConnection)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) || errors.Is(err, ErrExecutionNotFound)
}

// IsUnprocessableError checks if an error is a graph problem that should return HTTP 422.
func IsUnprocessableError(err error) bool {
	return errors.Is(err, ErrWorkflowInvalid)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
