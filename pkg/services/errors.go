// Package services implements the mutation, versioning and restore
// pipelines on top of the diff engine, the graph validator, the version
// store and the platform client.
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flowpatch/flowpatch/pkg/persistence"
	"github.com/flowpatch/flowpatch/pkg/platform"
)

// Business logic errors that map to client-side HTTP statuses.
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrEmptyWorkflowID    = errors.New("workflow ID cannot be empty")
	ErrEmptyVersionID     = errors.New("version ID cannot be empty")
	ErrNoOperations       = errors.New("operation batch cannot be empty")
	ErrInvalidMaxVersions = errors.New("max versions must be positive")

	// Destructive operations require explicit confirmation (409 Conflict).
	ErrConfirmationRequired = errors.New("confirmation required")
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

// StructuralError is a whole-graph validation rejection. It carries the
// validator findings plus recovery guidance so an automated caller can
// retry with a corrected operation list.
type StructuralError struct {
	Findings []string
	Guidance []string
}

func (e *StructuralError) Error() string {
	return "workflow failed structural validation: " + strings.Join(e.Findings, "; ")
}

// IsStructuralError checks if an error is a graph validation rejection
// that should return HTTP 422.
func IsStructuralError(err error) bool {
	var structural *StructuralError

	return errors.As(err, &structural)
}

// IsValidationError checks if an error is a request validation error that
// should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyWorkflowID) ||
		errors.Is(err, ErrEmptyVersionID) ||
		errors.Is(err, ErrNoOperations) ||
		errors.Is(err, ErrInvalidMaxVersions)
}

// IsNotFound checks if an error means a workflow or version does not exist
// and should return HTTP 404.
func IsNotFound(err error) bool {
	return errors.Is(err, platform.ErrWorkflowNotFound) ||
		persistence.IsVersionNotFound(err) ||
		persistence.IsNoVersions(err)
}

// IsConfirmationRequired checks if a destructive operation was refused for
// lack of explicit confirmation.
func IsConfirmationRequired(err error) bool {
	return errors.Is(err, ErrConfirmationRequired)
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
