// Package persistence provides standardized error types for version store
// operations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionNotFound indicates a version was not found by the given identifier.
	ErrVersionNotFound = errors.New("version not found")

	// ErrNoVersions indicates a workflow has no stored versions.
	ErrNoVersions = errors.New("no versions for workflow")
)

// VersionError wraps version-store errors with additional context.
type VersionError struct {
	Op         string // Operation being performed (e.g., "SaveVersion", "Prune")
	VersionID  string // Version ID if applicable
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
}

func (e *VersionError) Error() string {
	target := e.VersionID
	if target == "" {
		target = "workflow " + e.WorkflowID
	}

	return fmt.Sprintf("%s failed for %s: %v", e.Op, target, e.Err)
}

func (e *VersionError) Unwrap() error {
	return e.Err
}

func (e *VersionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewVersionError creates a version error scoped to one version ID.
func NewVersionError(op, versionID string, err error) *VersionError {
	return &VersionError{Op: op, VersionID: versionID, Err: err}
}

// NewWorkflowVersionError creates a version error scoped to one workflow.
func NewWorkflowVersionError(op, workflowID string, err error) *VersionError {
	return &VersionError{Op: op, WorkflowID: workflowID, Err: err}
}

// IsVersionNotFound checks if an error indicates a missing version.
func IsVersionNotFound(err error) bool {
	return errors.Is(err, ErrVersionNotFound)
}

// IsNoVersions checks if an error indicates an empty workflow history.
func IsNoVersions(err error) bool {
	return errors.Is(err, ErrNoVersions)
}
