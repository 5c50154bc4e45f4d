// Package diff applies ordered batches of graph operations to a workflow
// copy, in atomic or best-effort mode.
package diff

import (
	"errors"
	"fmt"

	"github.com/flowpatch/flowpatch/pkg/models"
)

// Standard operation error types. The service layer maps these onto its own
// taxonomy; within this package they classify per-operation failures.
var (
	// ErrDuplicateName indicates an addNode collides with an existing node name.
	ErrDuplicateName = errors.New("duplicate node name")

	// ErrNodeNotFound indicates a node reference did not resolve.
	ErrNodeNotFound = errors.New("node not found")

	// ErrConnectionNotFound indicates a connection endpoint pair did not resolve.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrInvalidOperation indicates malformed operation input.
	ErrInvalidOperation = errors.New("invalid operation")
)

// OperationError wraps an operation failure with its batch position.
type OperationError struct {
	Index int
	Type  models.OperationType
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %d (%s) failed: %v", e.Index, e.Type, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsDuplicateName checks if an error indicates a node name collision.
func IsDuplicateName(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}

// IsNodeNotFound checks if an error indicates a missing node.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

// IsConnectionNotFound checks if an error indicates a missing connection.
func IsConnectionNotFound(err error) bool {
	return errors.Is(err, ErrConnectionNotFound)
}
