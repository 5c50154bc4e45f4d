// Package platform defines the contract with the external workflow
// platform that owns the canonical workflow definitions. This service only
// ever fetches a workflow, mutates a transient copy and pushes one full
// replacement back; execution, persistence and concurrency control of the
// canonical copy belong to the platform.
package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowpatch/flowpatch/pkg/models"
)

// ErrWorkflowNotFound indicates the platform does not know the workflow ID.
var ErrWorkflowNotFound = errors.New("workflow not found")

// UpstreamError is an opaque passthrough for a failed platform call.
type UpstreamError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("platform %s failed with status %d: %s", e.Op, e.StatusCode, e.Detail)
}

// IsUpstreamError checks if an error originated from a platform call.
func IsUpstreamError(err error) bool {
	var upstream *UpstreamError

	return errors.As(err, &upstream)
}

// Client is the update contract consumed by the mutation and restore
// pipelines. Implementations must not retry internally; any failure is
// terminal for the calling pipeline.
type Client interface {
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)

	// UpdateWorkflow replaces the whole workflow definition.
	UpdateWorkflow(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error)

	ActivateWorkflow(ctx context.Context, id string) error
	DeactivateWorkflow(ctx context.Context, id string) error
}
