// Package persistence provides the storage abstraction for workflow version
// history. The store is append-only and bounded per workflow: versions are
// inserted, pruned from the oldest end and deleted, never updated.
package persistence

import (
	"context"

	"github.com/flowpatch/flowpatch/pkg/models"
)

type Persistence interface {
	// SaveVersion inserts a fully populated version row.
	SaveVersion(ctx context.Context, version *models.WorkflowVersion) error

	// NextVersionNumber returns 1 + the current maximum version number for
	// the workflow, or 1 when no versions exist.
	NextVersionNumber(ctx context.Context, workflowID string) (int, error)

	VersionByID(ctx context.Context, id string) (*models.WorkflowVersion, error)
	LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error)

	// VersionsByWorkflow returns versions newest-first. A limit <= 0 means
	// all versions.
	VersionsByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowVersion, error)

	DeleteVersion(ctx context.Context, id string) error
	DeleteWorkflowVersions(ctx context.Context, workflowID string) (int, error)

	// PruneVersions deletes the lowest version numbers beyond maxVersions
	// and returns how many rows were removed.
	PruneVersions(ctx context.Context, workflowID string, maxVersions int) (int, error)

	// TruncateVersions removes every version of every workflow.
	TruncateVersions(ctx context.Context) (int, error)

	CountVersions(ctx context.Context, workflowID string) (int, error)
	WorkflowIDs(ctx context.Context) ([]string, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
