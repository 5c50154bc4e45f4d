package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flowpatch/flowpatch/pkg/models"
	"github.com/flowpatch/flowpatch/pkg/persistence"
)

const versionColumns = `
	id
  , workflow_id
  , version_number
  , workflow_name
  , backup_trigger
  , snapshot
  , operations
  , fix_types
  , metadata
  , created_at
`

// SaveVersion inserts a fully populated version row.
func (p *Persistence) SaveVersion(ctx context.Context, version *models.WorkflowVersion) error {
	snapshotJSON, err := json.Marshal(version.Snapshot)
	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ID, err)
	}

	operationsJSON, err := json.Marshal(version.Operations)
	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ID, err)
	}

	fixTypesJSON, err := json.Marshal(version.FixTypes)
	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ID, err)
	}

	metadataJSON, err := json.Marshal(version.Metadata)
	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ID, err)
	}

	query := `
		INSERT INTO workflow_versions (
			id, workflow_id, version_number, workflow_name, backup_trigger,
			snapshot, operations, fix_types, metadata, size_bytes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = p.db.ExecContext(ctx, query,
		version.ID,
		version.WorkflowID,
		version.VersionNumber,
		version.WorkflowName,
		string(version.Trigger),
		snapshotJSON,
		operationsJSON,
		fixTypesJSON,
		metadataJSON,
		len(snapshotJSON),
		version.CreatedAt,
	)
	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ID, err)
	}

	return nil
}

// NextVersionNumber computes 1 + the stored maximum so numbering stays
// monotonic across pruning and restarts at 1 after a full delete.
func (p *Persistence) NextVersionNumber(ctx context.Context, workflowID string) (int, error) {
	var next int

	query := `SELECT COALESCE(MAX(version_number), 0) + 1 FROM workflow_versions WHERE workflow_id = $1`

	err := p.db.QueryRowContext(ctx, query, workflowID).Scan(&next)
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("NextVersionNumber", workflowID, err)
	}

	return next, nil
}

func (p *Persistence) VersionByID(ctx context.Context, id string) (*models.WorkflowVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM workflow_versions WHERE id = $1`

	version, err := scanVersion(p.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewVersionError("VersionByID", id, persistence.ErrVersionNotFound)
		}

		return nil, persistence.NewVersionError("VersionByID", id, err)
	}

	return version, nil
}

func (p *Persistence) LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM workflow_versions
		WHERE workflow_id = $1
		ORDER BY version_number DESC
		LIMIT 1
	`

	version, err := scanVersion(p.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowVersionError("LatestVersion", workflowID, persistence.ErrNoVersions)
		}

		return nil, persistence.NewWorkflowVersionError("LatestVersion", workflowID, err)
	}

	return version, nil
}

func (p *Persistence) VersionsByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM workflow_versions
		WHERE workflow_id = $1
		ORDER BY version_number DESC
	`

	args := []any{workflowID}

	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewWorkflowVersionError("VersionsByWorkflow", workflowID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	versions := make([]*models.WorkflowVersion, 0)

	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, persistence.NewWorkflowVersionError("VersionsByWorkflow", workflowID, err)
		}

		versions = append(versions, version)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewWorkflowVersionError("VersionsByWorkflow", workflowID, err)
	}

	return versions, nil
}

func (p *Persistence) DeleteVersion(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM workflow_versions WHERE id = $1`, id)
	if err != nil {
		return persistence.NewVersionError("DeleteVersion", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewVersionError("DeleteVersion", id, err)
	}

	if affected == 0 {
		return persistence.NewVersionError("DeleteVersion", id, persistence.ErrVersionNotFound)
	}

	return nil
}

func (p *Persistence) DeleteWorkflowVersions(ctx context.Context, workflowID string) (int, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM workflow_versions WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("DeleteWorkflowVersions", workflowID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("DeleteWorkflowVersions", workflowID, err)
	}

	return int(affected), nil
}

// PruneVersions deletes the lowest version numbers beyond maxVersions.
func (p *Persistence) PruneVersions(ctx context.Context, workflowID string, maxVersions int) (int, error) {
	if maxVersions < 0 {
		maxVersions = 0
	}

	query := `
		DELETE FROM workflow_versions
		WHERE workflow_id = $1
		  AND version_number NOT IN (
			SELECT version_number
			FROM workflow_versions
			WHERE workflow_id = $1
			ORDER BY version_number DESC
			LIMIT $2
		  )
	`

	result, err := p.db.ExecContext(ctx, query, workflowID, maxVersions)
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("PruneVersions", workflowID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("PruneVersions", workflowID, err)
	}

	return int(affected), nil
}

func (p *Persistence) TruncateVersions(ctx context.Context) (int, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM workflow_versions`)
	if err != nil {
		return 0, fmt.Errorf("failed to truncate workflow versions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to truncate workflow versions: %w", err)
	}

	return int(affected), nil
}

func (p *Persistence) CountVersions(ctx context.Context, workflowID string) (int, error) {
	var count int

	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_versions WHERE workflow_id = $1`, workflowID).Scan(&count)
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("CountVersions", workflowID, err)
	}

	return count, nil
}

func (p *Persistence) WorkflowIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT workflow_id FROM workflow_versions ORDER BY workflow_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow ids: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	ids := make([]string, 0)

	for rows.Next() {
		var id string

		err = rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow id: %w", err)
		}

		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow ids: %w", err)
	}

	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*models.WorkflowVersion, error) {
	var (
		version        models.WorkflowVersion
		trigger        string
		snapshotJSON   []byte
		operationsJSON []byte
		fixTypesJSON   []byte
		metadataJSON   []byte
	)

	err := row.Scan(
		&version.ID,
		&version.WorkflowID,
		&version.VersionNumber,
		&version.WorkflowName,
		&trigger,
		&snapshotJSON,
		&operationsJSON,
		&fixTypesJSON,
		&metadataJSON,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	version.Trigger = models.BackupTrigger(trigger)

	err = json.Unmarshal(snapshotJSON, &version.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	if len(operationsJSON) > 0 {
		err = json.Unmarshal(operationsJSON, &version.Operations)
		if err != nil {
			return nil, fmt.Errorf("failed to parse operations: %w", err)
		}
	}

	if len(fixTypesJSON) > 0 {
		err = json.Unmarshal(fixTypesJSON, &version.FixTypes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse fix types: %w", err)
		}
	}

	if len(metadataJSON) > 0 {
		err = json.Unmarshal(metadataJSON, &version.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
	}

	return &version, nil
}
