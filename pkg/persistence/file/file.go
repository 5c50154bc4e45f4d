// Package file provides a file-based version store, one JSON document per
// version under <root>/versions/<workflowID>/. It backs local development
// and tests; production deployments use the PostgreSQL or Redis backends.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/flowpatch/flowpatch/pkg/models"
	"github.com/flowpatch/flowpatch/pkg/persistence"
)

const versionsDir = "versions"

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root string
	mu   sync.Mutex
}

// NewPersistence creates a file-backed version store rooted at the given
// directory. A "file://" prefix is stripped, matching the database-url
// convention of the API binary.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

func (p *Persistence) workflowDir(workflowID string) string {
	return filepath.Join(p.root, versionsDir, workflowID)
}

func (p *Persistence) versionPath(workflowID, versionID string) string {
	return filepath.Join(p.workflowDir(workflowID), versionID+".json")
}

// SaveVersion writes the version as a JSON document.
func (p *Persistence) SaveVersion(_ context.Context, version *models.WorkflowVersion) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	dir := p.workflowDir(version.WorkflowID)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ID, err)
	}

	data, err := json.MarshalIndent(version, "", "  ")
	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ID, err)
	}

	err = os.WriteFile(p.versionPath(version.WorkflowID, version.ID), data, 0o644)
	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ID, err)
	}

	return nil
}

// NextVersionNumber derives the next number from the stored maximum rather
// than a counter, so numbering restarts at 1 after a full history delete
// and stays monotonic across pruning.
func (p *Persistence) NextVersionNumber(ctx context.Context, workflowID string) (int, error) {
	versions, err := p.loadWorkflowVersions(workflowID)
	if err != nil {
		return 0, err
	}

	maxNumber := 0

	for _, version := range versions {
		if version.VersionNumber > maxNumber {
			maxNumber = version.VersionNumber
		}
	}

	return maxNumber + 1, nil
}

func (p *Persistence) VersionByID(_ context.Context, id string) (*models.WorkflowVersion, error) {
	workflowIDs, err := p.workflowDirs()
	if err != nil {
		return nil, err
	}

	for _, workflowID := range workflowIDs {
		version, err := p.loadVersion(p.versionPath(workflowID, id))
		if err == nil {
			return version, nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return nil, persistence.NewVersionError("VersionByID", id, persistence.ErrVersionNotFound)
}

func (p *Persistence) LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	versions, err := p.VersionsByWorkflow(ctx, workflowID, 1)
	if err != nil {
		return nil, err
	}

	if len(versions) == 0 {
		return nil, persistence.NewWorkflowVersionError("LatestVersion", workflowID, persistence.ErrNoVersions)
	}

	return versions[0], nil
}

func (p *Persistence) VersionsByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.WorkflowVersion, error) {
	versions, err := p.loadWorkflowVersions(workflowID)
	if err != nil {
		return nil, err
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].VersionNumber > versions[j].VersionNumber
	})

	if limit > 0 && len(versions) > limit {
		versions = versions[:limit]
	}

	return versions, nil
}

func (p *Persistence) DeleteVersion(ctx context.Context, id string) error {
	version, err := p.VersionByID(ctx, id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = os.Remove(p.versionPath(version.WorkflowID, id))
	if err != nil {
		return persistence.NewVersionError("DeleteVersion", id, err)
	}

	return nil
}

func (p *Persistence) DeleteWorkflowVersions(_ context.Context, workflowID string) (int, error) {
	versions, err := p.loadWorkflowVersions(workflowID)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = os.RemoveAll(p.workflowDir(workflowID))
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("DeleteWorkflowVersions", workflowID, err)
	}

	return len(versions), nil
}

func (p *Persistence) PruneVersions(ctx context.Context, workflowID string, maxVersions int) (int, error) {
	versions, err := p.VersionsByWorkflow(ctx, workflowID, 0)
	if err != nil {
		return 0, err
	}

	if maxVersions < 0 {
		maxVersions = 0
	}

	if len(versions) <= maxVersions {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pruned := 0

	// Newest-first ordering: everything past maxVersions is oldest.
	for _, version := range versions[maxVersions:] {
		err = os.Remove(p.versionPath(workflowID, version.ID))
		if err != nil {
			return pruned, persistence.NewVersionError("PruneVersions", version.ID, err)
		}

		pruned++
	}

	return pruned, nil
}

func (p *Persistence) TruncateVersions(ctx context.Context) (int, error) {
	workflowIDs, err := p.workflowDirs()
	if err != nil {
		return 0, err
	}

	deleted := 0

	for _, workflowID := range workflowIDs {
		count, err := p.DeleteWorkflowVersions(ctx, workflowID)
		if err != nil {
			return deleted, err
		}

		deleted += count
	}

	return deleted, nil
}

func (p *Persistence) CountVersions(_ context.Context, workflowID string) (int, error) {
	versions, err := p.loadWorkflowVersions(workflowID)
	if err != nil {
		return 0, err
	}

	return len(versions), nil
}

func (p *Persistence) WorkflowIDs(_ context.Context) ([]string, error) {
	return p.workflowDirs()
}

// HealthCheck verifies the root directory exists or can be created.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return os.MkdirAll(filepath.Join(p.root, versionsDir), 0o755)
}

// Close performs any necessary cleanup. For file-based persistence, there
// is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) workflowDirs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, versionsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("failed to list version directories: %w", err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}

	return ids, nil
}

func (p *Persistence) loadWorkflowVersions(workflowID string) ([]*models.WorkflowVersion, error) {
	entries, err := os.ReadDir(p.workflowDir(workflowID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*models.WorkflowVersion{}, nil
		}

		return nil, persistence.NewWorkflowVersionError("loadWorkflowVersions", workflowID, err)
	}

	versions := make([]*models.WorkflowVersion, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		version, err := p.loadVersion(filepath.Join(p.workflowDir(workflowID), entry.Name()))
		if err != nil {
			return nil, err
		}

		versions = append(versions, version)
	}

	return versions, nil
}

func (p *Persistence) loadVersion(path string) (*models.WorkflowVersion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	version := &models.WorkflowVersion{}

	err = json.Unmarshal(data, version)
	if err != nil {
		return nil, fmt.Errorf("failed to parse version file %s: %w", path, err)
	}

	return version, nil
}
