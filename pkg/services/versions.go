package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/flowpatch/flowpatch/pkg/eventbus"
	"github.com/flowpatch/flowpatch/pkg/events"
	"github.com/flowpatch/flowpatch/pkg/models"
	"github.com/flowpatch/flowpatch/pkg/persistence"
	"github.com/google/uuid"
)

// DefaultMaxVersions bounds the per-workflow history. Pruning runs
// synchronously inside every backup, so the bound holds after each write.
const DefaultMaxVersions = 10

// BackupResult describes a stored snapshot.
type BackupResult struct {
	VersionID     string `json:"versionId"`
	VersionNumber int    `json:"versionNumber"`
	Pruned        int    `json:"pruned"`
}

// TruncateResult describes a store-wide history wipe.
type TruncateResult struct {
	Deleted int    `json:"deleted"`
	Message string `json:"message,omitempty"`
}

// Versions manages the append-only workflow version store.
type Versions struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	maxVersions int
}

// NewVersions creates a version service. maxVersions <= 0 selects the
// default bound.
func NewVersions(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger, maxVersions int) *Versions {
	if maxVersions <= 0 {
		maxVersions = DefaultMaxVersions
	}

	return &Versions{
		persistence: p,
		publisher:   publisher,
		logger:      logger.With("module", "versions"),
		maxVersions: maxVersions,
	}
}

// HealthCheck checks the health of the version store.
func (v *Versions) HealthCheck(ctx context.Context) (string, bool) {
	if v.persistence == nil {
		return "Version store not initialized", false
	}

	err := v.persistence.HealthCheck(ctx)
	if err != nil {
		return "Version store is unhealthy: " + err.Error(), false
	}

	return "Version store is healthy", true
}

// CreateBackup snapshots the workflow and prunes the history back to the
// retention bound in the same call. Version IDs are UUIDv7 so they sort by
// creation time; version numbers continue from the highest stored number,
// which keeps them monotonic across pruning and restarts them at 1 only
// after a full history delete.
func (v *Versions) CreateBackup(
	ctx context.Context,
	workflow *models.Workflow,
	trigger models.BackupTrigger,
	operations []string,
	metadata map[string]any,
) (*BackupResult, error) {
	if workflow == nil || workflow.ID == "" {
		return nil, ErrEmptyWorkflowID
	}

	snapshot, err := workflow.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot workflow: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate version ID: %w", err)
	}

	number, err := v.persistence.NextVersionNumber(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}

	version := &models.WorkflowVersion{
		ID:            id.String(),
		WorkflowID:    workflow.ID,
		VersionNumber: number,
		WorkflowName:  workflow.Name,
		Snapshot:      snapshot,
		Trigger:       trigger,
		Operations:    operations,
		Metadata:      metadata,
		CreatedAt:     time.Now().UTC(),
	}

	err = v.persistence.SaveVersion(ctx, version)
	if err != nil {
		return nil, err
	}

	pruned, err := v.persistence.PruneVersions(ctx, workflow.ID, v.maxVersions)
	if err != nil {
		// The snapshot is safe; an oversized history corrects itself on
		// the next backup.
		v.logger.WarnContext(ctx, "Failed to prune version history",
			"workflow_id", workflow.ID, "error", err)
	}

	v.publish(ctx, workflow.ID, events.VersionCreated{
		BaseEvent: v.baseEvent(events.VersionCreatedEvent, workflow.ID),
		VersionID: version.ID, VersionNumber: version.VersionNumber, Trigger: string(trigger),
	})

	if pruned > 0 {
		v.publish(ctx, workflow.ID, events.VersionsPruned{
			BaseEvent: v.baseEvent(events.VersionsPrunedEvent, workflow.ID),
			Pruned:    pruned,
		})
	}

	return &BackupResult{VersionID: version.ID, VersionNumber: version.VersionNumber, Pruned: pruned}, nil
}

// VersionHistory lists stored versions newest first, without snapshots.
// limit <= 0 returns the full history.
func (v *Versions) VersionHistory(ctx context.Context, workflowID string, limit int) ([]models.VersionInfo, error) {
	if workflowID == "" {
		return nil, ErrEmptyWorkflowID
	}

	versions, err := v.persistence.VersionsByWorkflow(ctx, workflowID, limit)
	if err != nil {
		return nil, err
	}

	infos := make([]models.VersionInfo, 0, len(versions))
	for _, version := range versions {
		infos = append(infos, version.Info())
	}

	return infos, nil
}

// Version fetches one full version including its snapshot.
func (v *Versions) Version(ctx context.Context, versionID string) (*models.WorkflowVersion, error) {
	if versionID == "" {
		return nil, ErrEmptyVersionID
	}

	return v.persistence.VersionByID(ctx, versionID)
}

// DeleteVersion removes a single version.
func (v *Versions) DeleteVersion(ctx context.Context, versionID string) error {
	if versionID == "" {
		return ErrEmptyVersionID
	}

	return v.persistence.DeleteVersion(ctx, versionID)
}

// DeleteAllVersions wipes one workflow's history and returns the count.
func (v *Versions) DeleteAllVersions(ctx context.Context, workflowID string) (int, error) {
	if workflowID == "" {
		return 0, ErrEmptyWorkflowID
	}

	return v.persistence.DeleteWorkflowVersions(ctx, workflowID)
}

// PruneVersions trims one workflow's history down to maxVersions, keeping
// the newest entries.
func (v *Versions) PruneVersions(ctx context.Context, workflowID string, maxVersions int) (int, error) {
	if workflowID == "" {
		return 0, ErrEmptyWorkflowID
	}

	if maxVersions <= 0 {
		return 0, ErrInvalidMaxVersions
	}

	pruned, err := v.persistence.PruneVersions(ctx, workflowID, maxVersions)
	if err != nil {
		return 0, err
	}

	if pruned > 0 {
		v.publish(ctx, workflowID, events.VersionsPruned{
			BaseEvent: v.baseEvent(events.VersionsPrunedEvent, workflowID),
			Pruned:    pruned,
		})
	}

	return pruned, nil
}

// TruncateAllVersions deletes every version of every workflow. Without
// confirm it refuses and reports what would happen; this is not an error,
// just a guarded no-op.
func (v *Versions) TruncateAllVersions(ctx context.Context, confirm bool) (*TruncateResult, error) {
	if !confirm {
		return &TruncateResult{
			Deleted: 0,
			Message: "truncate refused: pass confirm=true to delete all stored versions",
		}, nil
	}

	deleted, err := v.persistence.TruncateVersions(ctx)
	if err != nil {
		return nil, err
	}

	v.logger.WarnContext(ctx, "Truncated all workflow versions", "deleted", deleted)

	return &TruncateResult{Deleted: deleted}, nil
}

// CompareVersions reports the structural difference between two stored
// snapshots. Nodes are matched by ID and reported by name.
func (v *Versions) CompareVersions(ctx context.Context, fromID, toID string) (*models.VersionDiff, error) {
	if fromID == "" || toID == "" {
		return nil, ErrEmptyVersionID
	}

	from, err := v.persistence.VersionByID(ctx, fromID)
	if err != nil {
		return nil, err
	}

	to, err := v.persistence.VersionByID(ctx, toID)
	if err != nil {
		return nil, err
	}

	diff := &models.VersionDiff{
		FromVersionID: fromID,
		ToVersionID:   toID,
		AddedNodes:    []string{},
		RemovedNodes:  []string{},
		ModifiedNodes: []string{},
	}

	fromNodes := nodesByID(from.Snapshot)
	toNodes := nodesByID(to.Snapshot)

	for id, node := range toNodes {
		before, ok := fromNodes[id]
		if !ok {
			diff.AddedNodes = append(diff.AddedNodes, node.Name)

			continue
		}

		if !jsonEqual(before, node) {
			diff.ModifiedNodes = append(diff.ModifiedNodes, node.Name)
		}
	}

	for id, node := range fromNodes {
		if _, ok := toNodes[id]; !ok {
			diff.RemovedNodes = append(diff.RemovedNodes, node.Name)
		}
	}

	sort.Strings(diff.AddedNodes)
	sort.Strings(diff.RemovedNodes)
	sort.Strings(diff.ModifiedNodes)

	diff.ConnectionsChanged = !jsonEqual(from.Snapshot.Connections, to.Snapshot.Connections)
	diff.SettingsChanges = settingsChanges(from.Snapshot.Settings, to.Snapshot.Settings)

	return diff, nil
}

// StorageStats aggregates version counts and snapshot sizes per workflow.
func (v *Versions) StorageStats(ctx context.Context) (*models.StorageStats, error) {
	workflowIDs, err := v.persistence.WorkflowIDs(ctx)
	if err != nil {
		return nil, err
	}

	sort.Strings(workflowIDs)

	stats := &models.StorageStats{ByWorkflow: []models.WorkflowStorage{}}

	for _, workflowID := range workflowIDs {
		versions, err := v.persistence.VersionsByWorkflow(ctx, workflowID, 0)
		if err != nil {
			return nil, err
		}

		if len(versions) == 0 {
			continue
		}

		storage := models.WorkflowStorage{
			WorkflowID:   workflowID,
			WorkflowName: versions[0].WorkflowName,
			Versions:     len(versions),
		}

		for _, version := range versions {
			storage.Size += int64(version.SnapshotSize())
		}

		stats.TotalVersions += storage.Versions
		stats.TotalSize += storage.Size
		stats.ByWorkflow = append(stats.ByWorkflow, storage)
	}

	return stats, nil
}

// Workflows lists the workflow IDs that have stored versions.
func (v *Versions) Workflows(ctx context.Context) ([]string, error) {
	return v.persistence.WorkflowIDs(ctx)
}

// MaxVersions returns the configured retention bound.
func (v *Versions) MaxVersions() int {
	return v.maxVersions
}

func (v *Versions) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// Event delivery is best effort; the version store is the source of truth.
func (v *Versions) publish(ctx context.Context, key string, event eventbus.Event) {
	if v.publisher == nil {
		return
	}

	err := v.publisher.Publish(ctx, key, event)
	if err != nil {
		v.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}

func nodesByID(workflow *models.Workflow) map[string]*models.Node {
	nodes := make(map[string]*models.Node, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		nodes[node.ID] = node
	}

	return nodes
}

func jsonEqual(a, b any) bool {
	left, errA := json.Marshal(a)
	right, errB := json.Marshal(b)

	return errA == nil && errB == nil && bytes.Equal(left, right)
}

func settingsChanges(before, after map[string]any) []models.SettingChange {
	keys := map[string]bool{}
	for key := range before {
		keys[key] = true
	}

	for key := range after {
		keys[key] = true
	}

	sorted := make([]string, 0, len(keys))
	for key := range keys {
		sorted = append(sorted, key)
	}

	sort.Strings(sorted)

	changes := []models.SettingChange{}

	for _, key := range sorted {
		if jsonEqual(before[key], after[key]) {
			continue
		}

		changes = append(changes, models.SettingChange{Key: key, Before: before[key], After: after[key]})
	}

	return changes
}
