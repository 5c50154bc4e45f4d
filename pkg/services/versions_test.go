package services

import (
	"log/slog"
	"os"
	"testing"

	"github.com/flowpatch/flowpatch/pkg/models"
	"github.com/flowpatch/flowpatch/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestVersions(t *testing.T) *Versions {
	t.Helper()

	return NewVersions(file.NewPersistence(t.TempDir()), nil, testLogger(), 0)
}

func sampleWorkflow(id string) *models.Workflow {
	workflow := &models.Workflow{
		ID:   id,
		Name: "Order Sync",
		Nodes: []*models.Node{
			{ID: "n1", Name: "Webhook", Type: "n8n-nodes-base.webhook", TypeVersion: 2},
			{ID: "n2", Name: "Set", Type: "n8n-nodes-base.set", TypeVersion: 1,
				Parameters: map[string]any{"mode": "manual"}},
		},
		Connections: models.Connections{},
		Settings:    map[string]any{"timezone": "UTC"},
	}
	workflow.Connections.Add("Webhook", models.MainPort, 0, models.Link{Node: "Set", Port: models.MainPort})

	return workflow
}

func TestVersions_CreateBackup(t *testing.T) {
	versions := newTestVersions(t)
	workflow := sampleWorkflow("wf-1")

	backup, err := versions.CreateBackup(t.Context(), workflow,
		models.BackupTriggerPartialUpdate, []string{"addNode"}, map[string]any{"intent": "add a node"})
	require.NoError(t, err)

	assert.NotEmpty(t, backup.VersionID)
	assert.Equal(t, 1, backup.VersionNumber)
	assert.Equal(t, 0, backup.Pruned)

	stored, err := versions.Version(t.Context(), backup.VersionID)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", stored.WorkflowID)
	assert.Equal(t, models.BackupTriggerPartialUpdate, stored.Trigger)
	assert.Equal(t, []string{"addNode"}, stored.Operations)
	assert.Equal(t, "add a node", stored.Metadata["intent"])
	assert.True(t, models.StructurallyEqual(workflow, stored.Snapshot))
}

func TestVersions_BackupSnapshotIsDetached(t *testing.T) {
	versions := newTestVersions(t)
	workflow := sampleWorkflow("wf-1")

	backup, err := versions.CreateBackup(t.Context(), workflow, models.BackupTriggerFullUpdate, nil, nil)
	require.NoError(t, err)

	// Mutating the workflow after the backup must not change the snapshot.
	workflow.Name = "Renamed"
	workflow.Nodes[1].Parameters["mode"] = "expression"

	stored, err := versions.Version(t.Context(), backup.VersionID)
	require.NoError(t, err)
	assert.Equal(t, "Order Sync", stored.Snapshot.Name)
	assert.Equal(t, "manual", stored.Snapshot.Nodes[1].Parameters["mode"])
}

func TestVersions_RetentionBoundHoldsAfterEveryBackup(t *testing.T) {
	versions := newTestVersions(t)
	workflow := sampleWorkflow("wf-1")

	totalPruned := 0

	for i := 0; i < 12; i++ {
		backup, err := versions.CreateBackup(t.Context(), workflow, models.BackupTriggerPartialUpdate, nil, nil)
		require.NoError(t, err)

		totalPruned += backup.Pruned
	}

	history, err := versions.VersionHistory(t.Context(), "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, history, DefaultMaxVersions)
	assert.Equal(t, 2, totalPruned)

	// Numbers keep climbing: the survivors are 3..12, newest first.
	assert.Equal(t, 12, history[0].VersionNumber)
	assert.Equal(t, 3, history[9].VersionNumber)
}

func TestVersions_EmptyWorkflowID(t *testing.T) {
	versions := newTestVersions(t)

	_, err := versions.CreateBackup(t.Context(), &models.Workflow{}, models.BackupTriggerPartialUpdate, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyWorkflowID)

	_, err = versions.VersionHistory(t.Context(), "", 0)
	assert.ErrorIs(t, err, ErrEmptyWorkflowID)
}

func TestVersions_DeleteVersion(t *testing.T) {
	versions := newTestVersions(t)
	workflow := sampleWorkflow("wf-1")

	backup, err := versions.CreateBackup(t.Context(), workflow, models.BackupTriggerPartialUpdate, nil, nil)
	require.NoError(t, err)

	require.NoError(t, versions.DeleteVersion(t.Context(), backup.VersionID))

	_, err = versions.Version(t.Context(), backup.VersionID)
	assert.True(t, IsNotFound(err))
}

func TestVersions_PruneValidatesBound(t *testing.T) {
	versions := newTestVersions(t)

	_, err := versions.PruneVersions(t.Context(), "wf-1", 0)
	assert.ErrorIs(t, err, ErrInvalidMaxVersions)
}

func TestVersions_TruncateRequiresConfirmation(t *testing.T) {
	versions := newTestVersions(t)
	workflow := sampleWorkflow("wf-1")

	_, err := versions.CreateBackup(t.Context(), workflow, models.BackupTriggerPartialUpdate, nil, nil)
	require.NoError(t, err)

	result, err := versions.TruncateAllVersions(t.Context(), false)
	require.NoError(t, err, "a refused truncate is a guarded no-op, not an error")
	assert.Equal(t, 0, result.Deleted)
	assert.Contains(t, result.Message, "confirm")

	history, err := versions.VersionHistory(t.Context(), "wf-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1, "nothing deleted without confirmation")

	result, err = versions.TruncateAllVersions(t.Context(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
}

func TestVersions_CompareVersions(t *testing.T) {
	versions := newTestVersions(t)
	workflow := sampleWorkflow("wf-1")

	from, err := versions.CreateBackup(t.Context(), workflow, models.BackupTriggerPartialUpdate, nil, nil)
	require.NoError(t, err)

	changed, err := workflow.Clone()
	require.NoError(t, err)

	// Remove Set, add HTTP Request, modify Webhook, change a setting.
	changed.Nodes = []*models.Node{
		{ID: "n1", Name: "Webhook", Type: "n8n-nodes-base.webhook", TypeVersion: 2,
			Parameters: map[string]any{"path": "/orders"}},
		{ID: "n3", Name: "HTTP Request", Type: "n8n-nodes-base.httpRequest", TypeVersion: 4},
	}
	changed.Connections = models.Connections{}
	changed.Connections.Add("Webhook", models.MainPort, 0, models.Link{Node: "HTTP Request", Port: models.MainPort})
	changed.Settings["timezone"] = "Europe/Berlin"

	to, err := versions.CreateBackup(t.Context(), changed, models.BackupTriggerPartialUpdate, nil, nil)
	require.NoError(t, err)

	diff, err := versions.CompareVersions(t.Context(), from.VersionID, to.VersionID)
	require.NoError(t, err)

	assert.Equal(t, []string{"HTTP Request"}, diff.AddedNodes)
	assert.Equal(t, []string{"Set"}, diff.RemovedNodes)
	assert.Equal(t, []string{"Webhook"}, diff.ModifiedNodes)
	assert.True(t, diff.ConnectionsChanged)
	require.Len(t, diff.SettingsChanges, 1)
	assert.Equal(t, "timezone", diff.SettingsChanges[0].Key)
	assert.Equal(t, "UTC", diff.SettingsChanges[0].Before)
	assert.Equal(t, "Europe/Berlin", diff.SettingsChanges[0].After)
}

func TestVersions_CompareIdenticalVersions(t *testing.T) {
	versions := newTestVersions(t)
	workflow := sampleWorkflow("wf-1")

	first, err := versions.CreateBackup(t.Context(), workflow, models.BackupTriggerPartialUpdate, nil, nil)
	require.NoError(t, err)

	second, err := versions.CreateBackup(t.Context(), workflow, models.BackupTriggerPartialUpdate, nil, nil)
	require.NoError(t, err)

	diff, err := versions.CompareVersions(t.Context(), first.VersionID, second.VersionID)
	require.NoError(t, err)

	assert.Empty(t, diff.AddedNodes)
	assert.Empty(t, diff.RemovedNodes)
	assert.Empty(t, diff.ModifiedNodes)
	assert.False(t, diff.ConnectionsChanged)
	assert.Empty(t, diff.SettingsChanges)
}

func TestVersions_StorageStats(t *testing.T) {
	versions := newTestVersions(t)

	_, err := versions.CreateBackup(t.Context(), sampleWorkflow("wf-a"), models.BackupTriggerPartialUpdate, nil, nil)
	require.NoError(t, err)

	_, err = versions.CreateBackup(t.Context(), sampleWorkflow("wf-b"), models.BackupTriggerPartialUpdate, nil, nil)
	require.NoError(t, err)

	_, err = versions.CreateBackup(t.Context(), sampleWorkflow("wf-b"), models.BackupTriggerPartialUpdate, nil, nil)
	require.NoError(t, err)

	stats, err := versions.StorageStats(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalVersions)
	assert.Positive(t, stats.TotalSize)
	require.Len(t, stats.ByWorkflow, 2)
	assert.Equal(t, "wf-a", stats.ByWorkflow[0].WorkflowID)
	assert.Equal(t, 1, stats.ByWorkflow[0].Versions)
	assert.Equal(t, 2, stats.ByWorkflow[1].Versions)
}

func TestVersions_VersionIDsAreTimeOrdered(t *testing.T) {
	versions := newTestVersions(t)
	workflow := sampleWorkflow("wf-1")

	first, err := versions.CreateBackup(t.Context(), workflow, models.BackupTriggerPartialUpdate, nil, nil)
	require.NoError(t, err)

	second, err := versions.CreateBackup(t.Context(), workflow, models.BackupTriggerPartialUpdate, nil, nil)
	require.NoError(t, err)

	// UUIDv7 identifiers sort by creation time.
	assert.Less(t, first.VersionID, second.VersionID)
}
