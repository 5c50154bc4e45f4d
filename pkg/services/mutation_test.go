package services

import (
	"errors"
	"testing"

	"github.com/flowpatch/flowpatch/pkg/capabilities"
	"github.com/flowpatch/flowpatch/pkg/diff"
	"github.com/flowpatch/flowpatch/pkg/models"
	"github.com/flowpatch/flowpatch/pkg/persistence/file"
	"github.com/flowpatch/flowpatch/pkg/platform"
	"github.com/flowpatch/flowpatch/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutationFixture struct {
	client    *platform.InMemoryClient
	versions  *Versions
	mutations *Mutations
}

func newMutationFixture(t *testing.T, skipValidation bool) *mutationFixture {
	t.Helper()

	logger := testLogger()
	client := platform.NewInMemoryClient()
	versions := NewVersions(file.NewPersistence(t.TempDir()), nil, logger, 0)
	mutations := NewMutations(client,
		diff.NewEngine(logger),
		validation.NewValidator(capabilities.NewStaticCatalog()),
		versions, nil, logger, skipValidation)

	return &mutationFixture{client: client, versions: versions, mutations: mutations}
}

func (f *mutationFixture) seed(t *testing.T, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, f.client.Seed(workflow))
}

func boolPtr(v bool) *bool { return &v }

func TestApplyDiff_Success(t *testing.T) {
	fixture := newMutationFixture(t, false)
	fixture.seed(t, sampleWorkflow("wf-1"))

	req := &models.DiffRequest{
		WorkflowID: "wf-1",
		Intent:     "route orders to the CRM",
		Operations: []models.DiffOperation{
			&models.AddNodeOperation{Node: &models.Node{
				ID: "n3", Name: "HTTP Request", Type: "n8n-nodes-base.httpRequest", TypeVersion: 4,
			}},
			&models.AddConnectionOperation{Source: "Set", Target: "HTTP Request"},
		},
	}

	result, err := fixture.mutations.ApplyDiff(t.Context(), req)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.OperationsApplied)
	require.NotNil(t, result.Workflow)
	assert.Len(t, result.Workflow.Nodes, 3)

	// The mutated definition was pushed.
	pushed, err := fixture.client.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Len(t, pushed.Nodes, 3)
	assert.NotNil(t, pushed.NodeByName("HTTP Request"))

	// A pre-apply backup of the original state exists.
	history, err := fixture.versions.VersionHistory(t.Context(), "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.BackupTriggerPartialUpdate, history[0].Trigger)
	assert.Equal(t, []string{"addNode", "addConnection"}, history[0].Operations)

	backup, err := fixture.versions.Version(t.Context(), history[0].ID)
	require.NoError(t, err)
	assert.Len(t, backup.Snapshot.Nodes, 2, "backup holds the pre-mutation state")
	assert.Equal(t, "route orders to the CRM", backup.Metadata["intent"])
}

func TestApplyDiff_RequestGuards(t *testing.T) {
	fixture := newMutationFixture(t, false)

	_, err := fixture.mutations.ApplyDiff(t.Context(), &models.DiffRequest{
		Operations: []models.DiffOperation{&models.AddTagOperation{Tag: "x"}},
	})
	assert.ErrorIs(t, err, ErrEmptyWorkflowID)

	_, err = fixture.mutations.ApplyDiff(t.Context(), &models.DiffRequest{WorkflowID: "wf-1"})
	assert.ErrorIs(t, err, ErrNoOperations)
}

func TestApplyDiff_WorkflowNotFound(t *testing.T) {
	fixture := newMutationFixture(t, false)

	_, err := fixture.mutations.ApplyDiff(t.Context(), &models.DiffRequest{
		WorkflowID: "missing",
		Operations: []models.DiffOperation{&models.AddTagOperation{Tag: "x"}},
	})

	assert.ErrorIs(t, err, platform.ErrWorkflowNotFound)
}

func TestApplyDiff_AtomicFailureDoesNotPush(t *testing.T) {
	fixture := newMutationFixture(t, false)
	fixture.seed(t, sampleWorkflow("wf-1"))

	req := &models.DiffRequest{
		WorkflowID:   "wf-1",
		CreateBackup: boolPtr(false),
		Operations: []models.DiffOperation{
			&models.UpdateNameOperation{Name: "Renamed"},
			&models.RemoveNodeOperation{NodeRef: models.NodeRef{NodeName: "Ghost"}},
		},
	}

	result, err := fixture.mutations.ApplyDiff(t.Context(), req)
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)

	pushed, err := fixture.client.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Order Sync", pushed.Name, "failed batch leaves the platform untouched")
}

func TestApplyDiff_ValidationRejectionDoesNotPush(t *testing.T) {
	fixture := newMutationFixture(t, false)
	fixture.seed(t, sampleWorkflow("wf-1"))

	// Removing the only edge leaves two nodes with no connections, which the
	// whole-graph check rejects.
	req := &models.DiffRequest{
		WorkflowID:   "wf-1",
		CreateBackup: boolPtr(false),
		Operations: []models.DiffOperation{
			&models.RemoveConnectionOperation{Source: "Webhook", Target: "Set"},
		},
	}

	result, err := fixture.mutations.ApplyDiff(t.Context(), req)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
	assert.NotEmpty(t, result.Guidance)

	pushed, err := fixture.client.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.True(t, pushed.Connections.HasIncoming("Set"), "rejected graph was not pushed")
}

func TestApplyDiff_SkipValidationPushesWithWarning(t *testing.T) {
	fixture := newMutationFixture(t, true)
	fixture.seed(t, sampleWorkflow("wf-1"))

	req := &models.DiffRequest{
		WorkflowID:   "wf-1",
		CreateBackup: boolPtr(false),
		Operations: []models.DiffOperation{
			&models.RemoveConnectionOperation{Source: "Webhook", Target: "Set"},
		},
	}

	result, err := fixture.mutations.ApplyDiff(t.Context(), req)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Warnings, "structural validation was skipped")

	pushed, err := fixture.client.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.False(t, pushed.Connections.HasIncoming("Set"))
}

func TestApplyDiff_ValidateOnly(t *testing.T) {
	fixture := newMutationFixture(t, false)
	fixture.seed(t, sampleWorkflow("wf-1"))

	req := &models.DiffRequest{
		WorkflowID:   "wf-1",
		ValidateOnly: true,
		Operations: []models.DiffOperation{
			&models.UpdateNameOperation{Name: "Renamed"},
		},
	}

	result, err := fixture.mutations.ApplyDiff(t.Context(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Renamed", result.Workflow.Name)

	// Dry runs neither push nor back up.
	pushed, err := fixture.client.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Order Sync", pushed.Name)

	history, err := fixture.versions.VersionHistory(t.Context(), "wf-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestApplyDiff_ValidateOnlyReportsRejection(t *testing.T) {
	fixture := newMutationFixture(t, false)
	fixture.seed(t, sampleWorkflow("wf-1"))

	req := &models.DiffRequest{
		WorkflowID:   "wf-1",
		ValidateOnly: true,
		Operations: []models.DiffOperation{
			&models.RemoveConnectionOperation{Source: "Webhook", Target: "Set"},
		},
	}

	result, err := fixture.mutations.ApplyDiff(t.Context(), req)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}

func TestApplyDiff_BackupOptOut(t *testing.T) {
	fixture := newMutationFixture(t, false)
	fixture.seed(t, sampleWorkflow("wf-1"))

	req := &models.DiffRequest{
		WorkflowID:   "wf-1",
		CreateBackup: boolPtr(false),
		Operations: []models.DiffOperation{
			&models.AddTagOperation{Tag: "reviewed"},
		},
	}

	result, err := fixture.mutations.ApplyDiff(t.Context(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)

	history, err := fixture.versions.VersionHistory(t.Context(), "wf-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestApplyDiff_BestEffortPartialSuccessPushes(t *testing.T) {
	fixture := newMutationFixture(t, false)
	fixture.seed(t, sampleWorkflow("wf-1"))

	req := &models.DiffRequest{
		WorkflowID:      "wf-1",
		ContinueOnError: true,
		CreateBackup:    boolPtr(false),
		Operations: []models.DiffOperation{
			&models.AddTagOperation{Tag: "reviewed"},
			&models.RemoveNodeOperation{NodeRef: models.NodeRef{NodeName: "Ghost"}},
			&models.UpdateNameOperation{Name: "Order Sync v2"},
		},
	}

	result, err := fixture.mutations.ApplyDiff(t.Context(), req)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.OperationsApplied)
	assert.Equal(t, []int{0, 2}, result.Applied)
	require.Len(t, result.Failed, 1)

	pushed, err := fixture.client.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Order Sync v2", pushed.Name)
	assert.True(t, pushed.HasTag("reviewed"))
}

func TestApplyDiff_UpstreamPushFailureIsAnError(t *testing.T) {
	fixture := newMutationFixture(t, false)
	fixture.seed(t, sampleWorkflow("wf-1"))

	upstream := errors.New("upstream unavailable")
	fixture.client.UpdateError = upstream

	_, err := fixture.mutations.ApplyDiff(t.Context(), &models.DiffRequest{
		WorkflowID:   "wf-1",
		CreateBackup: boolPtr(false),
		Operations: []models.DiffOperation{
			&models.AddTagOperation{Tag: "reviewed"},
		},
	})

	assert.ErrorIs(t, err, upstream)
}
