package diff

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/flowpatch/flowpatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func linearWorkflow() *models.Workflow {
	workflow := &models.Workflow{
		ID:   "wf-1",
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

func TestEngine_AtomicSuccess(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.AddNodeOperation{Node: &models.Node{
				ID: "n3", Name: "HTTP Request", Type: "n8n-nodes-base.httpRequest", TypeVersion: 4,
			}},
			&models.AddConnectionOperation{Source: "Set", Target: "HTTP Request"},
			&models.UpdateNameOperation{Name: "Order Sync v2"},
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.OperationsApplied)
	assert.Equal(t, []int{0, 1, 2}, result.Applied)
	assert.Empty(t, result.Failed)

	assert.Equal(t, "Order Sync v2", result.Workflow.Name)
	assert.Len(t, result.Workflow.Nodes, 3)
	assert.True(t, result.Workflow.Connections.HasIncoming("HTTP Request"))

	// The input workflow stays untouched.
	assert.Equal(t, "Order Sync", workflow.Name)
	assert.Len(t, workflow.Nodes, 2)
}

func TestEngine_AtomicFailureLeavesWorkflowUntouched(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()

	before, err := json.Marshal(workflow)
	require.NoError(t, err)

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.UpdateNameOperation{Name: "Renamed"},
			&models.RemoveNodeOperation{NodeRef: models.NodeRef{NodeName: "missing"}},
			&models.AddTagOperation{Tag: "prod"},
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, result.Applied)
	assert.Equal(t, 0, result.OperationsApplied)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)
	assert.Equal(t, "removeNode", result.Failed[0].Type)

	after, err := json.Marshal(result.Workflow)
	require.NoError(t, err)
	assert.Equal(t, before, after, "atomic failure must return the original workflow byte for byte")
}

func TestEngine_BestEffortRecordsFailuresAndContinues(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID:      workflow.ID,
		ContinueOnError: true,
		Operations: []models.DiffOperation{
			&models.AddTagOperation{Tag: "prod"},
			&models.RemoveNodeOperation{NodeRef: models.NodeRef{NodeName: "missing"}},
			&models.UpdateNameOperation{Name: "Order Sync v2"},
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.OperationsApplied)
	assert.Equal(t, []int{0, 2}, result.Applied)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)

	assert.Equal(t, "Order Sync v2", result.Workflow.Name)
	assert.True(t, result.Workflow.HasTag("prod"))
}

func TestEngine_BestEffortAllFailed(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID:      workflow.ID,
		ContinueOnError: true,
		Operations: []models.DiffOperation{
			&models.RemoveNodeOperation{NodeRef: models.NodeRef{NodeName: "missing"}},
			&models.MoveNodeOperation{NodeRef: models.NodeRef{NodeID: "bogus"}},
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Success, "nothing applied means failure even in best-effort mode")
	assert.Len(t, result.Failed, 2)
	assert.True(t, models.StructurallyEqual(workflow, result.Workflow))
}

func TestEngine_DuplicateNodeName(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.AddNodeOperation{Node: &models.Node{Name: "Set", Type: "n8n-nodes-base.set"}},
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Message, "already exists")
}

func TestEngine_NameTakesPrecedenceOverID(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()

	// The ref carries the ID of Webhook but the name of Set; the name wins.
	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.DisableNodeOperation{NodeRef: models.NodeRef{NodeID: "n1", NodeName: "Set"}},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.True(t, result.Workflow.NodeByName("Set").Disabled)
	assert.False(t, result.Workflow.NodeByName("Webhook").Disabled)
}

func TestEngine_RemoveNodePrunesItsConnections(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.RemoveNodeOperation{NodeRef: models.NodeRef{NodeName: "Set"}},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Len(t, result.Workflow.Nodes, 1)
	assert.False(t, result.Workflow.Connections.HasIncoming("Set"))
}

func TestEngine_UpdateNodeRejectsNamePath(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.UpdateNodeOperation{
				NodeRef: models.NodeRef{NodeName: "Set"},
				Updates: map[string]any{"name": "Renamed"},
			},
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Message, "cannot change the node name")
}

func TestEngine_UpdateNodeDottedPath(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.UpdateNodeOperation{
				NodeRef: models.NodeRef{NodeName: "Set"},
				Updates: map[string]any{
					"parameters.mode":                "expression",
					"parameters.options.dotNotation": true,
				},
			},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	node := result.Workflow.NodeByName("Set")
	assert.Equal(t, "expression", node.Parameters["mode"])

	options, ok := node.Parameters["options"].(map[string]any)
	require.True(t, ok, "intermediate objects are created on demand")
	assert.Equal(t, true, options["dotNotation"])
}

func TestEngine_RemoveConnectionIgnoreErrors(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.RemoveConnectionOperation{Source: "Set", Target: "Webhook", IgnoreErrors: true},
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.OperationsApplied)
}

func TestEngine_RewireConnection(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()
	workflow.Nodes = append(workflow.Nodes, &models.Node{
		ID: "n3", Name: "HTTP Request", Type: "n8n-nodes-base.httpRequest", TypeVersion: 4,
	})

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.RewireConnectionOperation{Source: "Webhook", From: "Set", To: "HTTP Request"},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.True(t, result.Workflow.Connections.HasIncoming("HTTP Request"))
	assert.False(t, result.Workflow.Connections.HasIncoming("Set"))
}

func TestEngine_CleanStaleConnections(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()
	workflow.Connections.Add("Webhook", models.MainPort, 0, models.Link{Node: "Ghost", Port: models.MainPort})
	workflow.Connections.Add("Phantom", models.MainPort, 0, models.Link{Node: "Set", Port: models.MainPort})

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.CleanStaleConnectionsOperation{},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "removed 2 stale connections")

	_, phantomLeft := result.Workflow.Connections["Phantom"]
	assert.False(t, phantomLeft)
	assert.False(t, result.Workflow.Connections.HasIncoming("Ghost"))
	assert.True(t, result.Workflow.Connections.HasIncoming("Set"))
}

func TestEngine_CleanStaleConnectionsDryRun(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()
	workflow.Connections.Add("Webhook", models.MainPort, 0, models.Link{Node: "Ghost", Port: models.MainPort})

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.CleanStaleConnectionsOperation{DryRun: true},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "dry run")
	assert.True(t, result.Workflow.Connections.HasIncoming("Ghost"), "dry run must not mutate")
}

func TestEngine_TagOperationsAreIdempotent(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()
	workflow.Tags = []string{"prod"}

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.AddTagOperation{Tag: "prod"},
			&models.RemoveTagOperation{Tag: "absent"},
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.OperationsApplied)
	assert.Equal(t, []string{"prod"}, result.Workflow.Tags)
}

func TestEngine_UpdateSettingsMerges(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{
			&models.UpdateSettingsOperation{Settings: map[string]any{"executionOrder": "v1"}},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, "UTC", result.Workflow.Settings["timezone"])
	assert.Equal(t, "v1", result.Workflow.Settings["executionOrder"])
}

func TestEngine_EmptyBatchSucceeds(t *testing.T) {
	engine := NewEngine(testLogger())
	workflow := linearWorkflow()

	result, err := engine.Apply(t.Context(), workflow, &models.DiffRequest{
		WorkflowID: workflow.ID,
		Operations: []models.DiffOperation{},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.OperationsApplied)
}
