// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/flowpatch/flowpatch/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test Node with default values that can be
// overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:          uuid.New().String(),
		Name:        "Test Node",
		Type:        "n8n-nodes-base.set",
		TypeVersion: 1,
		Position:    [2]float64{100, 200},
		Parameters:  map[string]any{"mode": "manual"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithWebhookNode configures the node as a webhook trigger.
func WithWebhookNode() func(*models.Node) {
	return func(n *models.Node) {
		n.Type = "n8n-nodes-base.webhook"
		n.Parameters = map[string]any{
			"path":       "/webhook/test",
			"httpMethod": "POST",
		}
	}
}

// WithBranchNode configures the node as a switch with the given rule count.
func WithBranchNode(rules int) func(*models.Node) {
	return func(n *models.Node) {
		values := make([]any, rules)
		for i := range values {
			values[i] = map[string]any{"output": i}
		}

		n.Type = "n8n-nodes-base.switch"
		n.TypeVersion = 3
		n.Parameters = map[string]any{"rules": map[string]any{"values": values}}
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.Node) {
	return func(n *models.Node) {
		n.Name = name
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithParameters sets the node parameters.
func WithParameters(parameters map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Parameters = parameters
	}
}

// WithPosition sets the node position.
func WithPosition(x, y float64) func(*models.Node) {
	return func(n *models.Node) {
		n.Position = [2]float64{x, y}
	}
}

// WithDisabled marks the node disabled.
func WithDisabled() func(*models.Node) {
	return func(n *models.Node) {
		n.Disabled = true
	}
}

// CreateTestWorkflow creates an empty test workflow.
func CreateTestWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Nodes:       []*models.Node{},
		Connections: models.Connections{},
		Settings:    map[string]any{"executionOrder": "v1"},
	}
}

// CreateLinearWorkflow creates a webhook -> set workflow, the smallest
// graph that passes structural validation.
func CreateLinearWorkflow() *models.Workflow {
	workflow := CreateTestWorkflow()

	trigger := CreateTestNode(WithWebhookNode(), WithID("trigger-1"), WithName("Webhook"))
	action := CreateTestNode(WithID("action-1"), WithName("Set"))

	workflow.Nodes = []*models.Node{trigger, action}
	workflow.Connections.Add(trigger.Name, models.MainPort, 0, models.Link{
		Node: action.Name,
		Port: models.MainPort,
	})

	return workflow
}
