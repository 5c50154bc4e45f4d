package platform

import (
	"context"
	"sync"

	"github.com/flowpatch/flowpatch/pkg/models"
)

// InMemoryClient is a platform double for tests and local development. It
// stores deep copies so callers cannot reach into its state by pointer, and
// supports fault injection per call kind.
type InMemoryClient struct {
	mu        sync.Mutex
	workflows map[string]*models.Workflow

	// Fault injection: when set, the matching call returns the error.
	GetError    error
	UpdateError error
}

// NewInMemoryClient creates an empty in-memory platform.
func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{workflows: map[string]*models.Workflow{}}
}

// Seed stores a workflow, overwriting any previous definition.
func (c *InMemoryClient) Seed(workflow *models.Workflow) error {
	clone, err := workflow.Clone()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.workflows[workflow.ID] = clone

	return nil
}

func (c *InMemoryClient) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	if c.GetError != nil {
		return nil, c.GetError
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	workflow, ok := c.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}

	return workflow.Clone()
}

func (c *InMemoryClient) UpdateWorkflow(_ context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	if c.UpdateError != nil {
		return nil, c.UpdateError
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}

	clone, err := workflow.Clone()
	if err != nil {
		return nil, err
	}

	clone.ID = id
	c.workflows[id] = clone

	return clone.Clone()
}

func (c *InMemoryClient) ActivateWorkflow(_ context.Context, id string) error {
	return c.setActive(id, true)
}

func (c *InMemoryClient) DeactivateWorkflow(_ context.Context, id string) error {
	return c.setActive(id, false)
}

func (c *InMemoryClient) setActive(id string, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	workflow, ok := c.workflows[id]
	if !ok {
		return ErrWorkflowNotFound
	}

	workflow.Active = active

	return nil
}
