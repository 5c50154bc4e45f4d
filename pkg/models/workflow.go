// Package models defines the core domain models for workflow graph mutation.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Workflow is a transient in-memory copy of a workflow owned by the external
// automation platform. It is fetched, mutated and pushed back within the
// scope of a single request; the platform always holds the canonical copy.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"                  validate:"required,min=1"`
	Active      bool           `json:"active"`
	Nodes       []*Node        `json:"nodes"`
	Connections Connections    `json:"connections"`
	Settings    map[string]any `json:"settings,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// Clone returns a deep copy of the workflow via a JSON round trip.
func (w *Workflow) Clone() (*Workflow, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workflow %s: %w", w.ID, err)
	}

	clone := &Workflow{}

	err = json.Unmarshal(data, clone)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize workflow %s: %w", w.ID, err)
	}

	return clone, nil
}

// NodeByName returns the node with the given name, or nil.
func (w *Workflow) NodeByName(name string) *Node {
	for _, node := range w.Nodes {
		if node.Name == name {
			return node
		}
	}

	return nil
}

// NodeByID returns the node with the given ID, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// HasTag reports whether the workflow carries the given tag.
func (w *Workflow) HasTag(tag string) bool {
	for _, t := range w.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// StructurallyEqual compares two workflows on their serialized form. The
// comparison covers nodes, connections, settings, tags and metadata, which
// is what a backup/restore round trip must preserve.
func StructurallyEqual(a, b *Workflow) bool {
	da, err := json.Marshal(a)
	if err != nil {
		return false
	}

	db, err := json.Marshal(b)
	if err != nil {
		return false
	}

	return bytes.Equal(da, db)
}
