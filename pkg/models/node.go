package models

// Node is a single processing step in a workflow graph. Identity is carried
// by ID (stable, assigned once) and Name (unique within a workflow, used for
// human-facing references and connection endpoints).
type Node struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=1"`
	Type        string         `json:"type"        validate:"required"`
	TypeVersion float64        `json:"typeVersion"`
	Position    [2]float64     `json:"position"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Disabled    bool           `json:"disabled,omitempty"`
	Credentials map[string]any `json:"credentials,omitempty"`
}
