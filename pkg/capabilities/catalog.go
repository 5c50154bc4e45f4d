// Package capabilities classifies node types for structural validation. The
// catalog is an external collaborator contract: the validator only consumes
// the interface, so a platform-backed knowledge base can replace the static
// defaults without touching the core.
package capabilities

import "strings"

// Catalog answers capability questions about node types.
type Catalog interface {
	// IsTriggerType reports whether the type can start a workflow execution.
	IsTriggerType(nodeType string) bool

	// IsNonExecutableType reports whether the type never executes, e.g.
	// documentation-only annotation nodes.
	IsNonExecutableType(nodeType string) bool

	// IsBranchingType reports whether the type routes items across multiple
	// output branches driven by rule metadata.
	IsBranchingType(nodeType string) bool
}

// StaticCatalog is the built-in capability table. Lookups match on the bare
// type name after the last "." or ":" separator, case-insensitively, so
// namespaced types like "n8n-nodes-base.webhook" and "trigger:webhook"
// resolve the same way.
type StaticCatalog struct {
	triggers      map[string]bool
	nonExecutable map[string]bool
	branching     map[string]bool
}

// NewStaticCatalog builds the default capability table.
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		triggers: map[string]bool{
			"webhook":         true,
			"manualtrigger":   true,
			"scheduletrigger": true,
			"crontrigger":     true,
			"cron":            true,
			"start":           true,
			"formtrigger":     true,
			"emailtrigger":    true,
		},
		nonExecutable: map[string]bool{
			"stickynote": true,
			"notenode":   true,
			"annotation": true,
		},
		branching: map[string]bool{
			"if":     true,
			"switch": true,
			"filter": true,
		},
	}
}

func (c *StaticCatalog) IsTriggerType(nodeType string) bool {
	name := bareTypeName(nodeType)

	// Unknown types ending in "trigger" are trigger-capable by convention.
	return c.triggers[name] || strings.HasSuffix(name, "trigger")
}

func (c *StaticCatalog) IsNonExecutableType(nodeType string) bool {
	return c.nonExecutable[bareTypeName(nodeType)]
}

func (c *StaticCatalog) IsBranchingType(nodeType string) bool {
	return c.branching[bareTypeName(nodeType)]
}

func bareTypeName(nodeType string) string {
	name := strings.ToLower(nodeType)

	if idx := strings.LastIndexAny(name, ".:"); idx >= 0 {
		name = name[idx+1:]
	}

	return name
}
