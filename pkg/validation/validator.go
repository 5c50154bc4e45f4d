// Package validation checks whole-graph invariants on a workflow before it
// is pushed to the external platform. The validator runs after every batch
// of operations, even a best-effort partial batch: a graph that is valid
// per-operation but collectively broken is never sent upstream.
package validation

import (
	"fmt"
	"sort"

	"github.com/flowpatch/flowpatch/pkg/capabilities"
	"github.com/flowpatch/flowpatch/pkg/models"
)

// Finding categories drive the recovery guidance attached to a rejection.
const (
	categoryStaleConnection = "stale_connection"
	categoryDisconnected    = "disconnected_node"
	categorySingleNode      = "single_node"
	categoryNoConnections   = "no_connections"
	categoryBranchMetadata  = "branch_metadata"
)

var guidanceByCategory = map[string]string{
	categoryStaleConnection: "remove stale connections with a cleanStaleConnections operation",
	categoryDisconnected:    "connect the node with addConnection, or remove it if it is no longer needed",
	categorySingleNode:      "add a trigger-capable node, or remove the last remaining non-trigger node",
	categoryNoConnections:   "add connections between the remaining nodes with addConnection",
	categoryBranchMetadata:  "add missing branch outputs or complete the node's versioned rules metadata",
}

// Result carries the validator findings plus categorized recovery guidance
// so an automated caller can retry with a corrected operation list.
type Result struct {
	Errors   []string `json:"errors"`
	Guidance []string `json:"guidance,omitempty"`
}

// Valid reports whether the graph passed every rule.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// Validator checks whole-graph invariants using a node-capability catalog.
type Validator struct {
	catalog capabilities.Catalog
}

// NewValidator creates a validator backed by the given capability catalog.
func NewValidator(catalog capabilities.Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate runs every rule over the workflow and collects the findings.
func (v *Validator) Validate(workflow *models.Workflow) *Result {
	categories := map[string]bool{}
	result := &Result{Errors: []string{}}

	record := func(category, message string) {
		result.Errors = append(result.Errors, message)
		categories[category] = true
	}

	v.checkConnectionEndpoints(workflow, record)
	v.checkDisconnectedNodes(workflow, record)
	v.checkSingleNode(workflow, record)
	v.checkHasConnections(workflow, record)
	v.checkBranchNodes(workflow, record)

	keys := make([]string, 0, len(categories))
	for category := range categories {
		keys = append(keys, category)
	}

	sort.Strings(keys)

	for _, category := range keys {
		result.Guidance = append(result.Guidance, guidanceByCategory[category])
	}

	return result
}

// Every connection endpoint must name an existing node.
func (v *Validator) checkConnectionEndpoints(workflow *models.Workflow, record func(category, message string)) {
	exists := make(map[string]bool, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		exists[node.Name] = true
	}

	workflow.Connections.Each(func(source, _ string, _ int, link models.Link) bool {
		if !exists[source] {
			record(categoryStaleConnection,
				fmt.Sprintf("referenced node not found: connection originates from missing node %q", source))
		}

		if !exists[link.Node] {
			record(categoryStaleConnection,
				fmt.Sprintf("referenced node not found: connection from %q targets missing node %q", source, link.Node))
		}

		return true
	})
}

// Every node that is neither trigger-capable nor a non-executable
// annotation must have at least one incoming connection, unless it is the
// sole node in the workflow.
func (v *Validator) checkDisconnectedNodes(workflow *models.Workflow, record func(category, message string)) {
	if len(workflow.Nodes) <= 1 {
		return
	}

	for _, node := range workflow.Nodes {
		if v.catalog.IsTriggerType(node.Type) || v.catalog.IsNonExecutableType(node.Type) {
			continue
		}

		if !workflow.Connections.HasIncoming(node.Name) {
			record(categoryDisconnected,
				fmt.Sprintf("disconnected node: %q has no incoming connections", node.Name))
		}
	}
}

// A workflow reduced to exactly one executable node is valid only when that
// node is trigger-capable; a single regular node cannot run standalone.
func (v *Validator) checkSingleNode(workflow *models.Workflow, record func(category, message string)) {
	executable := v.executableNodes(workflow)

	if len(executable) != 1 {
		return
	}

	node := executable[0]
	if !v.catalog.IsTriggerType(node.Type) {
		record(categorySingleNode,
			fmt.Sprintf("Single non-webhook node %q cannot run standalone", node.Name))
	}
}

// A workflow with more than one executable node must retain at least one
// connection overall.
func (v *Validator) checkHasConnections(workflow *models.Workflow, record func(category, message string)) {
	executable := v.executableNodes(workflow)

	if len(executable) > 1 && workflow.Connections.Total() == 0 {
		record(categoryNoConnections,
			fmt.Sprintf("workflow has no connections between its %d nodes", len(executable)))
	}
}

// Branch-bearing node kinds must carry complete, versioned rules metadata
// and expose one output branch per logical rule.
func (v *Validator) checkBranchNodes(workflow *models.Workflow, record func(category, message string)) {
	for _, node := range workflow.Nodes {
		if !v.catalog.IsBranchingType(node.Type) {
			continue
		}

		rules, ok := branchRules(node)
		if !ok || node.TypeVersion <= 0 {
			record(categoryBranchMetadata,
				fmt.Sprintf("branch node %q is missing versioned rules metadata", node.Name))

			continue
		}

		used := len(workflow.Connections[node.Name][models.MainPort])
		if used > 0 && used != rules {
			record(categoryBranchMetadata,
				fmt.Sprintf("branch count mismatch: node %q defines %d rules but %d output branches are connected", node.Name, rules, used))
		}
	}
}

func (v *Validator) executableNodes(workflow *models.Workflow) []*models.Node {
	nodes := make([]*models.Node, 0, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if !v.catalog.IsNonExecutableType(node.Type) {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// branchRules extracts the logical rule count from the documented options
// shape: parameters.rules.values is a non-empty list.
func branchRules(node *models.Node) (int, bool) {
	rules, ok := node.Parameters["rules"].(map[string]any)
	if !ok {
		return 0, false
	}

	values, ok := rules["values"].([]any)
	if !ok || len(values) == 0 {
		return 0, false
	}

	return len(values), true
}
