package diff

import (
	"encoding/json"
	"fmt"

	"github.com/flowpatch/flowpatch/pkg/models"
)

// resolveNode finds the target of a node-scoped operation. Name takes
// precedence over ID when both are supplied: names are the human-facing
// identity in connection maps, so an agent correcting a workflow by name
// must not be silently redirected by a stale ID.
func resolveNode(workflow *models.Workflow, ref models.NodeRef) (*models.Node, error) {
	if ref.NodeName != "" {
		if node := workflow.NodeByName(ref.NodeName); node != nil {
			return node, nil
		}

		return nil, fmt.Errorf("%w: no node named %q", ErrNodeNotFound, ref.NodeName)
	}

	if ref.NodeID != "" {
		if node := workflow.NodeByID(ref.NodeID); node != nil {
			return node, nil
		}

		return nil, fmt.Errorf("%w: no node with id %q", ErrNodeNotFound, ref.NodeID)
	}

	return nil, fmt.Errorf("%w: node reference requires nodeId or nodeName", ErrInvalidOperation)
}

func applyAddNode(workflow *models.Workflow, op *models.AddNodeOperation) error {
	if op.Node == nil || op.Node.Name == "" {
		return fmt.Errorf("%w: addNode requires a node with a name", ErrInvalidOperation)
	}

	if workflow.NodeByName(op.Node.Name) != nil {
		return fmt.Errorf("%w: node %q already exists", ErrDuplicateName, op.Node.Name)
	}

	node := *op.Node
	workflow.Nodes = append(workflow.Nodes, &node)

	return nil
}

func applyRemoveNode(workflow *models.Workflow, op *models.RemoveNodeOperation) error {
	node, err := resolveNode(workflow, op.NodeRef)
	if err != nil {
		return err
	}

	kept := workflow.Nodes[:0]

	for _, n := range workflow.Nodes {
		if n != node {
			kept = append(kept, n)
		}
	}

	workflow.Nodes = kept

	// Edges referencing the removed node go with it; the validator would
	// reject them as stale otherwise.
	removeConnectionsOf(workflow, node.Name)

	return nil
}

func removeConnectionsOf(workflow *models.Workflow, name string) {
	delete(workflow.Connections, name)

	for _, ports := range workflow.Connections {
		for portName, outputs := range ports {
			for i, links := range outputs {
				kept := links[:0]

				for _, link := range links {
					if link.Node != name {
						kept = append(kept, link)
					}
				}

				outputs[i] = kept
			}

			ports[portName] = outputs
		}
	}
}

func applyUpdateNode(workflow *models.Workflow, op *models.UpdateNodeOperation) error {
	node, err := resolveNode(workflow, op.NodeRef)
	if err != nil {
		return err
	}

	if len(op.Updates) == 0 {
		return fmt.Errorf("%w: updateNode requires at least one update path", ErrInvalidOperation)
	}

	// Node names anchor the connections map; renames are not expressible as
	// a path update.
	for path := range op.Updates {
		if path == "name" {
			return fmt.Errorf("%w: updateNode cannot change the node name", ErrInvalidOperation)
		}
	}

	tree, err := nodeToTree(node)
	if err != nil {
		return err
	}

	for path, value := range op.Updates {
		err = SetPath(tree, path, value)
		if err != nil {
			return err
		}
	}

	updated, err := treeToNode(tree)
	if err != nil {
		return err
	}

	*node = *updated

	return nil
}

// nodeToTree and treeToNode shuttle a node through its generic key/value
// form so dotted-path updates stay a pure data transformation.
func nodeToTree(node *models.Node) (map[string]any, error) {
	data, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	tree := map[string]any{}

	err = json.Unmarshal(data, &tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	return tree, nil
}

func treeToNode(tree map[string]any) (*models.Node, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	node := &models.Node{}

	err = json.Unmarshal(data, node)
	if err != nil {
		return nil, fmt.Errorf("%w: updates do not fit the node shape: %v", ErrInvalidOperation, err)
	}

	return node, nil
}

func applyMoveNode(workflow *models.Workflow, op *models.MoveNodeOperation) error {
	node, err := resolveNode(workflow, op.NodeRef)
	if err != nil {
		return err
	}

	node.Position = op.Position

	return nil
}

func applySetDisabled(workflow *models.Workflow, ref models.NodeRef, disabled bool) error {
	node, err := resolveNode(workflow, ref)
	if err != nil {
		return err
	}

	node.Disabled = disabled

	return nil
}

func applyAddConnection(workflow *models.Workflow, op *models.AddConnectionOperation) error {
	if workflow.NodeByName(op.Source) == nil {
		return fmt.Errorf("%w: connection source %q", ErrNodeNotFound, op.Source)
	}

	if workflow.NodeByName(op.Target) == nil {
		return fmt.Errorf("%w: connection target %q", ErrNodeNotFound, op.Target)
	}

	if workflow.Connections == nil {
		workflow.Connections = models.Connections{}
	}

	workflow.Connections.Add(op.Source, op.SourcePort, op.SourceIndex, models.Link{
		Node:  op.Target,
		Port:  op.TargetPort,
		Index: op.TargetIndex,
	})

	return nil
}

func applyRemoveConnection(workflow *models.Workflow, op *models.RemoveConnectionOperation) error {
	removed := workflow.Connections.Remove(op.Source, op.SourcePort, op.Target, op.TargetPort)
	if !removed && !op.IgnoreErrors {
		return fmt.Errorf("%w: no connection from %q to %q", ErrConnectionNotFound, op.Source, op.Target)
	}

	return nil
}

func applyReplaceConnections(workflow *models.Workflow, op *models.ReplaceConnectionsOperation) error {
	if op.Connections == nil {
		return fmt.Errorf("%w: replaceConnections requires a connections map", ErrInvalidOperation)
	}

	workflow.Connections = op.Connections

	return nil
}

func applyRewireConnection(workflow *models.Workflow, op *models.RewireConnectionOperation) error {
	if workflow.NodeByName(op.To) == nil {
		return fmt.Errorf("%w: rewire target %q", ErrNodeNotFound, op.To)
	}

	sourcePort := op.SourcePort
	if sourcePort == "" {
		sourcePort = models.MainPort
	}

	outputs := workflow.Connections[op.Source][sourcePort]

	for i, links := range outputs {
		for j, link := range links {
			if link.Node == op.From {
				outputs[i][j].Node = op.To

				return nil
			}
		}
	}

	return fmt.Errorf("%w: no connection from %q to %q on port %q", ErrConnectionNotFound, op.Source, op.From, sourcePort)
}

// applyCleanStaleConnections removes edges whose source or target node no
// longer exists and returns how many were (or would be) removed.
func applyCleanStaleConnections(workflow *models.Workflow, op *models.CleanStaleConnectionsOperation) int {
	exists := make(map[string]bool, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		exists[node.Name] = true
	}

	stale := 0

	for source, ports := range workflow.Connections {
		if !exists[source] {
			stale += countLinks(ports)

			if !op.DryRun {
				delete(workflow.Connections, source)
			}

			continue
		}

		for portName, outputs := range ports {
			for i, links := range outputs {
				kept := make([]models.Link, 0, len(links))

				for _, link := range links {
					if exists[link.Node] {
						kept = append(kept, link)
					} else {
						stale++
					}
				}

				if !op.DryRun {
					outputs[i] = kept
				}
			}

			if !op.DryRun {
				ports[portName] = outputs
			}
		}
	}

	return stale
}

func countLinks(ports models.PortLinks) int {
	total := 0

	for _, outputs := range ports {
		for _, links := range outputs {
			total += len(links)
		}
	}

	return total
}

func applyUpdateSettings(workflow *models.Workflow, op *models.UpdateSettingsOperation) error {
	if op.Settings == nil {
		return fmt.Errorf("%w: updateSettings requires a settings map", ErrInvalidOperation)
	}

	if workflow.Settings == nil {
		workflow.Settings = map[string]any{}
	}

	for key, value := range op.Settings {
		workflow.Settings[key] = value
	}

	return nil
}

func applyUpdateName(workflow *models.Workflow, op *models.UpdateNameOperation) error {
	if op.Name == "" {
		return fmt.Errorf("%w: updateName requires a non-empty name", ErrInvalidOperation)
	}

	workflow.Name = op.Name

	return nil
}

// Tag operations are idempotent: adding an existing tag or removing an
// absent one is a no-op success.
func applyAddTag(workflow *models.Workflow, op *models.AddTagOperation) error {
	if op.Tag == "" {
		return fmt.Errorf("%w: addTag requires a non-empty tag", ErrInvalidOperation)
	}

	if workflow.HasTag(op.Tag) {
		return nil
	}

	workflow.Tags = append(workflow.Tags, op.Tag)

	return nil
}

func applyRemoveTag(workflow *models.Workflow, op *models.RemoveTagOperation) error {
	if op.Tag == "" {
		return fmt.Errorf("%w: removeTag requires a non-empty tag", ErrInvalidOperation)
	}

	kept := workflow.Tags[:0]

	for _, tag := range workflow.Tags {
		if tag != op.Tag {
			kept = append(kept, tag)
		}
	}

	workflow.Tags = kept

	return nil
}
