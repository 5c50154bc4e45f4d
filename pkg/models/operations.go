package models

import (
	"encoding/json"
	"fmt"
)

// OperationType identifies one kind of graph mutation.
type OperationType string

const (
	OpAddNode               OperationType = "addNode"
	OpRemoveNode            OperationType = "removeNode"
	OpUpdateNode            OperationType = "updateNode"
	OpMoveNode              OperationType = "moveNode"
	OpEnableNode            OperationType = "enableNode"
	OpDisableNode           OperationType = "disableNode"
	OpAddConnection         OperationType = "addConnection"
	OpRemoveConnection      OperationType = "removeConnection"
	OpReplaceConnections    OperationType = "replaceConnections"
	OpRewireConnection      OperationType = "rewireConnection"
	OpCleanStaleConnections OperationType = "cleanStaleConnections"
	OpUpdateSettings        OperationType = "updateSettings"
	OpUpdateName            OperationType = "updateName"
	OpAddTag                OperationType = "addTag"
	OpRemoveTag             OperationType = "removeTag"
)

// DiffOperation is one atomic instruction describing a single graph
// mutation. Operations are immutable value objects: constructed once per
// request, never mutated.
type DiffOperation interface {
	OperationType() OperationType
}

// NodeRef resolves a target node by ID or name. Name takes precedence when
// both are set; the engine documents and tests this precedence explicitly.
type NodeRef struct {
	NodeID   string `json:"nodeId,omitempty"`
	NodeName string `json:"nodeName,omitempty"`
}

// Describe renders the reference for error messages.
func (r NodeRef) Describe() string {
	if r.NodeName != "" {
		return r.NodeName
	}

	return r.NodeID
}

type AddNodeOperation struct {
	Node *Node `json:"node" validate:"required"`
}

func (AddNodeOperation) OperationType() OperationType { return OpAddNode }

type RemoveNodeOperation struct {
	NodeRef
}

func (RemoveNodeOperation) OperationType() OperationType { return OpRemoveNode }

// UpdateNodeOperation patches a node with dotted-path updates, e.g.
// "parameters.url" or "credentials.httpBasicAuth.id". Intermediate objects
// are created as needed.
type UpdateNodeOperation struct {
	NodeRef

	Updates map[string]any `json:"updates" validate:"required,min=1"`
}

func (UpdateNodeOperation) OperationType() OperationType { return OpUpdateNode }

type MoveNodeOperation struct {
	NodeRef

	Position [2]float64 `json:"position"`
}

func (MoveNodeOperation) OperationType() OperationType { return OpMoveNode }

type EnableNodeOperation struct {
	NodeRef
}

func (EnableNodeOperation) OperationType() OperationType { return OpEnableNode }

type DisableNodeOperation struct {
	NodeRef
}

func (DisableNodeOperation) OperationType() OperationType { return OpDisableNode }

type AddConnectionOperation struct {
	Source      string `json:"source"      validate:"required"`
	Target      string `json:"target"      validate:"required"`
	SourcePort  string `json:"sourcePort,omitempty"`
	TargetPort  string `json:"targetPort,omitempty"`
	SourceIndex int    `json:"sourceIndex,omitempty"`
	TargetIndex int    `json:"targetIndex,omitempty"`
}

func (AddConnectionOperation) OperationType() OperationType { return OpAddConnection }

type RemoveConnectionOperation struct {
	Source     string `json:"source" validate:"required"`
	Target     string `json:"target" validate:"required"`
	SourcePort string `json:"sourcePort,omitempty"`
	TargetPort string `json:"targetPort,omitempty"`

	// IgnoreErrors turns a missing-connection failure into a no-op success.
	IgnoreErrors bool `json:"ignoreErrors,omitempty"`
}

func (RemoveConnectionOperation) OperationType() OperationType { return OpRemoveConnection }

// ReplaceConnectionsOperation substitutes the whole connections map. No
// merge happens; stale endpoint references are caught by the whole-graph
// validator afterwards.
type ReplaceConnectionsOperation struct {
	Connections Connections `json:"connections" validate:"required"`
}

func (ReplaceConnectionsOperation) OperationType() OperationType { return OpReplaceConnections }

// RewireConnectionOperation moves one edge's target endpoint from From to
// To, preserving ports and indices.
type RewireConnectionOperation struct {
	Source     string `json:"source" validate:"required"`
	From       string `json:"from"   validate:"required"`
	To         string `json:"to"     validate:"required"`
	SourcePort string `json:"sourcePort,omitempty"`
}

func (RewireConnectionOperation) OperationType() OperationType { return OpRewireConnection }

type CleanStaleConnectionsOperation struct {
	DryRun bool `json:"dryRun,omitempty"`
}

func (CleanStaleConnectionsOperation) OperationType() OperationType { return OpCleanStaleConnections }

type UpdateSettingsOperation struct {
	Settings map[string]any `json:"settings" validate:"required"`
}

func (UpdateSettingsOperation) OperationType() OperationType { return OpUpdateSettings }

type UpdateNameOperation struct {
	Name string `json:"name" validate:"required,min=1"`
}

func (UpdateNameOperation) OperationType() OperationType { return OpUpdateName }

type AddTagOperation struct {
	Tag string `json:"tag" validate:"required,min=1"`
}

func (AddTagOperation) OperationType() OperationType { return OpAddTag }

type RemoveTagOperation struct {
	Tag string `json:"tag" validate:"required,min=1"`
}

func (RemoveTagOperation) OperationType() OperationType { return OpRemoveTag }

// operationEnvelope carries the discriminator used to decode the union.
type operationEnvelope struct {
	Type OperationType `json:"type"`
}

// DecodeOperation decodes one raw operation by its "type" discriminator.
func DecodeOperation(raw json.RawMessage) (DiffOperation, error) {
	var envelope operationEnvelope

	err := json.Unmarshal(raw, &envelope)
	if err != nil {
		return nil, fmt.Errorf("malformed operation: %w", err)
	}

	var op DiffOperation

	switch envelope.Type {
	case OpAddNode:
		op = &AddNodeOperation{}
	case OpRemoveNode:
		op = &RemoveNodeOperation{}
	case OpUpdateNode:
		op = &UpdateNodeOperation{}
	case OpMoveNode:
		op = &MoveNodeOperation{}
	case OpEnableNode:
		op = &EnableNodeOperation{}
	case OpDisableNode:
		op = &DisableNodeOperation{}
	case OpAddConnection:
		op = &AddConnectionOperation{}
	case OpRemoveConnection:
		op = &RemoveConnectionOperation{}
	case OpReplaceConnections:
		op = &ReplaceConnectionsOperation{}
	case OpRewireConnection:
		op = &RewireConnectionOperation{}
	case OpCleanStaleConnections:
		op = &CleanStaleConnectionsOperation{}
	case OpUpdateSettings:
		op = &UpdateSettingsOperation{}
	case OpUpdateName:
		op = &UpdateNameOperation{}
	case OpAddTag:
		op = &AddTagOperation{}
	case OpRemoveTag:
		op = &RemoveTagOperation{}
	default:
		return nil, fmt.Errorf("unknown operation type %q", envelope.Type)
	}

	err = json.Unmarshal(raw, op)
	if err != nil {
		return nil, fmt.Errorf("malformed %s operation: %w", envelope.Type, err)
	}

	return op, nil
}

// OperationNames lists the operation kinds of a batch in order, for backup
// records and events.
func OperationNames(ops []DiffOperation) []string {
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, string(op.OperationType()))
	}

	return names
}
