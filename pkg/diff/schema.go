package diff

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowpatch/flowpatch/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// operationSchemas pins the wire shape of each operation kind. Payloads are
// checked against these before decoding, so malformed input fails with a
// field-level message instead of a half-decoded operation.
var operationSchemas = map[models.OperationType]string{
	models.OpAddNode: `{
		"type": "object",
		"required": ["type", "node"],
		"properties": {
			"type": {"const": "addNode"},
			"node": {
				"type": "object",
				"required": ["name", "type"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"type": {"type": "string", "minLength": 1},
					"typeVersion": {"type": "number"},
					"position": {"type": "array", "items": {"type": "number"}, "minItems": 2, "maxItems": 2},
					"parameters": {"type": "object"},
					"disabled": {"type": "boolean"},
					"credentials": {"type": "object"}
				}
			}
		}
	}`,
	models.OpRemoveNode:  nodeRefSchema("removeNode"),
	models.OpEnableNode:  nodeRefSchema("enableNode"),
	models.OpDisableNode: nodeRefSchema("disableNode"),
	models.OpUpdateNode: `{
		"type": "object",
		"required": ["type", "updates"],
		"anyOf": [{"required": ["nodeId"]}, {"required": ["nodeName"]}],
		"properties": {
			"type": {"const": "updateNode"},
			"nodeId": {"type": "string"},
			"nodeName": {"type": "string"},
			"updates": {"type": "object", "minProperties": 1}
		}
	}`,
	models.OpMoveNode: `{
		"type": "object",
		"required": ["type", "position"],
		"anyOf": [{"required": ["nodeId"]}, {"required": ["nodeName"]}],
		"properties": {
			"type": {"const": "moveNode"},
			"nodeId": {"type": "string"},
			"nodeName": {"type": "string"},
			"position": {"type": "array", "items": {"type": "number"}, "minItems": 2, "maxItems": 2}
		}
	}`,
	models.OpAddConnection: `{
		"type": "object",
		"required": ["type", "source", "target"],
		"properties": {
			"type": {"const": "addConnection"},
			"source": {"type": "string", "minLength": 1},
			"target": {"type": "string", "minLength": 1},
			"sourcePort": {"type": "string"},
			"targetPort": {"type": "string"},
			"sourceIndex": {"type": "integer", "minimum": 0},
			"targetIndex": {"type": "integer", "minimum": 0}
		}
	}`,
	models.OpRemoveConnection: `{
		"type": "object",
		"required": ["type", "source", "target"],
		"properties": {
			"type": {"const": "removeConnection"},
			"source": {"type": "string", "minLength": 1},
			"target": {"type": "string", "minLength": 1},
			"sourcePort": {"type": "string"},
			"targetPort": {"type": "string"},
			"ignoreErrors": {"type": "boolean"}
		}
	}`,
	models.OpReplaceConnections: `{
		"type": "object",
		"required": ["type", "connections"],
		"properties": {
			"type": {"const": "replaceConnections"},
			"connections": {"type": "object"}
		}
	}`,
	models.OpRewireConnection: `{
		"type": "object",
		"required": ["type", "source", "from", "to"],
		"properties": {
			"type": {"const": "rewireConnection"},
			"source": {"type": "string", "minLength": 1},
			"from": {"type": "string", "minLength": 1},
			"to": {"type": "string", "minLength": 1},
			"sourcePort": {"type": "string"}
		}
	}`,
	models.OpCleanStaleConnections: `{
		"type": "object",
		"required": ["type"],
		"properties": {
			"type": {"const": "cleanStaleConnections"},
			"dryRun": {"type": "boolean"}
		}
	}`,
	models.OpUpdateSettings: `{
		"type": "object",
		"required": ["type", "settings"],
		"properties": {
			"type": {"const": "updateSettings"},
			"settings": {"type": "object"}
		}
	}`,
	models.OpUpdateName: `{
		"type": "object",
		"required": ["type", "name"],
		"properties": {
			"type": {"const": "updateName"},
			"name": {"type": "string", "minLength": 1}
		}
	}`,
	models.OpAddTag:    tagSchema("addTag"),
	models.OpRemoveTag: tagSchema("removeTag"),
}

func nodeRefSchema(opType string) string {
	return fmt.Sprintf(`{
		"type": "object",
		"required": ["type"],
		"anyOf": [{"required": ["nodeId"]}, {"required": ["nodeName"]}],
		"properties": {
			"type": {"const": %q},
			"nodeId": {"type": "string", "minLength": 1},
			"nodeName": {"type": "string", "minLength": 1}
		}
	}`, opType)
}

func tagSchema(opType string) string {
	return fmt.Sprintf(`{
		"type": "object",
		"required": ["type", "tag"],
		"properties": {
			"type": {"const": %q},
			"tag": {"type": "string", "minLength": 1}
		}
	}`, opType)
}

// SchemaSet holds the compiled per-kind operation schemas.
type SchemaSet struct {
	schemas map[models.OperationType]*gojsonschema.Schema
}

// NewSchemaSet compiles the built-in operation schemas.
func NewSchemaSet() (*SchemaSet, error) {
	compiled := make(map[models.OperationType]*gojsonschema.Schema, len(operationSchemas))

	for opType, source := range operationSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for %s: %w", opType, err)
		}

		compiled[opType] = schema
	}

	return &SchemaSet{schemas: compiled}, nil
}

// ValidateRaw checks one raw operation against the schema of its kind.
func (s *SchemaSet) ValidateRaw(raw json.RawMessage) error {
	var envelope struct {
		Type models.OperationType `json:"type"`
	}

	err := json.Unmarshal(raw, &envelope)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	schema, ok := s.schemas[envelope.Type]
	if !ok {
		return fmt.Errorf("%w: unknown operation type %q", ErrInvalidOperation, envelope.Type)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("%w: %s operation: %s", ErrInvalidOperation, envelope.Type, strings.Join(details, "; "))
	}

	return nil
}

// DecodeOperations validates and decodes a raw operation list in order. The
// index of the first offending operation is part of the error.
func (s *SchemaSet) DecodeOperations(raws []json.RawMessage) ([]models.DiffOperation, error) {
	ops := make([]models.DiffOperation, 0, len(raws))

	for i, raw := range raws {
		err := s.ValidateRaw(raw)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}

		op, err := models.DecodeOperation(raw)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w: %v", i, ErrInvalidOperation, err)
		}

		ops = append(ops, op)
	}

	return ops, nil
}
