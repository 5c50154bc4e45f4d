package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOperation_AddNode(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "addNode",
		"node": {
			"id": "node-1",
			"name": "HTTP Request",
			"type": "n8n-nodes-base.httpRequest",
			"typeVersion": 4.2,
			"position": [100, 200],
			"parameters": {"url": "https://example.com"}
		}
	}`)

	op, err := DecodeOperation(raw)
	require.NoError(t, err)

	addNode, ok := op.(*AddNodeOperation)
	require.True(t, ok)
	assert.Equal(t, OpAddNode, addNode.OperationType())
	assert.Equal(t, "HTTP Request", addNode.Node.Name)
	assert.InDelta(t, 4.2, addNode.Node.TypeVersion, 0.001)
	assert.Equal(t, [2]float64{100, 200}, addNode.Node.Position)
}

func TestDecodeOperation_NodeRefByName(t *testing.T) {
	raw := json.RawMessage(`{"type": "removeNode", "nodeName": "Set"}`)

	op, err := DecodeOperation(raw)
	require.NoError(t, err)

	removeNode, ok := op.(*RemoveNodeOperation)
	require.True(t, ok)
	assert.Equal(t, "Set", removeNode.NodeName)
	assert.Empty(t, removeNode.NodeID)
	assert.Equal(t, "Set", removeNode.Describe())
}

func TestDecodeOperation_UpdateNodeDottedPaths(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "updateNode",
		"nodeId": "node-1",
		"updates": {"parameters.url": "https://api.example.com", "notes": "changed"}
	}`)

	op, err := DecodeOperation(raw)
	require.NoError(t, err)

	updateNode, ok := op.(*UpdateNodeOperation)
	require.True(t, ok)
	assert.Equal(t, "https://api.example.com", updateNode.Updates["parameters.url"])
	assert.Len(t, updateNode.Updates, 2)
}

func TestDecodeOperation_RemoveConnectionIgnoreErrors(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "removeConnection",
		"source": "Webhook",
		"target": "Set",
		"ignoreErrors": true
	}`)

	op, err := DecodeOperation(raw)
	require.NoError(t, err)

	removeConn, ok := op.(*RemoveConnectionOperation)
	require.True(t, ok)
	assert.True(t, removeConn.IgnoreErrors)
}

func TestDecodeOperation_AllKinds(t *testing.T) {
	raws := map[OperationType]string{
		OpAddNode:               `{"type":"addNode","node":{"name":"A","type":"n8n-nodes-base.set"}}`,
		OpRemoveNode:            `{"type":"removeNode","nodeName":"A"}`,
		OpUpdateNode:            `{"type":"updateNode","nodeName":"A","updates":{"notes":"x"}}`,
		OpMoveNode:              `{"type":"moveNode","nodeName":"A","position":[1,2]}`,
		OpEnableNode:            `{"type":"enableNode","nodeName":"A"}`,
		OpDisableNode:           `{"type":"disableNode","nodeName":"A"}`,
		OpAddConnection:         `{"type":"addConnection","source":"A","target":"B"}`,
		OpRemoveConnection:      `{"type":"removeConnection","source":"A","target":"B"}`,
		OpReplaceConnections:    `{"type":"replaceConnections","connections":{}}`,
		OpRewireConnection:      `{"type":"rewireConnection","source":"A","from":"B","to":"C"}`,
		OpCleanStaleConnections: `{"type":"cleanStaleConnections"}`,
		OpUpdateSettings:        `{"type":"updateSettings","settings":{"timezone":"UTC"}}`,
		OpUpdateName:            `{"type":"updateName","name":"Renamed"}`,
		OpAddTag:                `{"type":"addTag","tag":"prod"}`,
		OpRemoveTag:             `{"type":"removeTag","tag":"prod"}`,
	}

	for opType, raw := range raws {
		op, err := DecodeOperation(json.RawMessage(raw))
		require.NoError(t, err, "decoding %s", opType)
		assert.Equal(t, opType, op.OperationType())
	}
}

func TestDecodeOperation_UnknownType(t *testing.T) {
	_, err := DecodeOperation(json.RawMessage(`{"type": "teleportNode"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation type")
}

func TestDecodeOperation_MalformedJSON(t *testing.T) {
	_, err := DecodeOperation(json.RawMessage(`{"type": "addNode"`))
	require.Error(t, err)
}

func TestOperationNames(t *testing.T) {
	ops := []DiffOperation{
		&AddNodeOperation{},
		&RemoveConnectionOperation{},
		&AddTagOperation{},
	}

	assert.Equal(t, []string{"addNode", "removeConnection", "addTag"}, OperationNames(ops))
}
