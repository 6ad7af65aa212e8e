package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scanNodeIDs drains a node scan and returns the ids in order.
func scanNodeIDs(t *testing.T, engine Engine, label string) []NodeID {
	t.Helper()
	it, err := engine.ScanNodes(label)
	require.NoError(t, err)
	defer it.Close()

	var ids []NodeID
	for it.Next() {
		ids = append(ids, it.Node().ID)
	}
	require.NoError(t, it.Err())
	return ids
}

// scanEdgeIDs drains an edge scan and returns the ids in order.
func scanEdgeIDs(t *testing.T, engine Engine, edgeType string) []EdgeID {
	t.Helper()
	it, err := engine.ScanEdges(edgeType)
	require.NoError(t, err)
	defer it.Close()

	var ids []EdgeID
	for it.Next() {
		ids = append(ids, it.Edge().ID)
	}
	require.NoError(t, it.Err())
	return ids
}

func TestNode_Label(t *testing.T) {
	assert.Equal(t, "", (&Node{}).Label())
	assert.Equal(t, "Person", (&Node{Labels: []string{"Person", "Employee"}}).Label())

	var nilNode *Node
	assert.Equal(t, "", nilNode.Label())
}

func TestNode_HasLabel(t *testing.T) {
	node := &Node{Labels: []string{"Person"}}
	assert.True(t, node.HasLabel("Person"))
	assert.False(t, node.HasLabel("person"))
}

func TestElement_String(t *testing.T) {
	assert.Equal(t, "v[1]", (&Node{ID: "1"}).String())
	assert.Equal(t, "e[7][1-knows->2]", (&Edge{ID: "7", StartNode: "1", EndNode: "2", Type: "knows"}).String())
}

func TestSliceIterators(t *testing.T) {
	it := NewNodeSliceIterator([]*Node{{ID: "a"}, {ID: "b"}})
	require.True(t, it.Next())
	assert.Equal(t, NodeID("a"), it.Node().ID)
	require.True(t, it.Next())
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
	assert.NoError(t, it.Close())

	eit := NewEdgeSliceIterator(nil)
	assert.False(t, eit.Next())
	assert.NoError(t, eit.Close())
}
