package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryEngine(t *testing.T) {
	engine := NewMemoryEngine()
	require.NotNil(t, engine)
	assert.NotNil(t, engine.nodes)
	assert.NotNil(t, engine.edges)
	assert.NotNil(t, engine.nodesByLabel)
	assert.NotNil(t, engine.edgesByType)
	assert.NotNil(t, engine.outgoingEdges)
	assert.NotNil(t, engine.incomingEdges)
	assert.False(t, engine.closed)
}

// Node CRUD Tests

func TestMemoryEngine_CreateNode(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		engine := NewMemoryEngine()
		node := &Node{
			ID:         "node-1",
			Labels:     []string{"Person", "Employee"},
			Properties: map[string]any{"name": "Alice", "age": 30},
		}

		err := engine.CreateNode(node)
		require.NoError(t, err)

		stored, err := engine.GetNode("node-1")
		require.NoError(t, err)
		assert.False(t, stored.CreatedAt.IsZero())
		assert.Equal(t, "node-1", string(stored.ID))
		assert.Equal(t, []string{"Person", "Employee"}, stored.Labels)
		assert.Equal(t, "Alice", stored.Properties["name"])
	})

	t.Run("nil node", func(t *testing.T) {
		engine := NewMemoryEngine()
		assert.ErrorIs(t, engine.CreateNode(nil), ErrInvalidData)
	})

	t.Run("empty ID", func(t *testing.T) {
		engine := NewMemoryEngine()
		assert.ErrorIs(t, engine.CreateNode(&Node{ID: ""}), ErrInvalidID)
	})

	t.Run("duplicate ID", func(t *testing.T) {
		engine := NewMemoryEngine()
		require.NoError(t, engine.CreateNode(&Node{ID: "node-1"}))
		assert.ErrorIs(t, engine.CreateNode(&Node{ID: "node-1"}), ErrAlreadyExists)
	})

	t.Run("closed engine", func(t *testing.T) {
		engine := NewMemoryEngine()
		require.NoError(t, engine.Close())
		assert.ErrorIs(t, engine.CreateNode(&Node{ID: "node-1"}), ErrStorageClosed)
	})

	t.Run("stored copy is isolated from caller", func(t *testing.T) {
		engine := NewMemoryEngine()
		node := &Node{ID: "node-1", Properties: map[string]any{"name": "Alice"}}
		require.NoError(t, engine.CreateNode(node))

		node.Properties["name"] = "Mallory"

		stored, err := engine.GetNode("node-1")
		require.NoError(t, err)
		assert.Equal(t, "Alice", stored.Properties["name"])
	})
}

func TestMemoryEngine_UpdateNode(t *testing.T) {
	t.Run("relabels index", func(t *testing.T) {
		engine := NewMemoryEngine()
		require.NoError(t, engine.CreateNode(&Node{ID: "n1", Labels: []string{"Person"}}))

		require.NoError(t, engine.UpdateNode(&Node{ID: "n1", Labels: []string{"Robot"}}))

		assert.Empty(t, scanNodeIDs(t, engine, "Person"))
		assert.Equal(t, []NodeID{"n1"}, scanNodeIDs(t, engine, "Robot"))
	})

	t.Run("not found", func(t *testing.T) {
		engine := NewMemoryEngine()
		assert.ErrorIs(t, engine.UpdateNode(&Node{ID: "missing"}), ErrNotFound)
	})
}

func TestMemoryEngine_DeleteNode(t *testing.T) {
	engine := NewMemoryEngine()
	require.NoError(t, engine.CreateNode(&Node{ID: "a"}))
	require.NoError(t, engine.CreateNode(&Node{ID: "b"}))
	require.NoError(t, engine.CreateEdge(&Edge{ID: "e1", StartNode: "a", EndNode: "b", Type: "knows"}))
	require.NoError(t, engine.CreateEdge(&Edge{ID: "e2", StartNode: "b", EndNode: "a", Type: "knows"}))

	require.NoError(t, engine.DeleteNode("a"))

	count, err := engine.EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	out, err := engine.GetOutgoingEdges("b")
	require.NoError(t, err)
	assert.Empty(t, out)

	assert.ErrorIs(t, engine.DeleteNode("a"), ErrNotFound)
}

// Edge CRUD Tests

func TestMemoryEngine_CreateEdge(t *testing.T) {
	t.Run("missing endpoint", func(t *testing.T) {
		engine := NewMemoryEngine()
		require.NoError(t, engine.CreateNode(&Node{ID: "a"}))

		err := engine.CreateEdge(&Edge{ID: "e1", StartNode: "a", EndNode: "nope", Type: "knows"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("indexes adjacency and type", func(t *testing.T) {
		engine := NewMemoryEngine()
		require.NoError(t, engine.CreateNode(&Node{ID: "a"}))
		require.NoError(t, engine.CreateNode(&Node{ID: "b"}))
		require.NoError(t, engine.CreateEdge(&Edge{ID: "e1", StartNode: "a", EndNode: "b", Type: "knows"}))

		out, err := engine.GetOutgoingEdges("a")
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, EdgeID("e1"), out[0].ID)

		in, err := engine.GetIncomingEdges("b")
		require.NoError(t, err)
		require.Len(t, in, 1)

		assert.Equal(t, []EdgeID{"e1"}, scanEdgeIDs(t, engine, "knows"))
		assert.Empty(t, scanEdgeIDs(t, engine, "likes"))
	})
}

func TestMemoryEngine_UpdateEdge(t *testing.T) {
	engine := NewMemoryEngine()
	require.NoError(t, engine.CreateNode(&Node{ID: "a"}))
	require.NoError(t, engine.CreateNode(&Node{ID: "b"}))
	require.NoError(t, engine.CreateEdge(&Edge{ID: "e1", StartNode: "a", EndNode: "b", Type: "knows"}))

	edge, err := engine.GetEdge("e1")
	require.NoError(t, err)
	edge.Type = "likes"
	edge.Properties["weight"] = 0.5
	require.NoError(t, engine.UpdateEdge(edge))

	assert.Empty(t, scanEdgeIDs(t, engine, "knows"))
	assert.Equal(t, []EdgeID{"e1"}, scanEdgeIDs(t, engine, "likes"))

	stored, err := engine.GetEdge("e1")
	require.NoError(t, err)
	assert.Equal(t, 0.5, stored.Properties["weight"])
}

// Concurrency

func TestMemoryEngine_ConcurrentAccess(t *testing.T) {
	engine := NewMemoryEngine()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := NodeID(fmt.Sprintf("node-%d", i))
			assert.NoError(t, engine.CreateNode(&Node{ID: id, Labels: []string{"L"}}))
			_, err := engine.GetNode(id)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(50), count)
	assert.Len(t, scanNodeIDs(t, engine, "L"), 50)
}
