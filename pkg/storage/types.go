// Package storage provides the graph store used by the traversal engine.
//
// Two engines implement Engine:
//   - MemoryEngine: thread-safe maps, used for tests and small graphs
//   - BadgerEngine: persistent storage on BadgerDB
//
// The traversal core only talks to Engine. It never manages transactions or
// storage layout; each Engine call is atomic on its own and nothing more.
package storage

import (
	"encoding/gob"
	"errors"
	"fmt"
	"time"
)

// Errors returned by storage engines.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrStorageClosed = errors.New("storage closed")
)

// Labels used when an element is created without one.
const (
	DefaultNodeLabel = "vertex"
	DefaultEdgeType  = "edge"
)

// NodeID identifies a node (vertex).
type NodeID string

// EdgeID identifies an edge.
type EdgeID string

// Node is a vertex in the property graph.
type Node struct {
	ID         NodeID
	Labels     []string
	Properties map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Label returns the primary label of the node, or "" if it has none.
func (n *Node) Label() string {
	if n == nil || len(n.Labels) == 0 {
		return ""
	}
	return n.Labels[0]
}

// HasLabel reports whether the node carries the given label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// String renders the node as v[id].
func (n *Node) String() string {
	return fmt.Sprintf("v[%s]", n.ID)
}

// Edge is a directed, typed relationship between two nodes.
type Edge struct {
	ID         EdgeID
	StartNode  NodeID
	EndNode    NodeID
	Type       string
	Properties map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// String renders the edge as e[id][out-type->in].
func (e *Edge) String() string {
	return fmt.Sprintf("e[%s][%s-%s->%s]", e.ID, e.StartNode, e.Type, e.EndNode)
}

// NodeIterator streams nodes out of a scan. Callers must Close it on every
// path; the Badger implementation holds a read transaction until then.
type NodeIterator interface {
	Next() bool
	Node() *Node
	Err() error
	Close() error
}

// EdgeIterator streams edges out of a scan. Same contract as NodeIterator.
type EdgeIterator interface {
	Next() bool
	Edge() *Edge
	Err() error
	Close() error
}

// Engine is the storage boundary of the traversal engine.
//
// Returned nodes and edges are copies: mutating them has no effect until
// they are passed back through UpdateNode/UpdateEdge.
type Engine interface {
	// Node operations
	CreateNode(node *Node) error
	GetNode(id NodeID) (*Node, error)
	UpdateNode(node *Node) error
	DeleteNode(id NodeID) error

	// Edge operations
	CreateEdge(edge *Edge) error
	GetEdge(id EdgeID) (*Edge, error)
	UpdateEdge(edge *Edge) error
	DeleteEdge(id EdgeID) error

	// Scans. An empty label / type scans everything.
	ScanNodes(label string) (NodeIterator, error)
	ScanEdges(edgeType string) (EdgeIterator, error)

	// Adjacency
	GetOutgoingEdges(nodeID NodeID) ([]*Edge, error)
	GetIncomingEdges(nodeID NodeID) ([]*Edge, error)

	// Stats and lifecycle
	NodeCount() (int64, error)
	EdgeCount() (int64, error)
	Close() error
}

func init() {
	// Property values travel through gob as interfaces.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(time.Time{})
}

// sliceNodeIterator iterates over a materialized snapshot.
type sliceNodeIterator struct {
	nodes []*Node
	pos   int
}

func (it *sliceNodeIterator) Next() bool {
	if it.pos >= len(it.nodes) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceNodeIterator) Node() *Node  { return it.nodes[it.pos-1] }
func (it *sliceNodeIterator) Err() error   { return nil }
func (it *sliceNodeIterator) Close() error { it.nodes = nil; return nil }

type sliceEdgeIterator struct {
	edges []*Edge
	pos   int
}

func (it *sliceEdgeIterator) Next() bool {
	if it.pos >= len(it.edges) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceEdgeIterator) Edge() *Edge  { return it.edges[it.pos-1] }
func (it *sliceEdgeIterator) Err() error   { return nil }
func (it *sliceEdgeIterator) Close() error { it.edges = nil; return nil }

// NewNodeSliceIterator wraps an already materialized node list.
func NewNodeSliceIterator(nodes []*Node) NodeIterator {
	return &sliceNodeIterator{nodes: nodes}
}

// NewEdgeSliceIterator wraps an already materialized edge list.
func NewEdgeSliceIterator(edges []*Edge) EdgeIterator {
	return &sliceEdgeIterator{edges: edges}
}
