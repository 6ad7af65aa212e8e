package storage

import (
	"sort"
	"sync"
	"time"
)

// MemoryEngine is an in-memory implementation of Engine.
// It's useful for:
// - Unit testing (no disk I/O)
// - Running plans against a scratch graph from the CLI
// - Small graphs that fit in RAM
//
// Scans return snapshots sorted by ID so results are deterministic.
type MemoryEngine struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge

	// Indexes for efficient lookups
	nodesByLabel  map[string]map[NodeID]struct{}
	edgesByType   map[string]map[EdgeID]struct{}
	outgoingEdges map[NodeID]map[EdgeID]struct{}
	incomingEdges map[NodeID]map[EdgeID]struct{}

	closed bool
}

// NewMemoryEngine creates a new in-memory storage engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		nodes:         make(map[NodeID]*Node),
		edges:         make(map[EdgeID]*Edge),
		nodesByLabel:  make(map[string]map[NodeID]struct{}),
		edgesByType:   make(map[string]map[EdgeID]struct{}),
		outgoingEdges: make(map[NodeID]map[EdgeID]struct{}),
		incomingEdges: make(map[NodeID]map[EdgeID]struct{}),
	}
}

// CreateNode creates a new node.
func (m *MemoryEngine) CreateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if _, exists := m.nodes[node.ID]; exists {
		return ErrAlreadyExists
	}

	// Deep copy to prevent external mutation
	stored := copyNode(node)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.nodes[node.ID] = stored
	m.indexLabels(stored)

	return nil
}

// GetNode retrieves a node by ID.
func (m *MemoryEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	node, exists := m.nodes[id]
	if !exists {
		return nil, ErrNotFound
	}

	return copyNode(node), nil
}

// UpdateNode updates an existing node.
func (m *MemoryEngine) UpdateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	existing, exists := m.nodes[node.ID]
	if !exists {
		return ErrNotFound
	}

	// Remove from old label indexes
	for _, label := range existing.Labels {
		if m.nodesByLabel[label] != nil {
			delete(m.nodesByLabel[label], node.ID)
		}
	}

	stored := copyNode(node)
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	m.nodes[node.ID] = stored
	m.indexLabels(stored)

	return nil
}

// DeleteNode removes a node and all its edges.
func (m *MemoryEngine) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	node, exists := m.nodes[id]
	if !exists {
		return ErrNotFound
	}

	for _, label := range node.Labels {
		if m.nodesByLabel[label] != nil {
			delete(m.nodesByLabel[label], id)
		}
	}

	for edgeID := range m.outgoingEdges[id] {
		m.unlinkEdge(edgeID)
	}
	for edgeID := range m.incomingEdges[id] {
		m.unlinkEdge(edgeID)
	}
	delete(m.outgoingEdges, id)
	delete(m.incomingEdges, id)

	delete(m.nodes, id)
	return nil
}

// CreateEdge creates a new edge.
func (m *MemoryEngine) CreateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if _, exists := m.edges[edge.ID]; exists {
		return ErrAlreadyExists
	}

	// Verify start and end nodes exist
	if _, exists := m.nodes[edge.StartNode]; !exists {
		return ErrNotFound
	}
	if _, exists := m.nodes[edge.EndNode]; !exists {
		return ErrNotFound
	}

	stored := copyEdge(edge)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.edges[edge.ID] = stored
	m.linkEdge(stored)

	return nil
}

// GetEdge retrieves an edge by ID.
func (m *MemoryEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edge, exists := m.edges[id]
	if !exists {
		return nil, ErrNotFound
	}

	return copyEdge(edge), nil
}

// UpdateEdge updates an existing edge.
func (m *MemoryEngine) UpdateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	existing, exists := m.edges[edge.ID]
	if !exists {
		return ErrNotFound
	}

	if existing.StartNode != edge.StartNode || existing.EndNode != edge.EndNode {
		if _, exists := m.nodes[edge.StartNode]; !exists {
			return ErrNotFound
		}
		if _, exists := m.nodes[edge.EndNode]; !exists {
			return ErrNotFound
		}
	}

	m.unlinkEdge(edge.ID)
	stored := copyEdge(edge)
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	m.edges[edge.ID] = stored
	m.linkEdge(stored)

	return nil
}

// DeleteEdge removes an edge.
func (m *MemoryEngine) DeleteEdge(id EdgeID) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if _, exists := m.edges[id]; !exists {
		return ErrNotFound
	}

	m.unlinkEdge(id)
	return nil
}

// ScanNodes returns an iterator over a snapshot of the nodes carrying label,
// or of all nodes when label is empty.
func (m *MemoryEngine) ScanNodes(label string) (NodeIterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	var nodes []*Node
	if label == "" {
		nodes = make([]*Node, 0, len(m.nodes))
		for _, node := range m.nodes {
			nodes = append(nodes, copyNode(node))
		}
	} else {
		ids := m.nodesByLabel[label]
		nodes = make([]*Node, 0, len(ids))
		for id := range ids {
			if node := m.nodes[id]; node != nil {
				nodes = append(nodes, copyNode(node))
			}
		}
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return NewNodeSliceIterator(nodes), nil
}

// ScanEdges returns an iterator over a snapshot of the edges of edgeType,
// or of all edges when edgeType is empty.
func (m *MemoryEngine) ScanEdges(edgeType string) (EdgeIterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	var edges []*Edge
	if edgeType == "" {
		edges = make([]*Edge, 0, len(m.edges))
		for _, edge := range m.edges {
			edges = append(edges, copyEdge(edge))
		}
	} else {
		edges = m.collectEdges(m.edgesByType[edgeType])
	}

	sortEdges(edges)
	return NewEdgeSliceIterator(edges), nil
}

// GetOutgoingEdges returns all edges starting from the given node.
func (m *MemoryEngine) GetOutgoingEdges(nodeID NodeID) ([]*Edge, error) {
	if nodeID == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edges := m.collectEdges(m.outgoingEdges[nodeID])
	sortEdges(edges)
	return edges, nil
}

// GetIncomingEdges returns all edges ending at the given node.
func (m *MemoryEngine) GetIncomingEdges(nodeID NodeID) ([]*Edge, error) {
	if nodeID == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edges := m.collectEdges(m.incomingEdges[nodeID])
	sortEdges(edges)
	return edges, nil
}

// Close closes the storage engine.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.nodes = nil
	m.edges = nil
	m.nodesByLabel = nil
	m.edgesByType = nil
	m.outgoingEdges = nil
	m.incomingEdges = nil

	return nil
}

// NodeCount returns the number of nodes.
func (m *MemoryEngine) NodeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStorageClosed
	}

	return int64(len(m.nodes)), nil
}

// EdgeCount returns the number of edges.
func (m *MemoryEngine) EdgeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStorageClosed
	}

	return int64(len(m.edges)), nil
}

// indexLabels adds the node to the label index. Caller holds m.mu.
func (m *MemoryEngine) indexLabels(node *Node) {
	for _, label := range node.Labels {
		if m.nodesByLabel[label] == nil {
			m.nodesByLabel[label] = make(map[NodeID]struct{})
		}
		m.nodesByLabel[label][node.ID] = struct{}{}
	}
}

// linkEdge adds the edge to the adjacency and type indexes. Caller holds m.mu.
func (m *MemoryEngine) linkEdge(edge *Edge) {
	if m.outgoingEdges[edge.StartNode] == nil {
		m.outgoingEdges[edge.StartNode] = make(map[EdgeID]struct{})
	}
	m.outgoingEdges[edge.StartNode][edge.ID] = struct{}{}

	if m.incomingEdges[edge.EndNode] == nil {
		m.incomingEdges[edge.EndNode] = make(map[EdgeID]struct{})
	}
	m.incomingEdges[edge.EndNode][edge.ID] = struct{}{}

	if m.edgesByType[edge.Type] == nil {
		m.edgesByType[edge.Type] = make(map[EdgeID]struct{})
	}
	m.edgesByType[edge.Type][edge.ID] = struct{}{}
}

// unlinkEdge removes the edge and its index entries. Caller holds m.mu.
func (m *MemoryEngine) unlinkEdge(id EdgeID) {
	edge := m.edges[id]
	if edge == nil {
		return
	}
	if out := m.outgoingEdges[edge.StartNode]; out != nil {
		delete(out, id)
	}
	if in := m.incomingEdges[edge.EndNode]; in != nil {
		delete(in, id)
	}
	if byType := m.edgesByType[edge.Type]; byType != nil {
		delete(byType, id)
	}
	delete(m.edges, id)
}

func (m *MemoryEngine) collectEdges(ids map[EdgeID]struct{}) []*Edge {
	edges := make([]*Edge, 0, len(ids))
	for id := range ids {
		if edge := m.edges[id]; edge != nil {
			edges = append(edges, copyEdge(edge))
		}
	}
	return edges
}

func sortEdges(edges []*Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
}

// copyNode creates a deep copy of a node.
func copyNode(n *Node) *Node {
	if n == nil {
		return nil
	}

	copied := &Node{
		ID:         n.ID,
		Labels:     make([]string, len(n.Labels)),
		Properties: make(map[string]any, len(n.Properties)),
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}

	copy(copied.Labels, n.Labels)
	for k, v := range n.Properties {
		copied.Properties[k] = v
	}

	return copied
}

// copyEdge creates a deep copy of an edge.
func copyEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}

	copied := &Edge{
		ID:         e.ID,
		StartNode:  e.StartNode,
		EndNode:    e.EndNode,
		Type:       e.Type,
		Properties: make(map[string]any, len(e.Properties)),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}

	for k, v := range e.Properties {
		copied.Properties[k] = v
	}

	return copied
}

// Verify MemoryEngine implements Engine interface
var _ Engine = (*MemoryEngine)(nil)
