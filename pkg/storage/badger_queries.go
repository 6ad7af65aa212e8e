package storage

import (
	"sort"

	"github.com/dgraph-io/badger/v4"
)

// Query Operations
// ============================================================================

// badgerNodeIterator streams nodes out of a read transaction. With a label it
// walks the label index and loads each node; otherwise it walks the node
// prefix directly.
type badgerNodeIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	label   string
	prefix  []byte
	byIndex bool
	started bool
	current *Node
	err     error
}

func (i *badgerNodeIterator) Next() bool {
	if i.it == nil || i.err != nil {
		return false
	}
	for {
		if !i.started {
			i.it.Rewind()
			i.started = true
		} else {
			i.it.Next()
		}
		if !i.it.Valid() {
			return false
		}

		var node *Node
		var err error
		if i.byIndex {
			id := idFromIndexKey(i.it.Item().Key(), len(i.prefix))
			node, err = getNodeInTxn(i.txn, NodeID(id))
			if err == ErrNotFound {
				continue
			}
		} else {
			err = i.it.Item().Value(func(val []byte) error {
				var decodeErr error
				node, decodeErr = decodeNode(val)
				return decodeErr
			})
		}
		if err != nil {
			i.err = err
			return false
		}
		// The index is case-folded; keep exact label semantics.
		if i.byIndex && !node.HasLabel(i.label) {
			continue
		}
		i.current = node
		return true
	}
}

func (i *badgerNodeIterator) Node() *Node { return i.current }
func (i *badgerNodeIterator) Err() error  { return i.err }

func (i *badgerNodeIterator) Close() error {
	if i.it != nil {
		i.it.Close()
		i.it = nil
	}
	if i.txn != nil {
		i.txn.Discard()
		i.txn = nil
	}
	return nil
}

// badgerEdgeIterator mirrors badgerNodeIterator for edges.
type badgerEdgeIterator struct {
	txn      *badger.Txn
	it       *badger.Iterator
	edgeType string
	prefix   []byte
	byIndex  bool
	started  bool
	current  *Edge
	err      error
}

func (i *badgerEdgeIterator) Next() bool {
	if i.it == nil || i.err != nil {
		return false
	}
	for {
		if !i.started {
			i.it.Rewind()
			i.started = true
		} else {
			i.it.Next()
		}
		if !i.it.Valid() {
			return false
		}

		var edge *Edge
		var err error
		if i.byIndex {
			id := idFromIndexKey(i.it.Item().Key(), len(i.prefix))
			edge, err = getEdgeInTxn(i.txn, EdgeID(id))
			if err == ErrNotFound {
				continue
			}
		} else {
			err = i.it.Item().Value(func(val []byte) error {
				var decodeErr error
				edge, decodeErr = decodeEdge(val)
				return decodeErr
			})
		}
		if err != nil {
			i.err = err
			return false
		}
		if i.byIndex && edge.Type != i.edgeType {
			continue
		}
		i.current = edge
		return true
	}
}

func (i *badgerEdgeIterator) Edge() *Edge { return i.current }
func (i *badgerEdgeIterator) Err() error  { return i.err }

func (i *badgerEdgeIterator) Close() error {
	if i.it != nil {
		i.it.Close()
		i.it = nil
	}
	if i.txn != nil {
		i.txn.Discard()
		i.txn = nil
	}
	return nil
}

// ScanNodes streams the nodes carrying label, or all nodes when label is
// empty, in key order. The iterator holds a read transaction until Close.
func (b *BadgerEngine) ScanNodes(label string) (NodeIterator, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	txn := b.db.NewTransaction(false)
	iter := &badgerNodeIterator{txn: txn, label: label}
	if label == "" {
		iter.prefix = []byte{prefixNode}
		iter.it = txn.NewIterator(badgerIterOptsPrefetchValues(iter.prefix, 100))
	} else {
		iter.prefix = labelIndexPrefix(label)
		iter.byIndex = true
		iter.it = txn.NewIterator(badgerIterOptsKeyOnly(iter.prefix))
	}
	return iter, nil
}

// ScanEdges streams the edges of edgeType, or all edges when edgeType is
// empty, in key order. The iterator holds a read transaction until Close.
func (b *BadgerEngine) ScanEdges(edgeType string) (EdgeIterator, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	txn := b.db.NewTransaction(false)
	iter := &badgerEdgeIterator{txn: txn, edgeType: edgeType}
	if edgeType == "" {
		iter.prefix = []byte{prefixEdge}
		iter.it = txn.NewIterator(badgerIterOptsPrefetchValues(iter.prefix, 100))
	} else {
		iter.prefix = edgeTypeIndexPrefix(edgeType)
		iter.byIndex = true
		iter.it = txn.NewIterator(badgerIterOptsKeyOnly(iter.prefix))
	}
	return iter, nil
}

// GetOutgoingEdges returns all edges starting from the given node.
func (b *BadgerEngine) GetOutgoingEdges(nodeID NodeID) ([]*Edge, error) {
	if nodeID == "" {
		return nil, ErrInvalidID
	}
	return b.edgesByIndex(outgoingIndexPrefix(nodeID))
}

// GetIncomingEdges returns all edges ending at the given node.
func (b *BadgerEngine) GetIncomingEdges(nodeID NodeID) ([]*Edge, error) {
	if nodeID == "" {
		return nil, ErrInvalidID
	}
	return b.edgesByIndex(incomingIndexPrefix(nodeID))
}

func (b *BadgerEngine) edgesByIndex(prefix []byte) ([]*Edge, error) {
	var edges []*Edge
	err := b.withView(func(txn *badger.Txn) error {
		for _, id := range collectIndexIDs(txn, prefix) {
			edge, err := getEdgeInTxn(txn, EdgeID(id))
			if err == ErrNotFound {
				continue
			}
			if err != nil {
				return err
			}
			edges = append(edges, edge)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}
