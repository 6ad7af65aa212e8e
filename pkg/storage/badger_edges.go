package storage

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Edge Operations
// ============================================================================

// CreateEdge creates a new edge between two existing nodes.
func (b *BadgerEngine) CreateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	stored := copyEdge(edge)
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	err := b.withUpdate(func(txn *badger.Txn) error {
		key := edgeKey(stored.ID)
		if _, err := getEdgeInTxn(txn, stored.ID); err == nil {
			return ErrAlreadyExists
		} else if err != ErrNotFound {
			return err
		}

		// Verify endpoints exist
		if err := nodeExistsInTxn(txn, stored.StartNode); err != nil {
			if err == ErrNotFound {
				return fmt.Errorf("start node %s: %w", stored.StartNode, ErrNotFound)
			}
			return err
		}
		if err := nodeExistsInTxn(txn, stored.EndNode); err != nil {
			if err == ErrNotFound {
				return fmt.Errorf("end node %s: %w", stored.EndNode, ErrNotFound)
			}
			return err
		}

		data, err := encodeEdge(stored)
		if err != nil {
			return fmt.Errorf("failed to encode edge: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return indexEdgeInTxn(txn, stored)
	})
	if err != nil {
		return err
	}

	edge.CreatedAt = now
	edge.UpdatedAt = now
	b.edgeCount.Add(1)
	return nil
}

// GetEdge retrieves an edge by ID.
func (b *BadgerEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	var edge *Edge
	err := b.withView(func(txn *badger.Txn) error {
		var err error
		edge, err = getEdgeInTxn(txn, id)
		return err
	})
	return edge, err
}

// UpdateEdge replaces an existing edge. Endpoints and type may change; the
// adjacency and type indexes are rewritten accordingly.
func (b *BadgerEngine) UpdateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	stored := copyEdge(edge)
	stored.UpdatedAt = time.Now()

	return b.withUpdate(func(txn *badger.Txn) error {
		existing, err := getEdgeInTxn(txn, stored.ID)
		if err != nil {
			return err
		}
		stored.CreatedAt = existing.CreatedAt

		if existing.StartNode != stored.StartNode || existing.EndNode != stored.EndNode {
			if err := nodeExistsInTxn(txn, stored.StartNode); err != nil {
				return err
			}
			if err := nodeExistsInTxn(txn, stored.EndNode); err != nil {
				return err
			}
		}

		if err := unindexEdgeInTxn(txn, existing); err != nil {
			return err
		}

		data, err := encodeEdge(stored)
		if err != nil {
			return fmt.Errorf("failed to encode edge: %w", err)
		}
		if err := txn.Set(edgeKey(stored.ID), data); err != nil {
			return err
		}
		if err := indexEdgeInTxn(txn, stored); err != nil {
			return err
		}

		edge.CreatedAt = stored.CreatedAt
		edge.UpdatedAt = stored.UpdatedAt
		return nil
	})
}

// DeleteEdge removes an edge.
func (b *BadgerEngine) DeleteEdge(id EdgeID) error {
	if id == "" {
		return ErrInvalidID
	}

	err := b.withUpdate(func(txn *badger.Txn) error {
		existing, err := getEdgeInTxn(txn, id)
		if err != nil {
			return err
		}
		return deleteEdgeInTxn(txn, existing)
	})
	if err != nil {
		return err
	}

	b.edgeCount.Add(-1)
	return nil
}

func indexEdgeInTxn(txn *badger.Txn, edge *Edge) error {
	if err := txn.Set(outgoingIndexKey(edge.StartNode, edge.ID), []byte{}); err != nil {
		return err
	}
	if err := txn.Set(incomingIndexKey(edge.EndNode, edge.ID), []byte{}); err != nil {
		return err
	}
	return txn.Set(edgeTypeIndexKey(edge.Type, edge.ID), []byte{})
}

func unindexEdgeInTxn(txn *badger.Txn, edge *Edge) error {
	if err := txn.Delete(outgoingIndexKey(edge.StartNode, edge.ID)); err != nil {
		return err
	}
	if err := txn.Delete(incomingIndexKey(edge.EndNode, edge.ID)); err != nil {
		return err
	}
	return txn.Delete(edgeTypeIndexKey(edge.Type, edge.ID))
}

func deleteEdgeInTxn(txn *badger.Txn, edge *Edge) error {
	if err := unindexEdgeInTxn(txn, edge); err != nil {
		return err
	}
	return txn.Delete(edgeKey(edge.ID))
}
