package storage

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Node Operations
// ============================================================================

// CreateNode creates a new node in persistent storage.
func (b *BadgerEngine) CreateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	stored := copyNode(node)
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	err := b.withUpdate(func(txn *badger.Txn) error {
		// Check if node already exists
		key := nodeKey(stored.ID)
		if err := nodeExistsInTxn(txn, stored.ID); err == nil {
			return ErrAlreadyExists
		} else if err != ErrNotFound {
			return err
		}

		data, err := encodeNode(stored)
		if err != nil {
			return fmt.Errorf("failed to encode node: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}

		// Create label indexes
		for _, label := range stored.Labels {
			if err := txn.Set(labelIndexKey(label, stored.ID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	node.CreatedAt = now
	node.UpdatedAt = now
	b.nodeCount.Add(1)
	return nil
}

// GetNode retrieves a node by ID.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	var node *Node
	err := b.withView(func(txn *badger.Txn) error {
		var err error
		node, err = getNodeInTxn(txn, id)
		return err
	})
	return node, err
}

// UpdateNode replaces an existing node. Label indexes follow the new label set.
func (b *BadgerEngine) UpdateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	stored := copyNode(node)
	stored.UpdatedAt = time.Now()

	return b.withUpdate(func(txn *badger.Txn) error {
		existing, err := getNodeInTxn(txn, stored.ID)
		if err != nil {
			return err
		}
		stored.CreatedAt = existing.CreatedAt

		for _, label := range existing.Labels {
			if err := txn.Delete(labelIndexKey(label, stored.ID)); err != nil {
				return err
			}
		}

		data, err := encodeNode(stored)
		if err != nil {
			return fmt.Errorf("failed to encode node: %w", err)
		}
		if err := txn.Set(nodeKey(stored.ID), data); err != nil {
			return err
		}

		for _, label := range stored.Labels {
			if err := txn.Set(labelIndexKey(label, stored.ID), []byte{}); err != nil {
				return err
			}
		}

		node.CreatedAt = stored.CreatedAt
		node.UpdatedAt = stored.UpdatedAt
		return nil
	})
}

// DeleteNode removes a node and every edge attached to it.
func (b *BadgerEngine) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}

	var removedEdges int64
	err := b.withUpdate(func(txn *badger.Txn) error {
		existing, err := getNodeInTxn(txn, id)
		if err != nil {
			return err
		}

		for _, label := range existing.Labels {
			if err := txn.Delete(labelIndexKey(label, id)); err != nil {
				return err
			}
		}

		edgeIDs := collectIndexIDs(txn, outgoingIndexPrefix(id))
		edgeIDs = append(edgeIDs, collectIndexIDs(txn, incomingIndexPrefix(id))...)

		seen := make(map[string]struct{}, len(edgeIDs))
		for _, edgeID := range edgeIDs {
			if _, dup := seen[edgeID]; dup {
				continue
			}
			seen[edgeID] = struct{}{}

			edge, err := getEdgeInTxn(txn, EdgeID(edgeID))
			if err == ErrNotFound {
				continue
			}
			if err != nil {
				return err
			}
			if err := deleteEdgeInTxn(txn, edge); err != nil {
				return err
			}
			removedEdges++
		}

		return txn.Delete(nodeKey(id))
	})
	if err != nil {
		return err
	}

	b.nodeCount.Add(-1)
	b.edgeCount.Add(-removedEdges)
	return nil
}
