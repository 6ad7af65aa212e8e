package traversal

import (
	"errors"
	"fmt"

	"github.com/orneryd/nornictrav/pkg/event"
	"github.com/orneryd/nornictrav/pkg/storage"
)

var vertexTokens = []Token{TokenID, TokenLabel}

// vertexKind instantiates the merge flow for vertices (mergeV).
type vertexKind struct{}

type nodeIterator struct {
	storage.NodeIterator
}

func (i nodeIterator) Value() *storage.Node { return i.Node() }

func (vertexKind) kind() event.ElementKind                        { return event.KindVertex }
func (vertexKind) allowedTokens() []Token                         { return vertexTokens }
func (vertexKind) resolve(*mergeRun, *Map) error                  { return nil }
func (vertexKind) id(n *storage.Node) string                      { return string(n.ID) }
func (vertexKind) label(n *storage.Node) string                   { return n.Label() }
func (vertexKind) update(s storage.Engine, n *storage.Node) error { return s.UpdateNode(n) }

func (vertexKind) properties(n *storage.Node) map[string]any {
	if n.Properties == nil {
		n.Properties = make(map[string]any)
	}
	return n.Properties
}

func (vertexKind) search(store storage.Engine, m *Map) (elementIterator[*storage.Node], error) {
	if v, ok := m.GetToken(TokenID); ok {
		id, _ := elementID(v)
		node, err := store.GetNode(storage.NodeID(id))
		if errors.Is(err, storage.ErrNotFound) {
			return nodeIterator{storage.NewNodeSliceIterator(nil)}, nil
		}
		if err != nil {
			return nil, err
		}
		return nodeIterator{storage.NewNodeSliceIterator([]*storage.Node{node})}, nil
	}
	label := ""
	if v, ok := m.GetToken(TokenLabel); ok {
		label = v.(string)
	}
	it, err := store.ScanNodes(label)
	if err != nil {
		return nil, err
	}
	return nodeIterator{it}, nil
}

func (vertexKind) matches(n *storage.Node, m *Map) bool {
	if v, ok := m.GetToken(TokenID); ok {
		if id, _ := elementID(v); id != string(n.ID) {
			return false
		}
	}
	if v, ok := m.GetToken(TokenLabel); ok {
		label, _ := v.(string)
		if !n.HasLabel(label) {
			return false
		}
	}
	return propertiesMatch(n.Properties, m)
}

func (vertexKind) create(r *mergeRun, m *Map) (*storage.Node, error) {
	label := storage.DefaultNodeLabel
	if v, ok := m.GetToken(TokenLabel); ok {
		label = v.(string)
	}
	node := &storage.Node{
		ID:         storage.NodeID(newElementID(m)),
		Labels:     []string{label},
		Properties: m.Properties(),
	}
	if err := r.env.store.CreateNode(node); err != nil {
		return nil, fmt.Errorf("mergeV create %s: %w", node.ID, err)
	}
	return node, nil
}
