package traversal

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/orneryd/nornictrav/pkg/event"
	"github.com/orneryd/nornictrav/pkg/storage"
)

var edgeTokens = []Token{TokenID, TokenLabel, TokenOut, TokenIn}

// edgeKind instantiates the merge flow for edges (mergeE).
type edgeKind struct{}

type edgeIterator struct {
	storage.EdgeIterator
}

func (i edgeIterator) Value() *storage.Edge { return i.Edge() }

func (edgeKind) kind() event.ElementKind      { return event.KindEdge }
func (edgeKind) allowedTokens() []Token       { return edgeTokens }
func (edgeKind) id(e *storage.Edge) string    { return string(e.ID) }
func (edgeKind) label(e *storage.Edge) string { return e.Type }

func (edgeKind) update(s storage.Engine, e *storage.Edge) error { return s.UpdateEdge(e) }

func (edgeKind) properties(e *storage.Edge) map[string]any {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	return e.Properties
}

func (edgeKind) resolve(r *mergeRun, m *Map) error {
	if err := r.resolveEndpoint(m, TokenOut, MergeOutV, r.step.outV); err != nil {
		return err
	}
	return r.resolveEndpoint(m, TokenIn, MergeInV, r.step.inV)
}

// search picks the access path by precedence: id, then label, then out
// vertex, then in vertex, then a full scan. matches re-applies every key, so
// the path chosen never changes the result.
func (edgeKind) search(store storage.Engine, m *Map) (elementIterator[*storage.Edge], error) {
	if v, ok := m.GetToken(TokenID); ok {
		id, _ := elementID(v)
		edge, err := store.GetEdge(storage.EdgeID(id))
		if errors.Is(err, storage.ErrNotFound) {
			return edgeIterator{storage.NewEdgeSliceIterator(nil)}, nil
		}
		if err != nil {
			return nil, err
		}
		return edgeIterator{storage.NewEdgeSliceIterator([]*storage.Edge{edge})}, nil
	}
	if v, ok := m.GetToken(TokenLabel); ok {
		it, err := store.ScanEdges(v.(string))
		if err != nil {
			return nil, err
		}
		return edgeIterator{it}, nil
	}
	if v, ok := m.GetToken(TokenOut); ok {
		id, _ := elementID(v)
		edges, err := store.GetOutgoingEdges(storage.NodeID(id))
		if err != nil {
			return nil, err
		}
		return edgeIterator{storage.NewEdgeSliceIterator(edges)}, nil
	}
	if v, ok := m.GetToken(TokenIn); ok {
		id, _ := elementID(v)
		edges, err := store.GetIncomingEdges(storage.NodeID(id))
		if err != nil {
			return nil, err
		}
		return edgeIterator{storage.NewEdgeSliceIterator(edges)}, nil
	}
	it, err := store.ScanEdges("")
	if err != nil {
		return nil, err
	}
	return edgeIterator{it}, nil
}

func (edgeKind) matches(e *storage.Edge, m *Map) bool {
	for _, k := range m.keys {
		if !k.IsToken() {
			continue
		}
		v := m.values[k]
		switch k.token {
		case TokenID:
			if id, _ := elementID(v); id != string(e.ID) {
				return false
			}
		case TokenLabel:
			if v != e.Type {
				return false
			}
		case TokenOut:
			if id, _ := elementID(v); id != string(e.StartNode) {
				return false
			}
		case TokenIn:
			if id, _ := elementID(v); id != string(e.EndNode) {
				return false
			}
		}
	}
	return propertiesMatch(e.Properties, m)
}

func (edgeKind) create(r *mergeRun, m *Map) (*storage.Edge, error) {
	outRef, ok := m.GetToken(TokenOut)
	if !ok {
		return nil, fmt.Errorf("%w: out vertex not specified - edge cannot be created", ErrCreatePrecondition)
	}
	inRef, ok := m.GetToken(TokenIn)
	if !ok {
		return nil, fmt.Errorf("%w: in vertex not specified - edge cannot be created", ErrCreatePrecondition)
	}

	from, err := r.attachVertex(outRef)
	if err != nil {
		return nil, err
	}
	to, err := r.attachVertex(inRef)
	if err != nil {
		return nil, err
	}

	edge := &storage.Edge{
		ID:         storage.EdgeID(newElementID(m)),
		StartNode:  from.ID,
		EndNode:    to.ID,
		Type:       storage.DefaultEdgeType,
		Properties: m.Properties(),
	}
	if v, ok := m.GetToken(TokenLabel); ok {
		edge.Type = v.(string)
	}
	if err := r.env.store.CreateEdge(edge); err != nil {
		return nil, fmt.Errorf("mergeE create %s: %w", edge.ID, err)
	}
	return edge, nil
}

// newElementID uses T.id when the create map binds it, a fresh uuid otherwise.
func newElementID(m *Map) string {
	if v, ok := m.GetToken(TokenID); ok {
		if id, ok := elementID(v); ok {
			return id
		}
	}
	return uuid.NewString()
}

// ============================================================================
// Endpoint resolution
// ============================================================================

// resolveEndpoint rewrites the dir entry of m to a vertex id. The Merge
// token own defers to the option traversal; a vertex is flattened to its
// id; any other value is already an id and passes through.
func (r *mergeRun) resolveEndpoint(m *Map, dir Token, own Merge, option any) error {
	v, ok := m.GetToken(dir)
	if !ok {
		return nil
	}
	switch x := v.(type) {
	case Merge:
		if x != own {
			return fmt.Errorf("%w: %s cannot be used for %s, use %s", ErrResolution, x, dir, own)
		}
		if option == nil {
			return fmt.Errorf("%w: option(%s) must be specified if it is used for %s", ErrResolution, own, dir)
		}
		node, err := r.resolveVertexOption(own, option)
		if err != nil {
			return err
		}
		m.Set(TokenKey(dir), node.ID)
	case *storage.Node:
		m.Set(TokenKey(dir), x.ID)
	}
	return nil
}

// resolveVertexOption evaluates an outV/inV option. A vertex is re-read from
// the store; a map is a vertex search whose first match wins. Endpoints are
// looked up, never created.
func (r *mergeRun) resolveVertexOption(opt Merge, option any) (*storage.Node, error) {
	v := option
	if sub, ok := option.(*Traversal); ok {
		var err error
		v, err = Apply(r.ctx, r.t, sub)
		if errors.Is(err, ErrNoValue) {
			return nil, fmt.Errorf("%w: option(%s) produced no vertex", ErrResolution, opt)
		}
		if err != nil {
			return nil, fmt.Errorf("option(%s): %w", opt, err)
		}
	}

	if node, ok := v.(*storage.Node); ok {
		return r.attachVertex(node)
	}
	search, ok := toMap(v)
	if !ok {
		return nil, fmt.Errorf("%w: option(%s) must produce a vertex or a map, got %T", ErrResolution, opt, v)
	}
	if err := validateMap(fmt.Sprintf("option(%s)", opt), roleMerge, search, vertexTokens); err != nil {
		return nil, err
	}
	found, err := collectMatches[*storage.Node](vertexKind{}, r.env.store, search)
	if err != nil {
		return nil, fmt.Errorf("option(%s) vertex search: %w", opt, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: could not resolve vertex for option(%s) from %s", ErrResolution, opt, search)
	}
	return found[0], nil
}

// attachVertex loads the vertex named by ref (a vertex or an id) from the
// active store.
func (r *mergeRun) attachVertex(ref any) (*storage.Node, error) {
	id, ok := elementID(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T) is not a vertex reference", ErrResolution, ref, ref)
	}
	node, err := r.env.store.GetNode(storage.NodeID(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: vertex %s is not in the graph", ErrResolution, id)
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}
