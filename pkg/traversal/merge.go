package traversal

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orneryd/nornictrav/pkg/event"
	"github.com/orneryd/nornictrav/pkg/storage"
)

// env is what a compiled traversal executes against. Child traversals share
// their parent's env.
type env struct {
	store   storage.Engine
	sink    event.Sink
	metrics *Metrics
	verbose bool
}

func defaultEnv() *env {
	return &env{sink: event.Nop{}}
}

// mergeStep is the payload of a KindMerge step. Each map source is nil, a
// constant map, or a *Traversal evaluated against the incoming traverser.
// A nil merge source uses the incoming value itself as the merge map.
type mergeStep struct {
	vertex  bool
	isStart bool

	merge    any
	onCreate any
	onMatch  any
	outV     any
	inV      any
}

func (m *mergeStep) name() string {
	if m.vertex {
		return "mergeV"
	}
	return "mergeE"
}

func checkMapSource(v any) error {
	switch s := v.(type) {
	case nil, *Traversal:
		return nil
	default:
		if _, ok := toMap(s); ok {
			return nil
		}
		return fmt.Errorf("%w: expected a map or a traversal, got %T", ErrValidation, v)
	}
}

func (m *mergeStep) setOption(opt Merge, v any) error {
	switch opt {
	case MergeOnCreate, MergeOnMatch:
		if err := checkMapSource(v); err != nil {
			return fmt.Errorf("%s option(%s): %w", m.name(), opt, err)
		}
		if opt == MergeOnCreate {
			m.onCreate = v
		} else {
			m.onMatch = v
		}
		return nil
	case MergeOutV, MergeInV:
		if m.vertex {
			return fmt.Errorf("%w: %s does not take option(%s)", ErrValidation, m.name(), opt)
		}
		if _, isNode := v.(*storage.Node); !isNode {
			if err := checkMapSource(v); err != nil {
				return fmt.Errorf("%s option(%s): %w", m.name(), opt, err)
			}
		}
		if opt == MergeOutV {
			m.outV = v
		} else {
			m.inV = v
		}
		return nil
	}
	return fmt.Errorf("%w: unknown merge option %s", ErrValidation, opt)
}

func (m *mergeStep) children() []*Traversal {
	var out []*Traversal
	for _, src := range []any{m.merge, m.onCreate, m.onMatch, m.outV, m.inV} {
		if sub, ok := src.(*Traversal); ok && sub != nil {
			out = append(out, sub)
		}
	}
	return out
}

func (m *mergeStep) String() string {
	var parts []string
	for _, src := range []any{m.merge, m.onCreate, m.onMatch, m.outV, m.inV} {
		switch s := src.(type) {
		case nil:
			continue
		case *Traversal:
			parts = append(parts, s.graph.String())
		default:
			parts = append(parts, fmt.Sprint(s))
		}
	}
	kind := "MergeEdgeStep"
	if m.vertex {
		kind = "MergeVertexStep"
	}
	return kind + "(" + strings.Join(parts, ",") + ")"
}

// run executes the merge for one traverser and returns the emitted elements.
func (m *mergeStep) run(ctx context.Context, e *env, t *Traverser) ([]any, error) {
	if m.vertex {
		nodes, err := runMerge[*storage.Node](ctx, vertexKind{}, m, e, t)
		return toAny(nodes, err)
	}
	edges, err := runMerge[*storage.Edge](ctx, edgeKind{}, m, e, t)
	return toAny(edges, err)
}

func toAny[E element](elements []E, err error) ([]any, error) {
	if err != nil {
		return nil, err
	}
	out := make([]any, len(elements))
	for i, el := range elements {
		out[i] = el
	}
	return out, nil
}

// ============================================================================
// Generic merge flow
// ============================================================================

type element interface {
	*storage.Node | *storage.Edge
}

type elementIterator[E element] interface {
	Next() bool
	Value() E
	Err() error
	Close() error
}

// elementKind is what the merge flow needs to know about one element kind.
type elementKind[E element] interface {
	kind() event.ElementKind
	allowedTokens() []Token
	// resolve rewrites endpoint references in m to vertex ids.
	resolve(r *mergeRun, m *Map) error
	// search opens the most selective access path for m.
	search(store storage.Engine, m *Map) (elementIterator[E], error)
	// matches applies every criterion of m to e.
	matches(e E, m *Map) bool
	// create checks preconditions and writes a new element built from m.
	create(r *mergeRun, m *Map) (E, error)
	id(e E) string
	label(e E) string
	properties(e E) map[string]any
	update(store storage.Engine, e E) error
}

// mergeRun is the scope of one merge execution.
type mergeRun struct {
	ctx  context.Context
	env  *env
	step *mergeStep
	t    *Traverser
}

// materialize evaluates a map source against the traverser. The result is
// always a private copy.
func (r *mergeRun) materialize(role mapRole, src any) (*Map, error) {
	var v any
	switch s := src.(type) {
	case nil:
		v = r.t.Value
	case *Traversal:
		var err error
		v, err = Apply(r.ctx, r.t, s)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", r.step.name(), role, err)
		}
	default:
		v = s
	}
	m, ok := toMap(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s must produce a map, got %T", ErrValidation, r.step.name(), role, v)
	}
	return m.Clone(), nil
}

// runMerge is the search, match-or-create flow shared by every element kind:
//
//  1. materialize and validate the merge map
//  2. resolve endpoint references on a copy
//  3. search; the iterator is closed before anything is written
//  4. on match, apply the on-match map to every match and emit them all
//  5. on miss, build the create map, create, and emit the new element
//
// Search and create are separate store calls. Two merges racing on the same
// key may both miss and both create.
func runMerge[E element](ctx context.Context, k elementKind[E], step *mergeStep, e *env, t *Traverser) (out []E, err error) {
	start := time.Now()
	kindName := k.kind().String()
	ctx, span := tracer.Start(ctx, "traversal."+step.name(),
		trace.WithAttributes(
			attribute.String("element.kind", kindName),
			attribute.Bool("merge.start", step.isStart),
		))
	defer span.End()

	outcome := outcomeMatched
	defer func() {
		if err != nil {
			outcome = outcomeFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, "merge failed")
		} else {
			span.SetStatus(codes.Ok, outcome)
		}
		span.SetAttributes(
			attribute.String("merge.outcome", outcome),
			attribute.Int("merge.results", len(out)),
		)
		e.metrics.observeMerge(kindName, outcome, start)
		if e.verbose {
			log.Printf("[merge] %s %s: %d element(s) in %v", step.name(), outcome, len(out), time.Since(start))
		}
	}()

	if e.store == nil {
		return nil, fmt.Errorf("%s: %w", step.name(), ErrNoStore)
	}
	r := &mergeRun{ctx: ctx, env: e, step: step, t: t}

	unresolved, err := r.materialize(roleMerge, step.merge)
	if err != nil {
		return nil, err
	}
	if err := validateMap(step.name(), roleMerge, unresolved, k.allowedTokens()); err != nil {
		return nil, err
	}

	resolved := unresolved.Clone()
	if err := k.resolve(r, resolved); err != nil {
		return nil, err
	}

	matches, err := collectMatches(k, e.store, resolved)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", step.name(), err)
	}

	if len(matches) > 0 {
		if step.onMatch != nil {
			if err := applyOnMatch(r, k, matches); err != nil {
				return nil, err
			}
		}
		return matches, nil
	}

	outcome = outcomeCreated
	createMap := resolved
	if step.onCreate != nil {
		onCreate, err := r.materialize(roleOnCreate, step.onCreate)
		if err != nil {
			return nil, err
		}
		if err := validateMap(step.name(), roleOnCreate, onCreate, k.allowedTokens()); err != nil {
			return nil, err
		}
		// Compared against the unresolved map so endpoint tokens and vertex
		// references in on-create are checked in the form the user wrote.
		if err := validateNoOverrides(step.name(), unresolved, onCreate); err != nil {
			return nil, err
		}
		onCreate.PutAll(resolved)
		if err := k.resolve(r, onCreate); err != nil {
			return nil, err
		}
		createMap = onCreate
	}

	created, err := k.create(r, createMap)
	if err != nil {
		return nil, err
	}
	e.sink.Record(event.ElementAdded{Element: k.kind(), ID: k.id(created), Label: k.label(created)})
	e.metrics.countEvent(kindName, "added")
	return []E{created}, nil
}

// collectMatches drains the search for m. The iterator is closed on return,
// on every path.
func collectMatches[E element](k elementKind[E], store storage.Engine, m *Map) ([]E, error) {
	it, err := k.search(store, m)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var matches []E
	for it.Next() {
		if el := it.Value(); k.matches(el, m) {
			matches = append(matches, el)
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

// applyOnMatch evaluates and validates the on-match map of every match
// before writing any of them, then writes each match once and reports one
// PropertyChanged per key.
func applyOnMatch[E element](r *mergeRun, k elementKind[E], matches []E) error {
	changes := make([]*Map, len(matches))
	for i, el := range matches {
		// A start merge has no real input; on-match sees the matched element.
		if r.step.isStart {
			r.t.Value = el
		}
		m, err := r.materialize(roleOnMatch, r.step.onMatch)
		if err != nil {
			return err
		}
		if err := validateMap(r.step.name(), roleOnMatch, m, nil); err != nil {
			return err
		}
		changes[i] = m
	}

	kindName := k.kind().String()
	for i, el := range matches {
		m := changes[i]
		if m.Len() == 0 {
			continue
		}
		props := k.properties(el)
		type change struct {
			key        string
			old, value any
			existed    bool
		}
		applied := make([]change, 0, m.Len())
		for _, key := range m.Keys() {
			v, _ := m.Get(key)
			old, existed := props[key.Property()]
			props[key.Property()] = v
			applied = append(applied, change{key: key.Property(), old: old, value: v, existed: existed})
		}
		if err := k.update(r.env.store, el); err != nil {
			return fmt.Errorf("%s option(onMatch) update %s: %w", r.step.name(), k.id(el), err)
		}
		for _, c := range applied {
			r.env.sink.Record(event.PropertyChanged{
				Element:  k.kind(),
				ID:       k.id(el),
				Key:      c.key,
				OldValue: c.old,
				NewValue: c.value,
				Existed:  c.existed,
			})
			r.env.metrics.countEvent(kindName, "property_changed")
		}
	}
	return nil
}
