// Package traversal implements the execution core of the graph query engine:
// a step graph compiled by strategies and pulled one traverser at a time,
// with merge steps that search for graph elements or create them.
//
// A traversal is built fluently, compiled once, and iterated:
//
//	g := traversal.New(traversal.WithStore(engine))
//	out, err := g.MergeE(traversal.M(traversal.TokenLabel, "knows",
//		traversal.TokenOut, "1", traversal.TokenIn, "2")).ToList(ctx)
//
// Anonymous traversals (Anon) are sub-traversals for unions and merge
// options. They inherit the store, sink and mode of the traversal they are
// compiled into.
package traversal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orneryd/nornictrav/pkg/event"
	"github.com/orneryd/nornictrav/pkg/storage"
)

// Traversal is a step graph plus what it runs against. Builder methods
// record the first error and return the traversal so calls chain; the
// error surfaces from Compile and every terminal method.
type Traversal struct {
	graph      *StepGraph
	env        *env
	mode       Mode
	strategies *Strategies
	anonymous  bool
	err        error

	compiled *StepGraph
	applied  []string
}

// Option configures a root traversal.
type Option func(*Traversal)

// WithStore sets the graph store merge steps read and write.
func WithStore(store storage.Engine) Option {
	return func(t *Traversal) { t.env.store = store }
}

// WithSink sets where merge steps report mutations. nil means event.Nop.
func WithSink(sink event.Sink) Option {
	return func(t *Traversal) {
		if sink == nil {
			sink = event.Nop{}
		}
		t.env.sink = sink
	}
}

// WithMode sets the execution mode the traversal is compiled for.
func WithMode(mode Mode) Option {
	return func(t *Traversal) { t.mode = mode }
}

// WithStrategies replaces the default strategy set.
func WithStrategies(s *Strategies) Option {
	return func(t *Traversal) { t.strategies = s }
}

// WithMetrics records merge and strategy metrics. nil disables them.
func WithMetrics(m *Metrics) Option {
	return func(t *Traversal) { t.env.metrics = m }
}

// WithVerbose logs strategy rewrites and merge outcomes.
func WithVerbose(verbose bool) Option {
	return func(t *Traversal) { t.env.verbose = verbose }
}

// New returns an empty root traversal.
func New(opts ...Option) *Traversal {
	t := &Traversal{
		graph:      NewStepGraph(),
		env:        defaultEnv(),
		strategies: DefaultStrategies(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Anon returns an anonymous traversal for use as a sub-traversal. With no
// steps it is the identity: it emits its input unchanged.
func Anon() *Traversal {
	t := New()
	t.anonymous = true
	return t
}

// Graph returns the step graph as built, before strategies.
func (t *Traversal) Graph() *StepGraph { return t.graph }

// Compiled returns the step graph after strategies, or nil before Compile.
func (t *Traversal) Compiled() *StepGraph { return t.compiled }

// Mode returns the execution mode.
func (t *Traversal) Mode() Mode { return t.mode }

// Err returns the first builder error.
func (t *Traversal) Err() error { return t.err }

func (t *Traversal) fail(err error) *Traversal {
	if t.err == nil {
		t.err = err
	}
	return t
}

func (t *Traversal) add(step *Step) *Traversal {
	if t.compiled != nil {
		return t.fail(errors.New("traversal: cannot add steps after Compile"))
	}
	t.graph.Append(step)
	return t
}

// ============================================================================
// Steps
// ============================================================================

// Inject emits values before anything flowing in from upstream.
func (t *Traversal) Inject(values ...any) *Traversal {
	return t.add(NewStartStep(values...))
}

// Constant replaces every value with v.
func (t *Traversal) Constant(v any) *Traversal {
	return t.add(NewMapStep(fmt.Sprintf("constant(%v)", v), func(context.Context, *Traverser) (any, error) {
		return v, nil
	}))
}

// Map replaces every value with fn's result.
func (t *Traversal) Map(name string, fn MapFunc) *Traversal {
	return t.add(NewMapStep(name, fn))
}

// FlatMap replaces every traverser with one per value fn returns.
func (t *Traversal) FlatMap(name string, fn FlatMapFunc) *Traversal {
	return t.add(NewFlatMapStep(name, fn))
}

// Filter keeps traversers for which fn returns true.
func (t *Traversal) Filter(name string, fn FilterFunc) *Traversal {
	return t.add(NewFilterStep(name, fn))
}

// Identity adds a no-op step, typically to carry a label.
func (t *Traversal) Identity() *Traversal {
	return t.add(NewIdentityStep())
}

// Values replaces each element (or property map) with its property key.
// Traversers without the property are dropped.
func (t *Traversal) Values(key string) *Traversal {
	return t.add(NewFlatMapStep("values("+key+")", func(_ context.Context, tr *Traverser) ([]any, error) {
		if v, ok := propertyOf(tr.Value, key); ok {
			return []any{v}, nil
		}
		return nil, nil
	}))
}

// As labels the last step.
func (t *Traversal) As(labels ...string) *Traversal {
	tail := t.graph.Tail()
	if tail == NoStep {
		return t.fail(fmt.Errorf("%w: as(%v) needs a preceding step", ErrStepNotFound, labels))
	}
	for _, label := range labels {
		if err := t.graph.AddLabel(tail, label); err != nil {
			return t.fail(err)
		}
	}
	return t
}

// Branch sends each traverser to the labels fn returns.
func (t *Traversal) Branch(fn BranchFunc) *Traversal {
	return t.add(NewBranchStep(fn))
}

// GoTo sends every traverser to labels.
func (t *Traversal) GoTo(labels ...string) *Traversal {
	return t.add(NewGoToStep(labels...))
}

// Union runs every sub-traversal for each traverser and emits all results.
func (t *Traversal) Union(subs ...*Traversal) *Traversal {
	for _, sub := range subs {
		if sub == nil {
			return t.fail(fmt.Errorf("%w: nil union branch", ErrValidation))
		}
		if sub.err != nil {
			return t.fail(sub.err)
		}
	}
	return t.add(NewUnionStep(subs...))
}

// MergeE adds an edge merge. merge is a map, a traversal producing one, or
// nil to use the incoming value.
func (t *Traversal) MergeE(merge any) *Traversal {
	return t.addMerge(false, merge)
}

// MergeV adds a vertex merge. merge is a map, a traversal producing one, or
// nil to use the incoming value.
func (t *Traversal) MergeV(merge any) *Traversal {
	return t.addMerge(true, merge)
}

func (t *Traversal) addMerge(vertex bool, merge any) *Traversal {
	m := &mergeStep{vertex: vertex, merge: merge}
	if err := checkMapSource(merge); err != nil {
		return t.fail(fmt.Errorf("%s: %w", m.name(), err))
	}
	m.isStart = !t.anonymous && t.graph.Len() == 0
	s := newStep(KindMerge, m.name())
	s.merge = m
	return t.add(s)
}

// Option configures the preceding merge step. value is a map or a
// traversal; for MergeOutV and MergeInV it may also be a vertex.
func (t *Traversal) Option(opt Merge, value any) *Traversal {
	tail := t.graph.Tail()
	if tail == NoStep || t.graph.Step(tail).Kind() != KindMerge {
		return t.fail(fmt.Errorf("%w: option(%s) must follow mergeE or mergeV", ErrValidation, opt))
	}
	if err := t.graph.Step(tail).merge.setOption(opt, value); err != nil {
		return t.fail(err)
	}
	return t
}

// ============================================================================
// Compilation and execution
// ============================================================================

// Compile applies the strategies to a copy of the step graph, then compiles
// every child traversal against this traversal's store, sink and mode.
// Compiling twice is a no-op.
func (t *Traversal) Compile(ctx context.Context) (err error) {
	if t.err != nil {
		return t.err
	}
	if t.compiled != nil {
		return nil
	}

	ctx, span := tracer.Start(ctx, "traversal.Compile",
		trace.WithAttributes(
			attribute.String("traversal.mode", t.mode.String()),
			attribute.Int("traversal.steps", t.graph.Len()),
			attribute.Bool("traversal.anonymous", t.anonymous),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "compile failed")
		}
		span.End()
	}()

	g := t.graph.Clone()
	applied, err := t.strategies.apply(ctx, g, t.mode, t.env.metrics, t.env.verbose)
	if err != nil {
		return err
	}

	for _, id := range g.IDs() {
		for _, child := range g.Step(id).children() {
			child.inherit(t)
			if err := child.Compile(ctx); err != nil {
				return err
			}
		}
	}

	t.compiled = g
	t.applied = applied
	return nil
}

// inherit binds an anonymous child to its parent's environment.
func (t *Traversal) inherit(parent *Traversal) {
	if !t.anonymous {
		return
	}
	t.env = parent.env
	t.mode = parent.mode
	t.strategies = parent.strategies
}

// Iterator pulls traversers out of a compiled traversal.
type Iterator struct {
	ctx  context.Context
	prog *program
	err  error
}

// Next returns the next traverser, or io.EOF once the traversal is
// exhausted. After any error Next keeps returning it.
func (it *Iterator) Next() (*Traverser, error) {
	if it.err != nil {
		return nil, it.err
	}
	t, err := it.prog.next(it.ctx)
	if err != nil {
		it.err = err
		return nil, err
	}
	return t, nil
}

// Iterate compiles the traversal and returns an iterator over its output.
func (t *Traversal) Iterate(ctx context.Context) (*Iterator, error) {
	if err := t.Compile(ctx); err != nil {
		return nil, err
	}
	return &Iterator{ctx: ctx, prog: newProgram(t.compiled, t.env, emptyHead)}, nil
}

// Traversers runs the traversal to exhaustion and returns every traverser.
func (t *Traversal) Traversers(ctx context.Context) ([]*Traverser, error) {
	it, err := t.Iterate(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Traverser
	for {
		tr, err := it.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
}

// ToList runs the traversal to exhaustion and returns every value.
func (t *Traversal) ToList(ctx context.Context) ([]any, error) {
	trs, err := t.Traversers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(trs))
	for i, tr := range trs {
		out[i] = tr.Value
	}
	return out, nil
}

// Explanation shows a traversal before and after compilation.
type Explanation struct {
	Mode       Mode
	Strategies []string
	Applied    []string
	Original   string
	Compiled   string
}

func (e *Explanation) String() string {
	return fmt.Sprintf("mode:       %s\nstrategies: %v\napplied:    %v\noriginal:   %s\ncompiled:   %s\n",
		e.Mode, e.Strategies, e.Applied, e.Original, e.Compiled)
}

// Explain compiles the traversal and describes what the strategies did.
func (t *Traversal) Explain(ctx context.Context) (*Explanation, error) {
	if err := t.Compile(ctx); err != nil {
		return nil, err
	}
	return &Explanation{
		Mode:       t.mode,
		Strategies: t.strategies.Names(),
		Applied:    append([]string(nil), t.applied...),
		Original:   t.graph.String(),
		Compiled:   t.compiled.String(),
	}, nil
}

// Apply runs sub for a copy of t and returns its first value, or ErrNoValue.
func Apply(ctx context.Context, t *Traverser, sub *Traversal) (any, error) {
	results, err := runSub(ctx, sub, t.Clone())
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoValue
	}
	return results[0].Value, nil
}

// ApplyAll runs sub for a copy of t and returns every value.
func ApplyAll(ctx context.Context, t *Traverser, sub *Traversal) ([]any, error) {
	results, err := runSub(ctx, sub, t.Clone())
	if err != nil {
		return nil, err
	}
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = r.Value
	}
	return out, nil
}

// propertyOf reads key from an element or a property map.
func propertyOf(v any, key string) (any, bool) {
	switch x := v.(type) {
	case *storage.Node:
		val, ok := x.Properties[key]
		return val, ok
	case *storage.Edge:
		val, ok := x.Properties[key]
		return val, ok
	case map[string]any:
		val, ok := x[key]
		return val, ok
	case *Map:
		return x.Get(PropKey(key))
	}
	return nil, false
}
