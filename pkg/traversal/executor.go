package traversal

import (
	"context"
	"fmt"
	"io"
)

// program is a compiled step graph ready to be pulled. Each step has an
// outbox: the traversers it emitted that its successor has not pulled yet.
// A branch delivers a traverser by placing it in the target step's outbox,
// as if the target had emitted it.
type program struct {
	env     *env
	steps   []*stepRuntime
	byLabel map[labelKey]*stepRuntime
	head    func(ctx context.Context) (*Traverser, error)
}

// stepRuntime is the execution state of one step.
type stepRuntime struct {
	prog   *program
	pos    int
	step   *Step
	scope  int
	labels []string
	pull   func(ctx context.Context) (*Traverser, error)
	outbox []*Traverser
	primed bool
	moved  bool
}

// newProgram builds the runtime for g. head feeds the first step.
func newProgram(g *StepGraph, e *env, head func(ctx context.Context) (*Traverser, error)) *program {
	p := &program{env: e, byLabel: make(map[labelKey]*stepRuntime), head: head}
	pull := head
	for i, id := range g.IDs() {
		rt := &stepRuntime{
			prog:   p,
			pos:    i,
			step:   g.Step(id),
			scope:  g.Scope(id),
			labels: g.Labels(id),
			pull:   pull,
		}
		for _, label := range rt.labels {
			p.byLabel[labelKey{rt.scope, label}] = rt
		}
		p.steps = append(p.steps, rt)
		pull = rt.next
	}
	return p
}

// next returns the program's next output. io.EOF means exhaustion.
func (p *program) next(ctx context.Context) (*Traverser, error) {
	if len(p.steps) == 0 {
		return p.head(ctx)
	}
	tail := p.steps[len(p.steps)-1]
	for {
		t, err := tail.next(ctx)
		if err == errYielded {
			continue
		}
		return t, err
	}
}

// emptyHead feeds nothing: root traversals start from their own steps.
func emptyHead(context.Context) (*Traverser, error) {
	return nil, io.EOF
}

// seedHead feeds the given traversers once each.
func seedHead(seeds ...*Traverser) func(context.Context) (*Traverser, error) {
	return func(context.Context) (*Traverser, error) {
		if len(seeds) == 0 {
			return nil, io.EOF
		}
		t := seeds[0]
		seeds = seeds[1:]
		return t, nil
	}
}

func (r *stepRuntime) next(ctx context.Context) (*Traverser, error) {
	if !r.primed {
		r.primed = true
		if err := r.prime(ctx); err != nil {
			return nil, err
		}
	}
	for {
		if len(r.outbox) > 0 {
			t := r.outbox[0]
			r.outbox[0] = nil
			r.outbox = r.outbox[1:]
			return t, nil
		}
		in, err := r.pull(ctx)
		if err == errYielded {
			// An upstream branch moved a traverser. If it landed here, emit
			// it; otherwise let the downstream owner pick it up.
			if len(r.outbox) > 0 {
				continue
			}
			return nil, errYielded
		}
		if err != nil {
			return nil, err
		}
		if err := r.process(ctx, in); err != nil {
			return nil, err
		}
		if r.moved {
			r.moved = false
			if len(r.outbox) == 0 {
				return nil, errYielded
			}
		}
	}
}

// prime emits what a step produces without input: the values of a start
// step, or the single placeholder traverser of a start merge.
func (r *stepRuntime) prime(ctx context.Context) error {
	switch r.step.kind {
	case KindStart:
		for _, v := range r.step.values {
			t := NewTraverser(nil)
			t.extend(r.labels, v)
			r.outbox = append(r.outbox, t)
		}
	case KindMerge:
		if r.step.merge.isStart {
			return r.process(ctx, NewTraverser(Placeholder))
		}
	}
	return nil
}

func (r *stepRuntime) emit(t *Traverser) {
	r.outbox = append(r.outbox, t)
}

func (r *stepRuntime) process(ctx context.Context, t *Traverser) error {
	s := r.step
	switch s.kind {
	case KindStart, KindIdentity:
		t.addLabels(r.labels)
		r.emit(t)

	case KindMap:
		v, err := s.mapFn(ctx, t)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		t.extend(r.labels, v)
		r.emit(t)

	case KindFlatMap:
		values, err := s.flatFn(ctx, t)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		for _, v := range values {
			r.emit(t.split(r.labels, v))
		}

	case KindFilter:
		keep, err := s.filter(ctx, t)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		if keep {
			t.addLabels(r.labels)
			r.emit(t)
		}

	case KindBranch:
		targets, err := s.branch(t)
		if err != nil {
			return fmt.Errorf("branch: %w", err)
		}
		return r.dispatch(t, targets)

	case KindUnion:
		for _, sub := range s.union {
			results, err := runSub(ctx, sub, t.Clone())
			if err != nil {
				return err
			}
			for _, res := range results {
				res.addLabels(r.labels)
				r.emit(res)
			}
		}

	case KindMerge:
		elements, err := s.merge.run(ctx, r.prog.env, t)
		if err != nil {
			return err
		}
		for _, el := range elements {
			r.emit(t.split(r.labels, el))
		}

	default:
		return fmt.Errorf("%w: %s", ErrUnknownStepKind, s.kind)
	}
	return nil
}

// dispatch moves t to the steps labeled targets in the scope of r. Every
// target is checked before anything moves. One target is a redirect; several
// get a clone each.
func (r *stepRuntime) dispatch(t *Traverser, targets []string) error {
	if len(targets) == 0 {
		return nil
	}
	resolved := make([]*stepRuntime, len(targets))
	for i, label := range targets {
		target, ok := r.prog.byLabel[labelKey{r.scope, label}]
		if !ok {
			return fmt.Errorf("%w: branch target %q", ErrStepNotFound, label)
		}
		if target.pos < r.pos {
			return fmt.Errorf("%w: %q", ErrBackwardJump, label)
		}
		resolved[i] = target
	}
	for i, target := range resolved {
		x := t
		if len(resolved) > 1 && i < len(resolved)-1 {
			x = t.Clone()
		}
		x.addLabels(target.labels)
		target.emit(x)
	}
	r.moved = true
	return nil
}

// runSub runs sub once for seed and collects its output traversers.
func runSub(ctx context.Context, sub *Traversal, seed *Traverser) ([]*Traverser, error) {
	if err := sub.Compile(ctx); err != nil {
		return nil, err
	}
	p := newProgram(sub.compiled, sub.env, seedHead(seed))
	var out []*Traverser
	for {
		t, err := p.next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
}
