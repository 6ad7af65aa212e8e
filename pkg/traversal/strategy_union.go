package traversal

import "fmt"

// UnionLabel is the entry label of branch i of rewritten union u.
func UnionLabel(u, i int) string {
	return fmt.Sprintf("%sunion.%d.%d", ReservedLabelPrefix, u, i)
}

// UnionEndLabel is the join label of rewritten union u.
func UnionEndLabel(u int) string {
	return fmt.Sprintf("%sunion.end.%d", ReservedLabelPrefix, u)
}

// UnionLinearStrategy rewrites every union step into branch and join steps
// so the traversal runs as a linear, label-addressed program:
//
//	x.union(a, b).y
//	x.branch(~union.0.0, ~union.0.1)@~union.0.0
//	  .a.branch(~union.end.0)@~union.0.1
//	  .b.identity()@~union.end.0
//	  .y
//
// Each traverser reaching the fan-out branch is cloned once per
// sub-traversal. A jump to a label continues after the labeled step, so
// branch i starts right after the step carrying ~union.<u>.<i>. Every clone
// leaves through the join, carrying ~union.end.<u> in its path. Labels the
// union step carried move to the join, which emits what the union emitted.
// Each spliced sub-traversal keeps its labels in a scope of its own, so the
// same sub-traversal may appear twice and may reuse labels of the traversal
// around it.
//
// The strategy does nothing in ModeStandard, where unions run natively.
type UnionLinearStrategy struct{}

func (UnionLinearStrategy) Name() string       { return "UnionLinearStrategy" }
func (UnionLinearStrategy) Category() Category { return CategoryFinalization }

func (s UnionLinearStrategy) Apply(g *StepGraph, mode Mode) error {
	if mode == ModeStandard {
		return nil
	}
	// Rescan after every rewrite: unions nested in a sub-traversal are
	// spliced into g and handled on a later pass.
	for {
		id := firstStepOfKind(g, KindUnion)
		if id == NoStep {
			return nil
		}
		if err := linearizeUnion(g, id); err != nil {
			return err
		}
	}
}

func firstStepOfKind(g *StepGraph, kind StepKind) StepID {
	for _, id := range g.IDs() {
		if g.Step(id).Kind() == kind {
			return id
		}
	}
	return NoStep
}

func linearizeUnion(g *StepGraph, id StepID) error {
	union := g.Step(id)
	subs := union.union
	if len(subs) == 0 {
		return fmt.Errorf("%w: %s", ErrDegenerateUnion, union)
	}

	u := g.nextUnionIndex()
	end := UnionEndLabel(u)
	entries := make([]string, len(subs))
	for i := range subs {
		entries[i] = UnionLabel(u, i)
	}

	// Fan-out, per-branch gotos and join stay in the union's scope; the
	// spliced sub-traversals each get their own.
	scope := g.Scope(id)
	userLabels := g.Labels(id)
	if err := g.Replace(id, NewGoToStep(entries...)); err != nil {
		return err
	}
	g.unbindLabels(id)

	cur := id
	for i, sub := range subs {
		if err := g.bindLabel(cur, entries[i]); err != nil {
			return err
		}
		last, err := g.spliceAfter(cur, sub.graph)
		if err != nil {
			return err
		}
		if i == len(subs)-1 {
			join := g.insertAfter(last, NewIdentityStep(), scope)
			if err := g.bindLabel(join, end); err != nil {
				return err
			}
			for _, label := range userLabels {
				if err := g.bindLabel(join, label); err != nil {
					return err
				}
			}
			break
		}
		cur = g.insertAfter(last, NewGoToStep(end), scope)
	}
	return nil
}
