package traversal

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// LinearVerificationStrategy rejects programs the executor cannot run as
// compiled. Fixed branch targets must name a later (or the same) step in
// every mode; in ModeLinear no union step may remain. All problems are
// reported together.
type LinearVerificationStrategy struct{}

func (LinearVerificationStrategy) Name() string       { return "LinearVerificationStrategy" }
func (LinearVerificationStrategy) Category() Category { return CategoryVerification }

func (LinearVerificationStrategy) Apply(g *StepGraph, mode Mode) error {
	var result *multierror.Error

	pos := make(map[StepID]int, g.Len())
	for i, id := range g.IDs() {
		pos[id] = i
	}

	for _, id := range g.IDs() {
		step := g.Step(id)
		switch step.Kind() {
		case KindUnion:
			if mode == ModeLinear {
				result = multierror.Append(result,
					fmt.Errorf("%w: %s remains in a %s traversal", ErrNotLinear, step, mode))
			}
		case KindBranch:
			for _, label := range step.Targets() {
				target, ok := g.Target(id, label)
				if !ok {
					result = multierror.Append(result,
						fmt.Errorf("%w: branch target %q", ErrStepNotFound, label))
					continue
				}
				if pos[target] < pos[id] {
					result = multierror.Append(result,
						fmt.Errorf("%w: %q", ErrBackwardJump, label))
				}
			}
		}
	}
	return result.ErrorOrNil()
}
