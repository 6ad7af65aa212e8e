package traversal

// IdentityRemovalStrategy removes unlabeled identity steps. Labeled ones are
// kept: they are jump targets or make a value visible in paths.
type IdentityRemovalStrategy struct{}

func (IdentityRemovalStrategy) Name() string       { return "IdentityRemovalStrategy" }
func (IdentityRemovalStrategy) Category() Category { return CategoryOptimization }

func (IdentityRemovalStrategy) Apply(g *StepGraph, _ Mode) error {
	for _, id := range g.IDs() {
		if g.Step(id).Kind() != KindIdentity || len(g.Labels(id)) > 0 {
			continue
		}
		if err := g.Remove(id); err != nil {
			return err
		}
	}
	return nil
}
