package traversal

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func times(n int) MapFunc {
	return func(_ context.Context, t *Traverser) (any, error) {
		return t.Value.(int) * n, nil
	}
}

func toList(t *testing.T, tr *Traversal) []any {
	t.Helper()
	out, err := tr.ToList(context.Background())
	require.NoError(t, err)
	return out
}

// ============================================================================
// Basic steps
// ============================================================================

func TestTraversal_Inject(t *testing.T) {
	assert.Equal(t, []any{1, 2, 3}, toList(t, New().Inject(1, 2, 3)))
	assert.Empty(t, toList(t, New()))
}

func TestTraversal_MapFilterFlatMap(t *testing.T) {
	tr := New().
		Inject(1, 2, 3, 4).
		Filter("even", func(_ context.Context, t *Traverser) (bool, error) {
			return t.Value.(int)%2 == 0, nil
		}).
		Map("x10", times(10)).
		FlatMap("twice", func(_ context.Context, t *Traverser) ([]any, error) {
			return []any{t.Value, t.Value}, nil
		})

	assert.Equal(t, []any{20, 20, 40, 40}, toList(t, tr))
}

func TestTraversal_InjectMidStream(t *testing.T) {
	assert.Equal(t, []any{"b", "a"}, toList(t, New().Inject("a").Inject("b")))
}

func TestTraversal_Values(t *testing.T) {
	tr := New().
		Inject(map[string]any{"name": "marko"}, map[string]any{"age": 29}, M("name", "vadas")).
		Values("name")
	assert.Equal(t, []any{"marko", "vadas"}, toList(t, tr))
}

func TestTraversal_Path(t *testing.T) {
	trs, err := New().Inject(1).As("start").Map("x2", times(2)).As("doubled").
		Traversers(context.Background())
	require.NoError(t, err)
	require.Len(t, trs, 1)

	p := trs[0].Path()
	assert.Equal(t, "path[1, 2]", p.String())
	assert.Equal(t, []any{1, 2}, p.Objects())
	assert.Equal(t, [][]string{{"start"}, {"doubled"}}, p.Labels())
	v, ok := p.Get("start")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestTraverser_CloneIsIndependent(t *testing.T) {
	a := NewTraverser(1)
	a.extend([]string{"x"}, 1)
	b := a.Clone()

	b.addLabels([]string{"y"})
	b.extend(nil, 2)

	assert.Equal(t, [][]string{{"x"}}, a.Path().Labels())
	assert.Equal(t, [][]string{{"x", "y"}, nil}, b.Path().Labels())
	assert.Equal(t, 1, a.Value)
}

func TestIterator_StickyError(t *testing.T) {
	boom := errors.New("boom")
	it, err := New().Inject(1, 2).Map("fail", func(context.Context, *Traverser) (any, error) {
		return nil, boom
	}).Iterate(context.Background())
	require.NoError(t, err)

	_, err = it.Next()
	assert.ErrorIs(t, err, boom)
	_, err = it.Next()
	assert.ErrorIs(t, err, boom)
}

func TestIterator_EOF(t *testing.T) {
	it, err := New().Inject(1).Iterate(context.Background())
	require.NoError(t, err)

	tr, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Value)
	_, err = it.Next()
	assert.Equal(t, io.EOF, err)
}

// ============================================================================
// Builder errors
// ============================================================================

func TestTraversal_BuilderErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("as without a step", func(t *testing.T) {
		_, err := New().As("a").ToList(ctx)
		assert.ErrorIs(t, err, ErrStepNotFound)
	})

	t.Run("reserved label", func(t *testing.T) {
		_, err := New().Inject(1).As("~union.0.0").ToList(ctx)
		assert.ErrorIs(t, err, ErrReservedLabel)
	})

	t.Run("duplicate label", func(t *testing.T) {
		_, err := New().Inject(1).As("a").Identity().As("a").ToList(ctx)
		assert.ErrorIs(t, err, ErrDuplicateLabel)
	})

	t.Run("first error wins", func(t *testing.T) {
		tr := New().As("a").Inject(1).As("~b")
		assert.ErrorIs(t, tr.Err(), ErrStepNotFound)
	})

	t.Run("nil union branch", func(t *testing.T) {
		_, err := New().Inject(1).Union(constant(1), nil).ToList(ctx)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("union branch error propagates", func(t *testing.T) {
		_, err := New().Inject(1).Union(Anon().As("x")).ToList(ctx)
		assert.ErrorIs(t, err, ErrStepNotFound)
	})

	t.Run("steps after compile", func(t *testing.T) {
		tr := New().Inject(1)
		require.NoError(t, tr.Compile(ctx))
		tr.Identity()
		assert.Error(t, tr.Compile(ctx))
	})
}

// ============================================================================
// Branching
// ============================================================================

func TestTraversal_BranchRedirect(t *testing.T) {
	tr := New().
		Inject(1, 2, 3).
		Branch(func(t *Traverser) ([]string, error) {
			if t.Value.(int) == 2 {
				return []string{"skip"}, nil
			}
			return []string{"keep"}, nil
		}).
		Identity().As("keep").
		Map("x10", times(10)).
		Identity().As("skip")

	assert.ElementsMatch(t, []any{10, 2, 30}, toList(t, tr))
}

func TestTraversal_BranchFanOut(t *testing.T) {
	tr := New().
		Inject(1).
		Branch(GoToLabels("x", "y")).
		Identity().As("x").
		Constant("c").
		Identity().As("y")

	assert.ElementsMatch(t, []any{"c", 1}, toList(t, tr))
}

func TestTraversal_BranchDrop(t *testing.T) {
	tr := New().
		Inject(1, 2).
		Branch(func(t *Traverser) ([]string, error) {
			if t.Value.(int) == 1 {
				return nil, nil
			}
			return []string{"end"}, nil
		}).
		Identity().As("end")

	assert.Equal(t, []any{2}, toList(t, tr))
}

func TestTraversal_BranchErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown label", func(t *testing.T) {
		_, err := New().Inject(1).Branch(GoToLabels("nowhere")).ToList(ctx)
		assert.ErrorIs(t, err, ErrStepNotFound)
	})

	t.Run("backward", func(t *testing.T) {
		_, err := New().Inject(1).Identity().As("top").Branch(GoToLabels("top")).ToList(ctx)
		assert.ErrorIs(t, err, ErrBackwardJump)
	})

	t.Run("func error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := New().Inject(1).Branch(func(*Traverser) ([]string, error) {
			return nil, boom
		}).ToList(ctx)
		assert.ErrorIs(t, err, boom)
	})
}

// ============================================================================
// Union execution
// ============================================================================

func TestUnion_EmitsOncePerBranch(t *testing.T) {
	for _, mode := range []Mode{ModeStandard, ModeLinear} {
		t.Run(mode.String(), func(t *testing.T) {
			tr := New(WithMode(mode)).
				Inject(1, 2).
				Union(Anon().Map("x10", times(10)), Anon(), constant("k"))

			assert.ElementsMatch(t, []any{10, 1, "k", 20, 2, "k"}, toList(t, tr))
		})
	}
}

func TestUnion_LinearMatchesStandard(t *testing.T) {
	build := func(mode Mode) *Traversal {
		return New(WithMode(mode)).
			Inject(1, 2, 3).
			Union(
				Anon().Union(Anon().Map("x2", times(2)), Anon().Map("x3", times(3))),
				Anon().Filter("odd", func(_ context.Context, t *Traverser) (bool, error) {
					return t.Value.(int)%2 == 1, nil
				}),
			).
			Map("+0", times(1)).
			Union(Anon(), constant(0))
	}

	standard := toList(t, build(ModeStandard))
	linear := toList(t, build(ModeLinear))
	assert.Len(t, standard, 16)
	assert.ElementsMatch(t, standard, linear)
}

func TestUnion_LinearPathsCarryJoinLabel(t *testing.T) {
	trs, err := New(WithMode(ModeLinear)).
		Inject(1).
		Union(constant("a"), constant("b")).As("u").
		Traversers(context.Background())
	require.NoError(t, err)
	require.Len(t, trs, 2)

	for _, tr := range trs {
		p := tr.Path()
		assert.True(t, p.HasLabel(UnionEndLabel(0)), "path %v", p.Labels())
		v, ok := p.Get("u")
		require.True(t, ok)
		assert.Equal(t, tr.Value, v)
	}
	assert.True(t, trs[0].Path().HasLabel(UnionLabel(0, 0)) != trs[1].Path().HasLabel(UnionLabel(0, 0)),
		"exactly one clone entered branch 0")
}

func TestUnion_StandardKeepsUserLabels(t *testing.T) {
	trs, err := New().Inject(1).Union(constant("a"), constant("b")).As("u").
		Traversers(context.Background())
	require.NoError(t, err)
	require.Len(t, trs, 2)

	for _, tr := range trs {
		v, ok := tr.Path().Get("u")
		require.True(t, ok)
		assert.Equal(t, tr.Value, v)
	}
}

func TestUnion_LabeledBranchesRunInBothModes(t *testing.T) {
	for _, mode := range []Mode{ModeStandard, ModeLinear} {
		t.Run(mode.String(), func(t *testing.T) {
			dbl := Anon().Map("x2", times(2)).As("dbl")
			trs, err := New(WithMode(mode)).Inject(1).Union(dbl, dbl).
				Traversers(context.Background())
			require.NoError(t, err)
			require.Len(t, trs, 2)
			for _, tr := range trs {
				assert.Equal(t, 2, tr.Value)
				v, ok := tr.Path().Get("dbl")
				require.True(t, ok)
				assert.Equal(t, 2, v)
			}

			// A branch label may repeat a label of the outer traversal.
			out := toList(t, New(WithMode(mode)).
				Inject(1).As("x").
				Union(Anon().Map("x2", times(2)).As("x"), Anon()))
			assert.ElementsMatch(t, []any{2, 1}, out)

			// Jumps inside a reused branch stay inside that copy.
			skip := Anon().GoTo("skip").Map("x10", times(10)).Identity().As("skip")
			out = toList(t, New(WithMode(mode)).Inject(1, 2).Union(skip, skip))
			assert.ElementsMatch(t, []any{1, 1, 2, 2}, out)
		})
	}
}

func TestUnion_NoBranchesStandard(t *testing.T) {
	assert.Empty(t, toList(t, New().Inject(1).Union()))
}

// ============================================================================
// Compile, Explain and Apply
// ============================================================================

func TestTraversal_CompileIsRepeatable(t *testing.T) {
	tr := New(WithMode(ModeLinear)).Inject(1).Union(constant("a"), constant("b"))
	first := toList(t, tr)
	second := toList(t, tr)
	assert.Equal(t, first, second)
}

func TestTraversal_Explain(t *testing.T) {
	tr := New(WithMode(ModeLinear)).Inject(1).Identity().Union(constant("a"), constant("b"))

	ex, err := tr.Explain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ModeLinear, ex.Mode)
	assert.Equal(t, DefaultStrategies().Names(), ex.Strategies)
	assert.Equal(t, []string{"IdentityRemovalStrategy", "UnionLinearStrategy"}, ex.Applied)
	assert.Equal(t, "[StartStep(1), IdentityStep, UnionStep([MapStep(constant(a))],[MapStep(constant(b))])]", ex.Original)
	assert.Contains(t, ex.Compiled, "IdentityStep@[~union.end.0]")
	assert.Contains(t, ex.String(), "applied:    [IdentityRemovalStrategy UnionLinearStrategy]")
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	v, err := Apply(ctx, NewTraverser(4), Anon().Map("x2", times(2)))
	require.NoError(t, err)
	assert.Equal(t, 8, v)

	v, err = Apply(ctx, NewTraverser(4), Anon())
	require.NoError(t, err)
	assert.Equal(t, 4, v, "empty traversal is the identity")

	_, err = Apply(ctx, NewTraverser(4), Anon().Filter("none", func(context.Context, *Traverser) (bool, error) {
		return false, nil
	}))
	assert.ErrorIs(t, err, ErrNoValue)

	all, err := ApplyAll(ctx, NewTraverser(4), Anon().FlatMap("spread", func(_ context.Context, t *Traverser) ([]any, error) {
		n := t.Value.(int)
		return []any{n, n + 1, n + 2}, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, []any{4, 5, 6}, all)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := NewTraverser(3)
	_, err := Apply(context.Background(), in, Anon().Map("x2", times(2)))
	require.NoError(t, err)
	assert.Equal(t, 3, in.Value)
	assert.Equal(t, 0, in.Path().Len())
}
