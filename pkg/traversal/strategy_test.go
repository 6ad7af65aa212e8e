package traversal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStrategy struct {
	name     string
	category Category
	log      *[]string
	err      error
}

func (s recordingStrategy) Name() string       { return s.name }
func (s recordingStrategy) Category() Category { return s.category }

func (s recordingStrategy) Apply(*StepGraph, Mode) error {
	*s.log = append(*s.log, s.name)
	return s.err
}

// ============================================================================
// Registry
// ============================================================================

func TestStrategies_DefaultOrder(t *testing.T) {
	assert.Equal(t, []string{
		"IdentityRemovalStrategy",
		"UnionLinearStrategy",
		"LinearVerificationStrategy",
	}, DefaultStrategies().Names())
}

func TestStrategies_AddReplacesByName(t *testing.T) {
	var log []string
	s := NewStrategies(
		recordingStrategy{name: "a", category: CategoryOptimization, log: &log},
		recordingStrategy{name: "b", category: CategoryOptimization, log: &log},
	)
	s.Add(recordingStrategy{name: "a", category: CategoryOptimization, log: &log, err: errors.New("replaced")})

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"a", "b"}, s.Names())
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.EqualError(t, got.(recordingStrategy).err, "replaced")
}

func TestStrategies_RemoveAndClone(t *testing.T) {
	s := DefaultStrategies()
	c := s.Clone()

	s.Remove("UnionLinearStrategy", "NoSuchStrategy")

	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("UnionLinearStrategy")
	assert.False(t, ok)
	assert.Equal(t, 3, c.Len(), "clone is unaffected")
}

func TestStrategies_ApplyOrder(t *testing.T) {
	var log []string
	s := NewStrategies(
		recordingStrategy{name: "verify", category: CategoryVerification, log: &log},
		recordingStrategy{name: "final", category: CategoryFinalization, log: &log},
		recordingStrategy{name: "deco1", category: CategoryDecoration, log: &log},
		recordingStrategy{name: "opt", category: CategoryOptimization, log: &log},
		recordingStrategy{name: "deco2", category: CategoryDecoration, log: &log},
	)

	require.NoError(t, s.Apply(context.Background(), NewStepGraph(), ModeStandard))
	assert.Equal(t, []string{"deco1", "deco2", "opt", "final", "verify"}, log)
}

func TestStrategies_ApplyStopsAtFirstError(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	s := NewStrategies(
		recordingStrategy{name: "first", category: CategoryDecoration, log: &log, err: boom},
		recordingStrategy{name: "second", category: CategoryOptimization, log: &log},
	)

	err := s.Apply(context.Background(), NewStepGraph(), ModeStandard)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "strategy first")
	assert.Equal(t, []string{"first"}, log)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Linear")
	require.NoError(t, err)
	assert.Equal(t, ModeLinear, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeStandard, m)

	_, err = ParseMode("remote")
	assert.Error(t, err)
}

// ============================================================================
// UnionLinearStrategy
// ============================================================================

func constant(v any) *Traversal { return Anon().Constant(v) }

func compileLinear(t *testing.T, tr *Traversal) *StepGraph {
	t.Helper()
	require.NoError(t, tr.Compile(context.Background()))
	return tr.Compiled()
}

func TestUnionLinear_Rewrite(t *testing.T) {
	tr := New(WithMode(ModeLinear)).Inject(1).Union(constant("a"), constant("b"))
	g := compileLinear(t, tr)

	assert.Equal(t,
		"[StartStep(1), BranchStep([~union.0.0,~union.0.1])@[~union.0.0], MapStep(constant(a)), "+
			"BranchStep([~union.end.0])@[~union.0.1], MapStep(constant(b)), IdentityStep@[~union.end.0]]",
		g.String())
}

func TestUnionLinear_LabelsAndJoin(t *testing.T) {
	subs := []*Traversal{constant("a"), constant("b"), Anon(), constant("d")}
	g := compileLinear(t, New(WithMode(ModeLinear)).Inject(1).Union(subs...))

	for _, id := range g.IDs() {
		assert.NotEqual(t, KindUnion, g.Step(id).Kind())
	}

	join, ok := g.StepByLabel(UnionEndLabel(0))
	require.True(t, ok)
	assert.Equal(t, KindIdentity, g.Step(join).Kind())
	assert.Equal(t, g.Tail(), join)

	pos := make(map[StepID]int)
	for i, id := range g.IDs() {
		pos[id] = i
	}
	for i := range subs {
		entry, ok := g.StepByLabel(UnionLabel(0, i))
		require.True(t, ok, "entry label for branch %d", i)
		assert.Less(t, pos[entry], pos[join], "branch %d enters before the join", i)
		assert.Equal(t, KindBranch, g.Step(entry).Kind())
	}
}

func TestUnionLinear_UserLabelsMoveToJoin(t *testing.T) {
	g := compileLinear(t, New(WithMode(ModeLinear)).Inject(1).Union(constant("a")).As("u"))

	id, ok := g.StepByLabel("u")
	require.True(t, ok)
	assert.Equal(t, []string{UnionEndLabel(0), "u"}, g.Labels(id))
}

func TestUnionLinear_NestedAndSequentialLabelsAreUnique(t *testing.T) {
	tr := New(WithMode(ModeLinear)).
		Inject(1).
		Union(Anon().Union(constant("x"), constant("y")), constant("z")).
		Union(constant(1), constant(2))
	g := compileLinear(t, tr)

	seen := make(map[string]bool)
	for _, id := range g.IDs() {
		for _, label := range g.Labels(id) {
			assert.False(t, seen[label], "label %q bound twice", label)
			seen[label] = true
		}
	}
	for u := 0; u < 3; u++ {
		assert.True(t, seen[UnionEndLabel(u)], "join of union %d", u)
		assert.True(t, seen[UnionLabel(u, 0)])
		assert.True(t, seen[UnionLabel(u, 1)])
	}
}

func TestUnionLinear_Degenerate(t *testing.T) {
	err := New(WithMode(ModeLinear)).Inject(1).Union().Compile(context.Background())
	assert.ErrorIs(t, err, ErrDegenerateUnion)
}

func TestUnionLinear_StandardModeIsNoOp(t *testing.T) {
	g := NewStepGraph()
	g.Append(NewUnionStep(constant("a")))
	before := g.String()

	require.NoError(t, UnionLinearStrategy{}.Apply(g, ModeStandard))
	assert.Equal(t, before, g.String())
}

func TestUnionLinear_DoesNotMutateSource(t *testing.T) {
	sub := constant("a")
	tr := New(WithMode(ModeLinear)).Inject(1).Union(sub, constant("b"))
	before := tr.Graph().String()

	compileLinear(t, tr)

	assert.Equal(t, before, tr.Graph().String())
	assert.Equal(t, "[MapStep(constant(a))]", sub.Graph().String())
}

// ============================================================================
// IdentityRemovalStrategy and LinearVerificationStrategy
// ============================================================================

func TestIdentityRemoval_KeepsLabeled(t *testing.T) {
	g := NewStepGraph()
	g.Append(NewStartStep(1))
	g.Append(NewIdentityStep())
	keep := g.Append(NewIdentityStep())
	g.Append(NewIdentityStep())
	require.NoError(t, g.AddLabel(keep, "k"))

	require.NoError(t, IdentityRemovalStrategy{}.Apply(g, ModeStandard))
	assert.Equal(t, "[StartStep(1), IdentityStep@[k]]", g.String())
}

func TestLinearVerification(t *testing.T) {
	t.Run("union left in linear mode", func(t *testing.T) {
		strategies := DefaultStrategies().Remove("UnionLinearStrategy")
		err := New(WithMode(ModeLinear), WithStrategies(strategies)).
			Inject(1).Union(constant("a")).
			Compile(context.Background())
		assert.ErrorIs(t, err, ErrNotLinear)
	})

	t.Run("union allowed in standard mode", func(t *testing.T) {
		g := NewStepGraph()
		g.Append(NewUnionStep(constant("a")))
		assert.NoError(t, LinearVerificationStrategy{}.Apply(g, ModeStandard))
	})

	t.Run("backward goto", func(t *testing.T) {
		err := New().Inject(1).Identity().As("a").GoTo("a").Compile(context.Background())
		assert.ErrorIs(t, err, ErrBackwardJump)
	})

	t.Run("unknown goto target", func(t *testing.T) {
		err := New().Inject(1).GoTo("nowhere").Compile(context.Background())
		assert.ErrorIs(t, err, ErrStepNotFound)
	})

	t.Run("all problems reported", func(t *testing.T) {
		g := NewStepGraph()
		a := g.Append(NewIdentityStep())
		require.NoError(t, g.AddLabel(a, "a"))
		g.Append(NewGoToStep("a", "missing"))
		g.Append(NewUnionStep(constant(1)))

		err := LinearVerificationStrategy{}.Apply(g, ModeLinear)
		assert.ErrorIs(t, err, ErrBackwardJump)
		assert.ErrorIs(t, err, ErrStepNotFound)
		assert.ErrorIs(t, err, ErrNotLinear)
	})
}
