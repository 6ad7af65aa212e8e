package plan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornictrav/pkg/event"
	"github.com/orneryd/nornictrav/pkg/storage"
	"github.com/orneryd/nornictrav/pkg/traversal"
)

func newStore(t *testing.T) *storage.MemoryEngine {
	t.Helper()
	store := storage.NewMemoryEngine()
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.CreateNode(&storage.Node{ID: "1", Labels: []string{"person"}, Properties: map[string]any{"name": "marko"}}))
	require.NoError(t, store.CreateNode(&storage.Node{ID: "2", Labels: []string{"person"}, Properties: map[string]any{"name": "vadas"}}))
	return store
}

func run(t *testing.T, doc string, opts ...traversal.Option) []any {
	t.Helper()
	p, err := Parse([]byte(doc))
	require.NoError(t, err)
	tr, err := p.Build(opts...)
	require.NoError(t, err)
	out, err := tr.ToList(context.Background())
	require.NoError(t, err)
	return out
}

func TestPlan_MergeVertexAndEdge(t *testing.T) {
	store := newStore(t)
	events := &event.Recorder{}

	out := run(t, `
name: link
steps:
  - mergeE:
      T.label: knows
      Direction.OUT: Merge.outV
      Direction.IN: "2"
    outV: {T.label: person, name: marko}
    onCreate: {weight: 0.5}
`, traversal.WithStore(store), traversal.WithSink(events))

	require.Len(t, out, 1)
	e := out[0].(*storage.Edge)
	assert.Equal(t, storage.NodeID("1"), e.StartNode)
	assert.Equal(t, storage.NodeID("2"), e.EndNode)
	assert.Equal(t, 0.5, e.Properties["weight"])
	assert.Len(t, events.Events(), 1)

	out = run(t, `
steps:
  - mergeV: {T.label: person, name: josh}
    onCreate: {age: 32}
  - values: age
`, traversal.WithStore(store))
	assert.Equal(t, []any{32}, out)
}

func TestPlan_InjectAndUnion(t *testing.T) {
	doc := `
mode: linear
steps:
  - inject: [1, 2]
  - union:
      - []
      - [{constant: x}]
  - as: out
`
	assert.ElementsMatch(t, []any{1, "x", 2, "x"}, run(t, doc))

	p, err := Parse([]byte(doc))
	require.NoError(t, err)
	tr, err := p.Build()
	require.NoError(t, err)
	assert.Equal(t, traversal.ModeLinear, tr.Mode())
}

func TestPlan_MergeFromInjectedMap(t *testing.T) {
	store := newStore(t)

	out := run(t, `
steps:
  - inject:
      - {T.label: person, name: vadas}
  - mergeV: null
    onMatch: {seen: true}
  - values: seen
`, traversal.WithStore(store))
	assert.Equal(t, []any{true}, out)
}

func TestPlan_SubTraversalOption(t *testing.T) {
	store := newStore(t)

	out := run(t, `
steps:
  - mergeE: {T.label: likes, Direction.OUT: Merge.outV, Direction.IN: Merge.inV}
    outV:
      - constant: {name: marko}
    inV: {name: vadas}
`, traversal.WithStore(store))
	require.Len(t, out, 1)
	assert.Equal(t, "likes", out[0].(*storage.Edge).Type)
}

func TestPlan_Errors(t *testing.T) {
	cases := map[string]string{
		"no steps":         `name: empty`,
		"malformed":        `steps: [`,
		"unknown step":     "steps:\n  - fly: away\n",
		"two keywords":     "steps:\n  - inject: 1\n    constant: 2\n",
		"option on inject": "steps:\n  - inject: 1\n    onMatch: {a: 1}\n",
		"bad mode":         "mode: remote\nsteps:\n  - inject: 1\n",
		"union not a list": "steps:\n  - union: {a: 1}\n",
		"bad values":       "steps:\n  - values: 3\n",
		"bad merge source": "steps:\n  - mergeV: marko\n",
		"bad as":           "steps:\n  - inject: 1\n  - as: [1]\n",
		"reserved label":   "steps:\n  - inject: 1\n  - as: \"~x\"\n",
		"bad sub step":     "steps:\n  - union:\n      - [plain]\n",
		"option on mergeV": "steps:\n  - mergeV: {name: x}\n    outV: {name: y}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := Parse([]byte(doc))
			if err == nil {
				_, err = p.Build()
			}
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - inject: [a]\n"), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, p.Steps, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
