package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornictrav/pkg/config"
)

const linkPlan = `
name: link
steps:
  - mergeV: {T.id: "1", T.label: person, name: marko}
  - mergeV: {T.id: "2", T.label: person, name: vadas}
  - mergeE: {T.label: knows, Direction.OUT: "1", Direction.IN: Merge.inV}
    inV: {name: vadas}
`

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunPlan_Memory(t *testing.T) {
	var out bytes.Buffer
	cfg := config.LoadDefaults()

	require.NoError(t, runPlan(context.Background(), cfg, writePlan(t, linkPlan), &out, false, false))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "e["), lines[0])
	assert.True(t, strings.HasSuffix(lines[0], "][1-knows->2]"), lines[0])
}

func TestRunPlan_BadgerPersists(t *testing.T) {
	cfg := config.LoadDefaults()
	cfg.Storage.Engine = config.EngineBadger
	cfg.Storage.DataDir = t.TempDir()
	path := writePlan(t, linkPlan)

	var first, second bytes.Buffer
	require.NoError(t, runPlan(context.Background(), cfg, path, &first, false, false))
	require.NoError(t, runPlan(context.Background(), cfg, path, &second, false, false))

	// The second run matches the edge the first run created.
	assert.Equal(t, first.String(), second.String())
}

func TestRunPlan_PathsAndMetrics(t *testing.T) {
	cfg := config.LoadDefaults()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = "cli"

	var out bytes.Buffer
	path := writePlan(t, `
steps:
  - inject: [1]
  - as: start
  - mergeV: {name: josh}
`)
	require.NoError(t, runPlan(context.Background(), cfg, path, &out, false, true))

	text := out.String()
	assert.Contains(t, text, "path[1, v[")
	assert.Contains(t, text, `cli_merge_total{kind="vertex",outcome="created"} 1`)
}

func TestExplainPlan(t *testing.T) {
	cfg := config.LoadDefaults()
	cfg.Traversal.Mode = "linear"

	var out bytes.Buffer
	path := writePlan(t, `
steps:
  - inject: [1]
  - union:
      - [{constant: a}]
      - [{constant: b}]
`)
	require.NoError(t, explainPlan(context.Background(), cfg, path, &out, true))

	text := out.String()
	assert.Contains(t, text, "mode:       linear")
	assert.Contains(t, text, "UnionLinearStrategy")
	assert.Contains(t, text, "~union.end.0")
}

func TestRunPlan_Errors(t *testing.T) {
	cfg := config.LoadDefaults()
	var out bytes.Buffer

	err := runPlan(context.Background(), cfg, filepath.Join(t.TempDir(), "missing.yaml"), &out, false, false)
	assert.Error(t, err)

	err = runPlan(context.Background(), cfg, writePlan(t, "steps:\n  - mergeV: {Direction.OUT: \"1\"}\n"), &out, false, false)
	assert.Error(t, err)
}
