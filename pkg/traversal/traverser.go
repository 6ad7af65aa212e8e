package traversal

import (
	"fmt"
	"strings"
)

// PathEntry is one step of a traverser's history: the value a step produced
// and the labels of the steps that produced or passed it.
type PathEntry struct {
	Labels []string
	Value  any
}

// Path is the append-only history of a traverser.
type Path struct {
	entries []PathEntry
}

// Len returns the number of entries.
func (p Path) Len() int { return len(p.entries) }

// Entries returns a copy of the entries.
func (p Path) Entries() []PathEntry {
	out := make([]PathEntry, len(p.entries))
	for i, e := range p.entries {
		out[i] = PathEntry{Labels: append([]string(nil), e.Labels...), Value: e.Value}
	}
	return out
}

// Objects returns the values in order.
func (p Path) Objects() []any {
	out := make([]any, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.Value
	}
	return out
}

// Labels returns the label sets in order.
func (p Path) Labels() [][]string {
	out := make([][]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = append([]string(nil), e.Labels...)
	}
	return out
}

// HasLabel reports whether any entry carries label.
func (p Path) HasLabel(label string) bool {
	for _, e := range p.entries {
		for _, l := range e.Labels {
			if l == label {
				return true
			}
		}
	}
	return false
}

// Get returns the most recent value labeled label.
func (p Path) Get(label string) (any, bool) {
	for i := len(p.entries) - 1; i >= 0; i-- {
		for _, l := range p.entries[i].Labels {
			if l == label {
				return p.entries[i].Value, true
			}
		}
	}
	return nil, false
}

// String renders the path as path[v1, v2, ...].
func (p Path) String() string {
	parts := make([]string, len(p.entries))
	for i, e := range p.entries {
		parts[i] = fmt.Sprint(e.Value)
	}
	return "path[" + strings.Join(parts, ", ") + "]"
}

// placeholder is the value of the traverser a start merge step creates.
type placeholder struct{}

func (placeholder) String() string { return "placeholder" }

// Placeholder is the initial value of a traversal that starts at a merge
// step. The step replaces it with the element it matched or created.
var Placeholder any = placeholder{}

// Traverser carries a value and its path through a traversal. A traverser
// is owned by one step at a time; fan-out clones it.
type Traverser struct {
	Value any
	path  []PathEntry
}

// NewTraverser returns a traverser with an empty path.
func NewTraverser(value any) *Traverser {
	return &Traverser{Value: value}
}

// Path returns the traverser's history.
func (t *Traverser) Path() Path {
	return Path{entries: t.path}
}

// Clone returns a traverser with the same value and an independent path.
func (t *Traverser) Clone() *Traverser {
	return &Traverser{Value: t.Value, path: append([]PathEntry(nil), t.path...)}
}

// split clones t with a new value appended to the path under labels.
func (t *Traverser) split(labels []string, value any) *Traverser {
	c := t.Clone()
	c.extend(labels, value)
	return c
}

// extend sets a new value and records it in the path.
func (t *Traverser) extend(labels []string, value any) {
	t.Value = value
	t.path = append(t.path, PathEntry{Labels: labels, Value: value})
}

// addLabels records that the current value passed labeled steps. Entries
// are never mutated in place, so clones sharing them stay independent.
func (t *Traverser) addLabels(labels []string) {
	if len(labels) == 0 {
		return
	}
	n := len(t.path)
	if n == 0 {
		t.path = append(t.path, PathEntry{Labels: labels, Value: t.Value})
		return
	}
	last := t.path[n-1]
	merged := make([]string, 0, len(last.Labels)+len(labels))
	merged = append(merged, last.Labels...)
	merged = append(merged, labels...)
	t.path = append(t.path[:n-1:n-1], PathEntry{Labels: merged, Value: last.Value})
}
