// Package plan loads traversals from YAML plan files.
//
// A plan is a list of steps. Each step is a mapping with one step keyword
// and, for merge steps, optional option keys:
//
//	name: link people
//	mode: linear
//	steps:
//	  - mergeV: {T.label: person, name: marko}
//	    onCreate: {age: 29}
//	  - as: marko
//	  - mergeE: {T.label: knows, Direction.OUT: Merge.outV, Direction.IN: "2"}
//	    outV: {T.label: person, name: marko}
//	  - union:
//	      - [{values: weight}]
//	      - [{constant: none}]
//
// Map keys T.id, T.label, Direction.OUT and Direction.IN are tokens; any
// other key is a property. Under Direction.OUT and Direction.IN the strings
// Merge.outV and Merge.inV refer to the outV and inV options. A merge source
// or option written as a list of steps is a sub-traversal; a null merge
// source merges the incoming value.
package plan

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/nornictrav/pkg/traversal"
)

// ErrInvalidPlan reports a plan that does not describe a traversal.
var ErrInvalidPlan = errors.New("invalid plan")

// Plan is a parsed plan file.
type Plan struct {
	Name  string           `yaml:"name"`
	Mode  string           `yaml:"mode"`
	Steps []map[string]any `yaml:"steps"`
}

// option keys a merge step may carry next to its keyword.
var optionKeys = map[string]traversal.Merge{
	"onCreate": traversal.MergeOnCreate,
	"onMatch":  traversal.MergeOnMatch,
	"outV":     traversal.MergeOutV,
	"inV":      traversal.MergeInV,
}

// Load reads and parses the plan at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	return Parse(data)
}

// Parse parses a plan document.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidPlan)
	}
	return &p, nil
}

// Build turns the plan into a root traversal. A mode set in the plan
// overrides any WithMode in opts.
func (p *Plan) Build(opts ...traversal.Option) (*traversal.Traversal, error) {
	if p.Mode != "" {
		mode, err := traversal.ParseMode(p.Mode)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}
		opts = append(opts, traversal.WithMode(mode))
	}
	t := traversal.New(opts...)
	for i, step := range p.Steps {
		if err := addStep(t, step, fmt.Sprintf("steps[%d]", i)); err != nil {
			return nil, err
		}
	}
	if err := t.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func addStep(t *traversal.Traversal, step map[string]any, where string) error {
	keyword, arg, err := stepKeyword(step, where)
	if err != nil {
		return err
	}
	if keyword != "mergeV" && keyword != "mergeE" {
		for key := range optionKeys {
			if _, ok := step[key]; ok {
				return fmt.Errorf("%w: %s: %s only applies to mergeV and mergeE", ErrInvalidPlan, where, key)
			}
		}
	}

	switch keyword {
	case "inject":
		t.Inject(listOf(arg)...)

	case "constant":
		t.Constant(convertValue(arg))

	case "identity":
		t.Identity()

	case "as":
		labels, err := stringsOf(arg)
		if err != nil {
			return fmt.Errorf("%s.as: %w", where, err)
		}
		t.As(labels...)

	case "goto":
		labels, err := stringsOf(arg)
		if err != nil {
			return fmt.Errorf("%s.goto: %w", where, err)
		}
		t.GoTo(labels...)

	case "values":
		key, ok := arg.(string)
		if !ok || key == "" {
			return fmt.Errorf("%w: %s.values: expected a property name", ErrInvalidPlan, where)
		}
		t.Values(key)

	case "union":
		branches, ok := arg.([]any)
		if !ok {
			return fmt.Errorf("%w: %s.union: expected a list of step lists", ErrInvalidPlan, where)
		}
		subs := make([]*traversal.Traversal, len(branches))
		for i, b := range branches {
			sub, err := buildSub(b, fmt.Sprintf("%s.union[%d]", where, i))
			if err != nil {
				return err
			}
			subs[i] = sub
		}
		t.Union(subs...)

	case "mergeV", "mergeE":
		src, err := mapSource(arg, where+"."+keyword)
		if err != nil {
			return err
		}
		if keyword == "mergeV" {
			t.MergeV(src)
		} else {
			t.MergeE(src)
		}
		for _, key := range sortedOptionKeys(step) {
			opt, err := mapSource(step[key], where+"."+key)
			if err != nil {
				return err
			}
			t.Option(optionKeys[key], opt)
		}

	default:
		return fmt.Errorf("%w: %s: unknown step %q", ErrInvalidPlan, where, keyword)
	}
	return t.Err()
}

// stepKeyword returns the one non-option key of step and its argument.
func stepKeyword(step map[string]any, where string) (string, any, error) {
	var keywords []string
	for key := range step {
		if _, isOption := optionKeys[key]; !isOption {
			keywords = append(keywords, key)
		}
	}
	if len(keywords) != 1 {
		sort.Strings(keywords)
		return "", nil, fmt.Errorf("%w: %s: expected exactly one step keyword, got %v", ErrInvalidPlan, where, keywords)
	}
	return keywords[0], step[keywords[0]], nil
}

func sortedOptionKeys(step map[string]any) []string {
	var keys []string
	for key := range step {
		if _, ok := optionKeys[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// buildSub builds an anonymous traversal from a list of steps.
func buildSub(v any, where string) (*traversal.Traversal, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: expected a list of steps", ErrInvalidPlan, where)
	}
	sub := traversal.Anon()
	for i, item := range list {
		step, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d]: expected a step mapping", ErrInvalidPlan, where, i)
		}
		if err := addStep(sub, step, fmt.Sprintf("%s[%d]", where, i)); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// mapSource converts a merge source or option: null, a map, or a list of
// steps.
func mapSource(v any, where string) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return convertMap(x), nil
	case []any:
		return buildSub(x, where)
	}
	return nil, fmt.Errorf("%w: %s: expected a map, a list of steps or null, got %T", ErrInvalidPlan, where, v)
}

// convertMap turns a YAML mapping into a merge map, resolving token keys
// and endpoint references.
func convertMap(in map[string]any) *traversal.Map {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := traversal.NewMap()
	for _, k := range keys {
		v := in[k]
		tok, isToken := traversal.ParseToken(k)
		if !isToken {
			m.Set(traversal.PropKey(k), v)
			continue
		}
		if tok == traversal.TokenOut || tok == traversal.TokenIn {
			if s, ok := v.(string); ok {
				if ref, ok := traversal.ParseMerge(s); ok {
					m.Set(traversal.TokenKey(tok), ref)
					continue
				}
			}
		}
		m.Set(traversal.TokenKey(tok), v)
	}
	return m
}

func convertValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		return convertMap(m)
	}
	return v
}

func listOf(v any) []any {
	list, ok := v.([]any)
	if !ok {
		list = []any{v}
	}
	out := make([]any, len(list))
	for i, item := range list {
		out[i] = convertValue(item)
	}
	return out
}

func stringsOf(v any) ([]string, error) {
	switch x := v.(type) {
	case string:
		return []string{x}, nil
	case []any:
		out := make([]string, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: expected strings, got %T", ErrInvalidPlan, item)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: expected a string or a list of strings, got %T", ErrInvalidPlan, v)
}
