package traversal

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// StepKind is the closed set of step variants the executor knows how to run.
type StepKind int

const (
	// KindStart emits its values, then passes upstream traversers through.
	KindStart StepKind = iota
	// KindMap replaces the traverser value.
	KindMap
	// KindFlatMap replaces the traverser with zero or more traversers.
	KindFlatMap
	// KindFilter drops traversers failing a predicate.
	KindFilter
	// KindIdentity passes traversers through; used as a label target.
	KindIdentity
	// KindBranch moves traversers to labeled steps.
	KindBranch
	// KindUnion runs every sub-traversal for each traverser.
	KindUnion
	// KindMerge searches for or creates graph elements.
	KindMerge
)

func (k StepKind) String() string {
	switch k {
	case KindStart:
		return "StartStep"
	case KindMap:
		return "MapStep"
	case KindFlatMap:
		return "FlatMapStep"
	case KindFilter:
		return "FilterStep"
	case KindIdentity:
		return "IdentityStep"
	case KindBranch:
		return "BranchStep"
	case KindUnion:
		return "UnionStep"
	case KindMerge:
		return "MergeStep"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// MapFunc computes a new value for a traverser.
type MapFunc func(ctx context.Context, t *Traverser) (any, error)

// FlatMapFunc computes zero or more values for a traverser.
type FlatMapFunc func(ctx context.Context, t *Traverser) ([]any, error)

// FilterFunc reports whether a traverser continues.
type FilterFunc func(ctx context.Context, t *Traverser) (bool, error)

// BranchFunc returns the labels a traverser is sent to. One label is a plain
// redirect; several labels send one clone to each. No labels drops it.
type BranchFunc func(t *Traverser) ([]string, error)

// GoToLabels returns a BranchFunc that sends every traverser to labels.
func GoToLabels(labels ...string) BranchFunc {
	targets := append([]string(nil), labels...)
	return func(*Traverser) ([]string, error) {
		return targets, nil
	}
}

// Step is one stage of a traversal. Steps are immutable once built; labels
// and links live in the StepGraph slot that holds the step.
type Step struct {
	id   string
	kind StepKind
	name string

	values  []any
	mapFn   MapFunc
	flatFn  FlatMapFunc
	filter  FilterFunc
	branch  BranchFunc
	targets []string // static targets, display only
	union   []*Traversal
	merge   *mergeStep
}

func newStep(kind StepKind, name string) *Step {
	return &Step{id: uuid.NewString(), kind: kind, name: name}
}

// NewStartStep returns a step that emits values before passing upstream
// traversers through.
func NewStartStep(values ...any) *Step {
	s := newStep(KindStart, "inject")
	s.values = append([]any(nil), values...)
	return s
}

// NewMapStep returns a step replacing each traverser's value with fn's result.
func NewMapStep(name string, fn MapFunc) *Step {
	s := newStep(KindMap, name)
	s.mapFn = fn
	return s
}

// NewFlatMapStep returns a step fanning each traverser out into fn's results.
func NewFlatMapStep(name string, fn FlatMapFunc) *Step {
	s := newStep(KindFlatMap, name)
	s.flatFn = fn
	return s
}

// NewFilterStep returns a step keeping traversers for which fn is true.
func NewFilterStep(name string, fn FilterFunc) *Step {
	s := newStep(KindFilter, name)
	s.filter = fn
	return s
}

// NewIdentityStep returns a no-op step.
func NewIdentityStep() *Step {
	return newStep(KindIdentity, "identity")
}

// NewBranchStep returns a step dispatching traversers by label.
func NewBranchStep(fn BranchFunc) *Step {
	s := newStep(KindBranch, "branch")
	s.branch = fn
	return s
}

// NewGoToStep returns a branch step with a fixed target set.
func NewGoToStep(labels ...string) *Step {
	s := NewBranchStep(GoToLabels(labels...))
	s.targets = append([]string(nil), labels...)
	return s
}

// NewUnionStep returns a step running every sub-traversal per traverser.
func NewUnionStep(subs ...*Traversal) *Step {
	s := newStep(KindUnion, "union")
	s.union = append([]*Traversal(nil), subs...)
	return s
}

// ID returns the step's unique identity.
func (s *Step) ID() string { return s.id }

// Kind returns the step variant.
func (s *Step) Kind() StepKind { return s.kind }

// Name returns the display name given at construction.
func (s *Step) Name() string { return s.name }

// Targets returns the fixed branch targets of a goto step, if any.
func (s *Step) Targets() []string { return append([]string(nil), s.targets...) }

// Branches returns the sub-traversals of a union step.
func (s *Step) Branches() []*Traversal { return append([]*Traversal(nil), s.union...) }

// children returns every nested traversal the step evaluates.
func (s *Step) children() []*Traversal {
	switch s.kind {
	case KindUnion:
		return s.union
	case KindMerge:
		return s.merge.children()
	default:
		return nil
	}
}

// String renders the step the way Explain prints it.
func (s *Step) String() string {
	switch s.kind {
	case KindStart:
		return fmt.Sprintf("%s(%s)", s.kind, joinValues(s.values))
	case KindBranch:
		if len(s.targets) > 0 {
			return fmt.Sprintf("%s([%s])", s.kind, strings.Join(s.targets, ","))
		}
		return s.kind.String()
	case KindUnion:
		parts := make([]string, len(s.union))
		for i, sub := range s.union {
			parts[i] = sub.graph.String()
		}
		return fmt.Sprintf("%s(%s)", s.kind, strings.Join(parts, ","))
	case KindMerge:
		return s.merge.String()
	case KindIdentity:
		return s.kind.String()
	default:
		return fmt.Sprintf("%s(%s)", s.kind, s.name)
	}
}

func joinValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
