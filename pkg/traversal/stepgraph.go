package traversal

import (
	"fmt"
	"strings"
)

// ReservedLabelPrefix starts every label synthesized by a strategy. User
// labels may not use it.
const ReservedLabelPrefix = "~"

// StepID addresses a slot in a StepGraph. IDs are stable for the life of the
// graph and are never reused after Remove.
type StepID int

// NoStep is returned where no step exists (the successor of a terminal step,
// the root of an empty graph).
const NoStep StepID = -1

type slot struct {
	step   *Step
	prev   StepID
	next   StepID
	scope  int
	labels []string
	live   bool
}

// labelKey names a label within a scope. Scope 0 holds the labels of the
// traversal itself; every spliced sub-traversal gets a fresh scope.
type labelKey struct {
	scope int
	label string
}

// StepGraph is the linear step sequence of one traversal. Steps live in an
// arena of slots; links are slot indices, and a label index maps every
// (scope, label) pair to the slot it names. A branch resolves its targets in
// its own scope, so a sub-traversal spliced in by a strategy keeps its labels
// to itself.
//
// Each live step has at most one successor and one predecessor, and exactly
// one step (the root) has no predecessor. A StepGraph is mutated only while
// a traversal is being compiled and is not safe for concurrent mutation.
type StepGraph struct {
	slots  []slot
	root   StepID
	tail   StepID
	live   int
	labels map[labelKey]StepID

	// scopeSeq is the last scope handed out by spliceAfter.
	scopeSeq int

	// unionSeq numbers rewritten unions. It only grows, so labels built from
	// it never repeat within this graph or its clones.
	unionSeq int
}

// NewStepGraph returns an empty graph.
func NewStepGraph() *StepGraph {
	return &StepGraph{
		root:   NoStep,
		tail:   NoStep,
		labels: make(map[labelKey]StepID),
	}
}

func (g *StepGraph) valid(id StepID) bool {
	return id >= 0 && int(id) < len(g.slots) && g.slots[id].live
}

func (g *StepGraph) check(id StepID) error {
	if !g.valid(id) {
		return fmt.Errorf("%w: step #%d", ErrStepNotFound, id)
	}
	return nil
}

func (g *StepGraph) alloc(step *Step, scope int) StepID {
	g.slots = append(g.slots, slot{step: step, prev: NoStep, next: NoStep, scope: scope, live: true})
	g.live++
	return StepID(len(g.slots) - 1)
}

// link places id between prev and next, either of which may be NoStep.
func (g *StepGraph) link(prev, id, next StepID) {
	g.slots[id].prev = prev
	g.slots[id].next = next
	if prev == NoStep {
		g.root = id
	} else {
		g.slots[prev].next = id
	}
	if next == NoStep {
		g.tail = id
	} else {
		g.slots[next].prev = id
	}
}

// Append adds step at the end of the graph, in the root scope.
func (g *StepGraph) Append(step *Step) StepID {
	id := g.alloc(step, 0)
	g.link(g.tail, id, NoStep)
	return id
}

// InsertAfter adds step immediately after existing, in the scope of
// existing.
func (g *StepGraph) InsertAfter(existing StepID, step *Step) (StepID, error) {
	if err := g.check(existing); err != nil {
		return NoStep, err
	}
	return g.insertAfter(existing, step, g.slots[existing].scope), nil
}

func (g *StepGraph) insertAfter(existing StepID, step *Step, scope int) StepID {
	id := g.alloc(step, scope)
	g.link(existing, id, g.slots[existing].next)
	return id
}

// InsertBefore adds step immediately before existing, in the scope of
// existing.
func (g *StepGraph) InsertBefore(existing StepID, step *Step) (StepID, error) {
	if err := g.check(existing); err != nil {
		return NoStep, err
	}
	id := g.alloc(step, g.slots[existing].scope)
	g.link(g.slots[existing].prev, id, existing)
	return id, nil
}

// Replace swaps the step held by id for step. Links and labels stay with the
// slot, so the replacement inherits every label of the old step.
func (g *StepGraph) Replace(id StepID, step *Step) error {
	if err := g.check(id); err != nil {
		return err
	}
	g.slots[id].step = step
	return nil
}

// Remove unlinks id, connecting its predecessor directly to its successor.
// Its labels are dropped from the index.
func (g *StepGraph) Remove(id StepID) error {
	if err := g.check(id); err != nil {
		return err
	}
	s := &g.slots[id]
	prev, next := s.prev, s.next
	if prev == NoStep {
		g.root = next
	} else {
		g.slots[prev].next = next
	}
	if next == NoStep {
		g.tail = prev
	} else {
		g.slots[next].prev = prev
	}
	for _, label := range s.labels {
		delete(g.labels, labelKey{s.scope, label})
	}
	*s = slot{prev: NoStep, next: NoStep}
	g.live--
	return nil
}

// AddLabel binds a user label to id. Labels must be unique within the scope
// of id and may not start with ReservedLabelPrefix.
func (g *StepGraph) AddLabel(id StepID, label string) error {
	if strings.HasPrefix(label, ReservedLabelPrefix) {
		return fmt.Errorf("%w: %q starts with %q", ErrReservedLabel, label, ReservedLabelPrefix)
	}
	return g.bindLabel(id, label)
}

func (g *StepGraph) bindLabel(id StepID, label string) error {
	if err := g.check(id); err != nil {
		return err
	}
	if label == "" {
		return fmt.Errorf("%w: empty label", ErrValidation)
	}
	key := labelKey{g.slots[id].scope, label}
	if owner, ok := g.labels[key]; ok {
		if owner == id {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
	}
	g.labels[key] = id
	g.slots[id].labels = append(g.slots[id].labels, label)
	return nil
}

// unbindLabels drops every label of id from the index.
func (g *StepGraph) unbindLabels(id StepID) {
	if !g.valid(id) {
		return
	}
	for _, label := range g.slots[id].labels {
		delete(g.labels, labelKey{g.slots[id].scope, label})
	}
	g.slots[id].labels = nil
}

// Labels returns the labels bound to id in binding order.
func (g *StepGraph) Labels(id StepID) []string {
	if !g.valid(id) {
		return nil
	}
	return append([]string(nil), g.slots[id].labels...)
}

// StepByLabel returns the step bound to label in the root scope.
func (g *StepGraph) StepByLabel(label string) (StepID, bool) {
	id, ok := g.labels[labelKey{0, label}]
	return id, ok
}

// Target resolves label the way a branch at from does: within the scope
// of from.
func (g *StepGraph) Target(from StepID, label string) (StepID, bool) {
	if !g.valid(from) {
		return NoStep, false
	}
	id, ok := g.labels[labelKey{g.slots[from].scope, label}]
	return id, ok
}

// Scope returns the label scope of id. Steps added by the traversal itself
// are in scope 0.
func (g *StepGraph) Scope(id StepID) int {
	if !g.valid(id) {
		return 0
	}
	return g.slots[id].scope
}

// Root returns the first step, or NoStep for an empty graph.
func (g *StepGraph) Root() StepID { return g.root }

// Tail returns the last step, or NoStep for an empty graph.
func (g *StepGraph) Tail() StepID { return g.tail }

// Next returns the successor of id, or NoStep.
func (g *StepGraph) Next(id StepID) StepID {
	if !g.valid(id) {
		return NoStep
	}
	return g.slots[id].next
}

// Prev returns the predecessor of id, or NoStep.
func (g *StepGraph) Prev(id StepID) StepID {
	if !g.valid(id) {
		return NoStep
	}
	return g.slots[id].prev
}

// Step returns the step held by id, or nil.
func (g *StepGraph) Step(id StepID) *Step {
	if !g.valid(id) {
		return nil
	}
	return g.slots[id].step
}

// IDs returns the live steps in encounter order.
func (g *StepGraph) IDs() []StepID {
	ids := make([]StepID, 0, g.live)
	for id := g.root; id != NoStep; id = g.slots[id].next {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live steps.
func (g *StepGraph) Len() int { return g.live }

// Clone returns an independent copy. Steps are shared; slots, links and the
// label index are not.
func (g *StepGraph) Clone() *StepGraph {
	c := &StepGraph{
		slots:    make([]slot, len(g.slots)),
		root:     g.root,
		tail:     g.tail,
		live:     g.live,
		labels:   make(map[labelKey]StepID, len(g.labels)),
		scopeSeq: g.scopeSeq,
		unionSeq: g.unionSeq,
	}
	for i, s := range g.slots {
		s.labels = append([]string(nil), s.labels...)
		c.slots[i] = s
	}
	for key, id := range g.labels {
		c.labels[key] = id
	}
	return c
}

// spliceAfter copies the steps of sub, with their labels, into g after at and
// returns the last inserted step (at itself when sub is empty). Each scope of
// sub is mapped to a fresh scope of g, so splicing the same sub twice, or a
// sub that reuses a label of g, binds no label twice.
func (g *StepGraph) spliceAfter(at StepID, sub *StepGraph) (StepID, error) {
	if err := g.check(at); err != nil {
		return NoStep, err
	}
	if sub.unionSeq > g.unionSeq {
		g.unionSeq = sub.unionSeq
	}
	scopes := make(map[int]int)
	cur := at
	for _, sid := range sub.IDs() {
		scope, ok := scopes[sub.slots[sid].scope]
		if !ok {
			g.scopeSeq++
			scope = g.scopeSeq
			scopes[sub.slots[sid].scope] = scope
		}
		id := g.insertAfter(cur, sub.slots[sid].step, scope)
		for _, label := range sub.slots[sid].labels {
			if err := g.bindLabel(id, label); err != nil {
				return NoStep, err
			}
		}
		cur = id
	}
	return cur, nil
}

// nextUnionIndex reserves the next union number.
func (g *StepGraph) nextUnionIndex() int {
	u := g.unionSeq
	g.unionSeq++
	return u
}

// String renders the graph as [Step@[labels], ...].
func (g *StepGraph) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, id := range g.IDs() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(g.slots[id].step.String())
		if labels := g.slots[id].labels; len(labels) > 0 {
			b.WriteString("@[")
			b.WriteString(strings.Join(labels, ","))
			b.WriteByte(']')
		}
	}
	b.WriteByte(']')
	return b.String()
}
