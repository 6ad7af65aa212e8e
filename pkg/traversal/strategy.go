package traversal

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Mode is the execution mode a traversal is compiled for.
type Mode int

const (
	// ModeStandard executes locally; structural branching such as a native
	// union is allowed.
	ModeStandard Mode = iota
	// ModeLinear requires a label-addressable linear program.
	ModeLinear
)

func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeLinear:
		return "linear"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "standard" or "linear".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return ModeStandard, nil
	case "linear":
		return ModeLinear, nil
	}
	return ModeStandard, fmt.Errorf("unknown traversal mode %q (expected standard or linear)", s)
}

// Category orders strategies. Strategies run by category, then in
// registration order within a category.
type Category int

const (
	CategoryDecoration Category = iota
	CategoryOptimization
	CategoryFinalization
	CategoryVerification
)

func (c Category) String() string {
	switch c {
	case CategoryDecoration:
		return "decoration"
	case CategoryOptimization:
		return "optimization"
	case CategoryFinalization:
		return "finalization"
	case CategoryVerification:
		return "verification"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Strategy rewrites a step graph in place before execution. Apply may be a
// no-op, for instance when the strategy does not apply to mode.
type Strategy interface {
	Name() string
	Category() Category
	Apply(g *StepGraph, mode Mode) error
}

// Strategies is an ordered set of strategies, unique by name.
type Strategies struct {
	list []Strategy
}

// NewStrategies returns a set holding strategies.
func NewStrategies(strategies ...Strategy) *Strategies {
	s := &Strategies{}
	return s.Add(strategies...)
}

// DefaultStrategies returns the strategies every traversal gets unless
// configured otherwise.
func DefaultStrategies() *Strategies {
	return NewStrategies(
		UnionLinearStrategy{},
		IdentityRemovalStrategy{},
		LinearVerificationStrategy{},
	)
}

// Add registers strategies. A strategy replaces a registered one with the
// same name in place.
func (s *Strategies) Add(strategies ...Strategy) *Strategies {
	for _, st := range strategies {
		if st == nil {
			continue
		}
		replaced := false
		for i, existing := range s.list {
			if existing.Name() == st.Name() {
				s.list[i] = st
				replaced = true
				break
			}
		}
		if !replaced {
			s.list = append(s.list, st)
		}
	}
	return s
}

// Remove unregisters strategies by name. Unknown names are ignored.
func (s *Strategies) Remove(names ...string) *Strategies {
	for _, name := range names {
		for i, st := range s.list {
			if st.Name() == name {
				s.list = append(s.list[:i:i], s.list[i+1:]...)
				break
			}
		}
	}
	return s
}

// Get returns the strategy registered under name.
func (s *Strategies) Get(name string) (Strategy, bool) {
	if s == nil {
		return nil, false
	}
	for _, st := range s.list {
		if st.Name() == name {
			return st, true
		}
	}
	return nil, false
}

// Len returns the number of registered strategies.
func (s *Strategies) Len() int {
	if s == nil {
		return 0
	}
	return len(s.list)
}

// Names returns the strategy names in application order.
func (s *Strategies) Names() []string {
	ordered := s.ordered()
	names := make([]string, len(ordered))
	for i, st := range ordered {
		names[i] = st.Name()
	}
	return names
}

// Clone returns an independent copy of the set.
func (s *Strategies) Clone() *Strategies {
	if s == nil {
		return &Strategies{}
	}
	return &Strategies{list: append([]Strategy(nil), s.list...)}
}

func (s *Strategies) ordered() []Strategy {
	if s == nil {
		return nil
	}
	out := append([]Strategy(nil), s.list...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Category() < out[j].Category()
	})
	return out
}

// Apply runs every strategy against g, in order, stopping at the first
// error.
func (s *Strategies) Apply(ctx context.Context, g *StepGraph, mode Mode) error {
	_, err := s.apply(ctx, g, mode, nil, false)
	return err
}

// apply runs the strategies with tracing, metrics and optional logging, and
// returns the names of the strategies that changed the graph.
func (s *Strategies) apply(ctx context.Context, g *StepGraph, mode Mode, metrics *Metrics, verbose bool) ([]string, error) {
	var changed []string
	for _, st := range s.ordered() {
		start := time.Now()
		_, span := tracer.Start(ctx, "strategy."+st.Name(),
			trace.WithAttributes(
				attribute.String("strategy.category", st.Category().String()),
				attribute.String("traversal.mode", mode.String()),
			))

		before := g.String()
		err := st.Apply(g, mode)
		metrics.observeStrategy(st.Name(), err, start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "strategy failed")
			span.End()
			return changed, fmt.Errorf("strategy %s: %w", st.Name(), err)
		}

		after := g.String()
		rewrote := after != before
		span.SetAttributes(attribute.Bool("strategy.rewrote", rewrote))
		span.End()
		if rewrote {
			changed = append(changed, st.Name())
			if verbose {
				log.Printf("[strategy] %s (%s): %s -> %s", st.Name(), mode, before, after)
			}
		}
	}
	return changed, nil
}
