// Package event carries mutation notifications out of the traversal engine.
//
// Merge steps report every element they create and every property they
// change to a Sink. The default Sink is Nop; Registry fans events out to
// callbacks and LogSink writes them to the standard logger.
package event

import (
	"fmt"
	"log"
	"sync"
)

// ElementKind says whether an event concerns a vertex or an edge.
type ElementKind int

const (
	KindVertex ElementKind = iota
	KindEdge
)

func (k ElementKind) String() string {
	switch k {
	case KindVertex:
		return "vertex"
	case KindEdge:
		return "edge"
	default:
		return fmt.Sprintf("ElementKind(%d)", int(k))
	}
}

// Event is a single mutation notification.
type Event interface {
	// Kind is the element kind the event concerns.
	Kind() ElementKind
	// ElementID is the id of the affected element.
	ElementID() string
	String() string
}

// ElementAdded is emitted after a vertex or edge has been created.
type ElementAdded struct {
	Element ElementKind
	ID      string
	Label   string
}

func (e ElementAdded) Kind() ElementKind { return e.Element }
func (e ElementAdded) ElementID() string { return e.ID }

func (e ElementAdded) String() string {
	return fmt.Sprintf("%s added id=%s label=%s", e.Element, e.ID, e.Label)
}

// PropertyChanged is emitted after a property of an existing element has
// been written. Existed is false when the key had no previous value.
type PropertyChanged struct {
	Element  ElementKind
	ID       string
	Key      string
	OldValue any
	NewValue any
	Existed  bool
}

func (e PropertyChanged) Kind() ElementKind { return e.Element }
func (e PropertyChanged) ElementID() string { return e.ID }

func (e PropertyChanged) String() string {
	if !e.Existed {
		return fmt.Sprintf("%s property id=%s %s: <none> -> %v", e.Element, e.ID, e.Key, e.NewValue)
	}
	return fmt.Sprintf("%s property id=%s %s: %v -> %v", e.Element, e.ID, e.Key, e.OldValue, e.NewValue)
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(Event) {}

// Callback handles a single event.
type Callback func(ev Event)

// Registry dispatches events to registered callbacks in registration order.
type Registry struct {
	mu        sync.RWMutex
	callbacks []Callback
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddCallback registers cb. Nil callbacks are ignored.
func (r *Registry) AddCallback(cb Callback) {
	if cb == nil {
		return
	}
	r.mu.Lock()
	r.callbacks = append(r.callbacks, cb)
	r.mu.Unlock()
}

// Callbacks returns a copy of the registered callbacks.
func (r *Registry) Callbacks() []Callback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Callback, len(r.callbacks))
	copy(out, r.callbacks)
	return out
}

// Empty reports whether no callback is registered.
func (r *Registry) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.callbacks) == 0
}

// Record delivers ev to every callback.
func (r *Registry) Record(ev Event) {
	for _, cb := range r.Callbacks() {
		cb(ev)
	}
}

// LogSink writes events to a logger with an "[event]" prefix.
type LogSink struct {
	Logger *log.Logger
}

// Record logs ev. A nil Logger uses the standard logger.
func (s LogSink) Record(ev Event) {
	if s.Logger != nil {
		s.Logger.Printf("[event] %s", ev)
		return
	}
	log.Printf("[event] %s", ev)
}

// Recorder keeps every event it receives, in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Record appends ev.
func (r *Recorder) Record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

var (
	_ Sink = Nop{}
	_ Sink = (*Registry)(nil)
	_ Sink = LogSink{}
	_ Sink = (*Recorder)(nil)
)
