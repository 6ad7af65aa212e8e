package event

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("empty by default", func(t *testing.T) {
		r := NewRegistry()
		assert.True(t, r.Empty())
		r.Record(ElementAdded{Element: KindVertex, ID: "1"})
	})

	t.Run("dispatches in registration order", func(t *testing.T) {
		r := NewRegistry()
		var order []string
		r.AddCallback(func(ev Event) { order = append(order, "first:"+ev.ElementID()) })
		r.AddCallback(nil)
		r.AddCallback(func(ev Event) { order = append(order, "second:"+ev.ElementID()) })

		assert.False(t, r.Empty())
		assert.Len(t, r.Callbacks(), 2)

		r.Record(ElementAdded{Element: KindEdge, ID: "e1", Label: "knows"})
		assert.Equal(t, []string{"first:e1", "second:e1"}, order)
	})
}

func TestEventStrings(t *testing.T) {
	added := ElementAdded{Element: KindEdge, ID: "e1", Label: "knows"}
	assert.Equal(t, "edge added id=e1 label=knows", added.String())
	assert.Equal(t, KindEdge, added.Kind())

	changed := PropertyChanged{Element: KindVertex, ID: "1", Key: "weight", OldValue: 0.5, NewValue: 0.9, Existed: true}
	assert.Equal(t, "vertex property id=1 weight: 0.5 -> 0.9", changed.String())

	fresh := PropertyChanged{Element: KindVertex, ID: "1", Key: "weight", NewValue: 0.9}
	assert.Equal(t, "vertex property id=1 weight: <none> -> 0.9", fresh.String())

	assert.Equal(t, "ElementKind(9)", ElementKind(9).String())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: log.New(&buf, "", 0)}

	sink.Record(ElementAdded{Element: KindVertex, ID: "42", Label: "person"})
	assert.Equal(t, "[event] vertex added id=42 label=person\n", buf.String())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Record(ElementAdded{Element: KindVertex, ID: "1"})
	r.Record(PropertyChanged{Element: KindVertex, ID: "1", Key: "k"})

	events := r.Events()
	require.Len(t, events, 2)
	assert.IsType(t, PropertyChanged{}, events[1])
}
