package events

import (
	"sync"

	"savingsgame/core/types"
)

// Event represents a structured state change emitted by the game engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. the API, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Convertible is implemented by events that can be flattened into the generic
// attribute form.
type Convertible interface {
	Event() *types.Event
}

// Flatten returns the generic form of evt. Events that do not implement
// Convertible keep only their type.
func Flatten(evt Event) *types.Event {
	if conv, ok := evt.(Convertible); ok {
		if flat := conv.Event(); flat != nil {
			return flat
		}
	}
	return types.NewEvent(evt.EventType())
}

// Buffer retains the most recent events in memory. It is safe for concurrent
// use.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	items    []*types.Event
	next     uint64
}

// NewBuffer returns a buffer keeping at most capacity events.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Buffer{capacity: capacity}
}

// Emit implements the Emitter interface. Events that do not implement
// Convertible are recorded with their type only.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	flat := Flatten(evt)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	if len(b.items) == b.capacity {
		copy(b.items, b.items[1:])
		b.items = b.items[:len(b.items)-1]
	}
	b.items = append(b.items, flat)
}

// Events returns a copy of the retained events, oldest first.
func (b *Buffer) Events() []*types.Event {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*types.Event, len(b.items))
	copy(out, b.items)
	return out
}

// Total reports how many events were emitted since creation.
func (b *Buffer) Total() uint64 {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.next
}

// Fanout forwards every event to each wrapped emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
