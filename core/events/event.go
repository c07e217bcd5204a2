package events

import "harvestmart/core/types"

// Event represents a structured state change emitted by a native engine.
type Event interface {
	EventType() string
}

// PayloadEvent is implemented by events that carry a full attribute payload
// in addition to their type.
type PayloadEvent interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (RPC streams, the
// notification dispatcher, audit sinks).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// Engines default to it so event emission is always optional.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
