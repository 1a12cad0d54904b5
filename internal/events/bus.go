package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(FrameProducedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case FrameProducedEvent:
		event.Publish(b.dispatcher, e)
	case FrameDroppedEvent:
		event.Publish(b.dispatcher, e)
	case RotationEvent:
		event.Publish(b.dispatcher, e)
	case StreamingStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case SessionEvent:
		event.Publish(b.dispatcher, e)
	case FrameIngestedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects the event. Returns an unsubscribe
// function; unknown handler types get a no-op.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(FrameProducedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameDroppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RotationEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamingStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameIngestedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
