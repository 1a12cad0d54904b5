package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels.
// Events are dropped when ch is full so a slow SSE client never stalls publishers.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeAllToChannel subscribes ch to every event type and returns a single
// unsubscribe function.
func SubscribeAllToChannel(bus *Bus, ch chan<- any) func() {
	unsubscribers := []func(){
		SubscribeToChannel[FrameProducedEvent](bus, ch),
		SubscribeToChannel[FrameDroppedEvent](bus, ch),
		SubscribeToChannel[RotationEvent](bus, ch),
		SubscribeToChannel[StreamingStateChangedEvent](bus, ch),
		SubscribeToChannel[SessionEvent](bus, ch),
		SubscribeToChannel[FrameIngestedEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubscribers {
			unsub()
		}
	}
}

// Names maps SSE event names to their payload types.
func Names() map[string]any {
	return map[string]any{
		"frame-produced":          FrameProducedEvent{},
		"frame-dropped":           FrameDroppedEvent{},
		"rotation":                RotationEvent{},
		"streaming-state-changed": StreamingStateChangedEvent{},
		"session":                 SessionEvent{},
		"frame-ingested":          FrameIngestedEvent{},
	}
}
