package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan FrameProducedEvent, 1)

	unsub := bus.Subscribe(func(e FrameProducedEvent) {
		received <- e
	})
	defer unsub()

	event := FrameProducedEvent{
		ID:        "id-1",
		Source:    "cam1",
		Mode:      "disk",
		Timestamp: "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	select {
	case got := <-received:
		if got.Source != event.Source {
			t.Errorf("Expected source %s, got %s", event.Source, got.Source)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	received1 := make(chan RotationEvent, 1)
	received2 := make(chan RotationEvent, 1)

	unsub1 := bus.Subscribe(func(e RotationEvent) { received1 <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e RotationEvent) { received2 <- e })
	defer unsub2()

	bus.Publish(RotationEvent{Window: []string{"cam3", "cam4"}})

	for i, ch := range []chan RotationEvent{received1, received2} {
		select {
		case e := <-ch:
			if len(e.Window) != 2 {
				t.Errorf("subscriber %d: window = %v", i+1, e.Window)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i+1)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan FrameDroppedEvent, 1)

	unsub := bus.Subscribe(func(e FrameDroppedEvent) {
		received <- e
	})

	bus.Publish(FrameDroppedEvent{Source: "cam1"})
	<-received

	unsub()
	bus.Publish(FrameDroppedEvent{Source: "cam1"})

	select {
	case <-received:
		t.Error("received event after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_TypeIsolation(t *testing.T) {
	bus := New()
	produced := make(chan struct{}, 1)

	unsub := bus.Subscribe(func(FrameProducedEvent) { produced <- struct{}{} })
	defer unsub()

	bus.Publish(SessionEvent{SessionID: "s1", Action: "connected"})

	select {
	case <-produced:
		t.Error("handler received an event of a different type")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	count := 0
	done := make(chan struct{})

	const total = 50
	unsub := bus.Subscribe(func(FrameIngestedEvent) {
		mu.Lock()
		count++
		if count == total {
			close(done)
		}
		mu.Unlock()
	})
	defer unsub()

	var wg sync.WaitGroup
	for i := range total {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(FrameIngestedEvent{Bytes: i})
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		mu.Lock()
		t.Errorf("received %d of %d events", count, total)
		mu.Unlock()
	}
}

func TestSubscribeAllToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeAllToChannel(bus, ch)
	defer unsub()

	bus.Publish(StreamingStateChangedEvent{Enabled: false, Reason: "api"})
	bus.Publish(FrameIngestedEvent{Name: "cam1/a.png"})

	seen := map[uint32]bool{}
	for range 2 {
		select {
		case e := <-ch:
			seen[e.(Event).Type()] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	if !seen[TypeStreamingStateChanged] || !seen[TypeFrameIngested] {
		t.Errorf("unexpected event set %v", seen)
	}
}

func TestSubscribeToChannelDropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan any) // unbuffered, nobody reading

	unsub := SubscribeToChannel[FrameDroppedEvent](bus, ch)
	defer unsub()

	bus.Publish(FrameDroppedEvent{Source: "cam1"})
}

func TestEventJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(FrameProducedEvent{ID: "x", Source: "cam1", Mode: "socket", Async: true})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "source", "mode", "async", "timestamp"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing JSON key %q in %s", key, data)
		}
	}
}

func TestNamesCoverEveryType(t *testing.T) {
	types := map[uint32]bool{}
	for _, v := range Names() {
		types[v.(Event).Type()] = true
	}
	for typ := TypeFrameProduced; typ <= TypeFrameIngested; typ++ {
		if !types[typ] {
			t.Errorf("event type %d has no SSE name", typ)
		}
	}
}
