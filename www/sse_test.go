package www

import (
	"testing"
	"time"
)

func drainOne(t *testing.T, c *sseClient) SSEEvent {
	t.Helper()
	select {
	case evt := <-c.events:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return SSEEvent{}
	}
}

func TestEventHubBroadcast(t *testing.T) {
	hub := NewEventHub()
	hub.Start()
	defer hub.Stop()

	a := &sseClient{events: make(chan SSEEvent, 4)}
	b := &sseClient{events: make(chan SSEEvent, 4)}
	hub.register(a)
	hub.register(b)

	hub.Broadcast(SSEEvent{Type: "robot-status", Data: map[string]int{"x": 1}})

	for _, c := range []*sseClient{a, b} {
		evt := drainOne(t, c)
		if evt.Type != "robot-status" {
			t.Errorf("event type = %q", evt.Type)
		}
	}
}

func TestEventHubUnregisterStopsDelivery(t *testing.T) {
	hub := NewEventHub()
	hub.Start()
	defer hub.Stop()

	a := &sseClient{events: make(chan SSEEvent, 4)}
	b := &sseClient{events: make(chan SSEEvent, 4)}
	hub.register(a)
	hub.register(b)
	hub.unregister(a)

	hub.Broadcast(SSEEvent{Type: "link-state"})

	if evt := drainOne(t, b); evt.Type != "link-state" {
		t.Errorf("event type = %q", evt.Type)
	}
	// Unregistered client's channel is closed with nothing queued.
	if evt, ok := <-a.events; ok {
		t.Errorf("unexpected event after unregister: %+v", evt)
	}
}

func TestEventHubDropsWhenClientFull(t *testing.T) {
	hub := NewEventHub()
	hub.Start()
	defer hub.Stop()

	c := &sseClient{events: make(chan SSEEvent, 1)}
	hub.register(c)

	hub.Broadcast(SSEEvent{Type: "first"})
	if evt := drainOne(t, c); evt.Type != "first" {
		t.Fatalf("event type = %q", evt.Type)
	}

	// Fill the client buffer directly, then broadcast; the hub must not block.
	c.events <- SSEEvent{Type: "filler"}
	done := make(chan struct{})
	go func() {
		hub.Broadcast(SSEEvent{Type: "dropped"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client")
	}
}
