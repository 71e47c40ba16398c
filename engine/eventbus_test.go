package engine

import (
	"testing"
)

func TestEventBusSubscribeAll(t *testing.T) {
	eb := NewEventBus()

	var got []EventType
	eb.Subscribe(func(evt Event) { got = append(got, evt.Type) })

	eb.Emit(Event{Type: EventCommandSent})
	eb.Emit(Event{Type: EventStatusPush})

	if len(got) != 2 || got[0] != EventCommandSent || got[1] != EventStatusPush {
		t.Errorf("delivered = %v", got)
	}
}

func TestEventBusSubscribeTypesFilters(t *testing.T) {
	eb := NewEventBus()

	var got []EventType
	eb.SubscribeTypes(func(evt Event) { got = append(got, evt.Type) },
		EventSessionStarted, EventSessionCompleted)

	eb.Emit(Event{Type: EventSessionStarted})
	eb.Emit(Event{Type: EventCommandSent})
	eb.Emit(Event{Type: EventSessionCompleted})

	if len(got) != 2 || got[0] != EventSessionStarted || got[1] != EventSessionCompleted {
		t.Errorf("delivered = %v", got)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := NewEventBus()

	count := 0
	id := eb.Subscribe(func(Event) { count++ })

	eb.Emit(Event{Type: EventCommandSent})
	eb.Unsubscribe(id)
	eb.Emit(Event{Type: EventCommandSent})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestEventBusStampsTimestamp(t *testing.T) {
	eb := NewEventBus()

	var got Event
	eb.Subscribe(func(evt Event) { got = evt })
	eb.Emit(Event{Type: EventLinkStateChanged})

	if got.Timestamp.IsZero() {
		t.Error("emitted event should carry a timestamp")
	}
}
