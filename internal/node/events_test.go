package node

import (
	"io"
	"log/slog"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventBusEmitOn(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var received Event

	eb.On(EventRelayChanged, func(e Event) {
		received = e
	})

	eb.Emit(Event{Type: EventRelayChanged, Data: RelayChange{Channel: 1, On: true}})

	if received.Type != EventRelayChanged {
		t.Errorf("type = %q, want %q", received.Type, EventRelayChanged)
	}
	if rc, ok := received.Data.(RelayChange); !ok || rc.Channel != 1 || !rc.On {
		t.Errorf("data = %+v", received.Data)
	}
}

func TestEventBusOnDoesNotReceiveOtherTypes(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	called := false

	eb.On(EventRelayChanged, func(e Event) {
		called = true
	})

	eb.Emit(Event{Type: EventReportSent})

	if called {
		t.Error("handler called for wrong event type")
	}
}

func TestEventBusOnAll(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var types []string

	eb.OnAll(func(e Event) {
		types = append(types, e.Type)
	})

	eb.Emit(Event{Type: EventRelayChanged})
	eb.Emit(Event{Type: EventFrameDropped})

	if len(types) != 2 || types[0] != EventRelayChanged || types[1] != EventFrameDropped {
		t.Errorf("types = %v", types)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	count := 0

	unsub := eb.On(EventReportSent, func(e Event) { count++ })
	unsubAll := eb.OnAll(func(e Event) { count++ })

	eb.Emit(Event{Type: EventReportSent})
	unsub()
	unsubAll()
	eb.Emit(Event{Type: EventReportSent})

	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestEventBusPanicRecovery(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	secondCalled := false

	eb.On(EventDiagnostic, func(e Event) {
		panic("boom")
	})
	eb.OnAll(func(e Event) {
		secondCalled = true
	})

	eb.Emit(Event{Type: EventDiagnostic})

	if !secondCalled {
		t.Error("handler after panicking one was not called")
	}
}
