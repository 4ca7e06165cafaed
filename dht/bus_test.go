package dht

import (
	"testing"
	"time"
)

func TestBus_PublishAndConsume(t *testing.T) {
	b := NewBus(4, 0)
	b.Publish(Event{Type: EventServiceStart})

	select {
	case ev := <-b.C():
		if ev.Type != EventServiceStart {
			t.Fatalf("got %v, want EventServiceStart", ev.Type)
		}
	default:
		t.Fatal("expected a published event to be immediately available")
	}
}

func TestBus_DebugTapDisabledByDefault(t *testing.T) {
	b := NewBus(4, 0)
	if b.DebugC() != nil {
		t.Fatal("expected nil debug channel when debugCapacity is 0")
	}
}

func TestBus_DebugTapReceivesCopy(t *testing.T) {
	b := NewBus(4, 4)
	b.Publish(Event{Type: EventHandlePing})

	// Drain the primary queue so the debug tap is the only channel left.
	<-b.C()

	select {
	case ev := <-b.DebugC():
		if ev.Type != EventHandlePing {
			t.Fatalf("got %v, want EventHandlePing", ev.Type)
		}
	default:
		t.Fatal("expected the debug tap to have received a copy")
	}
}

func TestBus_DebugTapDropsOnFull_NeverBlocksPublish(t *testing.T) {
	b := NewBus(8, 1)
	// Fill the one-slot debug tap without draining it, then publish again:
	// Publish must not block even though the tap is full (drop-on-full).
	b.Publish(Event{Type: EventHandlePing})
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: EventHandlePing})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full debug tap")
	}
}
