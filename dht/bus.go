package dht

import "github.com/ddcm-project/kadnode/metrics"

// DefaultBusCapacity is the event bus's default bound (§4.3 suggests 1024).
const DefaultBusCapacity = 1024

// Bus is the bounded FIFO event queue with a single consumer and many
// producers (§4.3). Overflow blocks the producer, which is the spec's
// intended backpressure signal (§5 "Bounded queues").
//
// An optional debug tap receives a best-effort copy of every event when
// enabled; unlike the primary queue, the tap drops events on overflow rather
// than blocking, since it is a diagnostic affordance and must never alter
// production semantics (§9 "Event tap as debugging affordance").
type Bus struct {
	ch      chan Event
	debugCh chan Event
	debugOn bool
}

// NewBus creates a Bus with the given capacity. If debugCapacity is 0 the
// debug tap is disabled entirely (no channel is even allocated).
func NewBus(capacity, debugCapacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	b := &Bus{ch: make(chan Event, capacity)}
	if debugCapacity > 0 {
		b.debugCh = make(chan Event, debugCapacity)
		b.debugOn = true
	}
	return b
}

// Publish enqueues an event, blocking if the bus is full.
func (b *Bus) Publish(e Event) {
	b.ch <- e
	metrics.BusDepth.Set(int64(len(b.ch)))
	if b.debugOn {
		select {
		case b.debugCh <- e:
		default:
			// Drop-on-full: the debug tap never applies backpressure.
			metrics.BusDebugDropped.Inc()
		}
	}
}

// C returns the channel the handler consumes from.
func (b *Bus) C() <-chan Event {
	return b.ch
}

// DebugC returns the debug tap channel, or nil if the tap is disabled.
func (b *Bus) DebugC() <-chan Event {
	if !b.debugOn {
		return nil
	}
	return b.debugCh
}
