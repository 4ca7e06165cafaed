package dht

import (
	"crypto/rand"
	"errors"
	"sync"

	"github.com/ddcm-project/kadnode/metrics"
)

// ErrEchoUnknown is returned when a handler observes a response event whose
// echo does not match any pending call (already completed, or never sent).
var ErrEchoUnknown = errors.New("dht: echo does not match a pending call")

// Call is the caller-visible handle for an outstanding RPC: a one-shot
// completion keyed by its echo token (§3 "Pending-call table", §4.5, §9
// "Futures keyed by echo"). The channel has capacity 1 so the handler's
// completing send never blocks even if the caller never reads the result
// (e.g. because it already timed out).
type Call struct {
	Echo Identifier
	done chan Event
}

// Wait blocks until the matching response event arrives on done.
func (c *Call) Wait() Event {
	return <-c.done
}

// Done exposes the raw channel for use in a select alongside a timeout.
func (c *Call) Done() <-chan Event {
	return c.done
}

// PendingCalls is the echo-keyed registry of outstanding RPCs (§4.5, §5
// "Pending-call registry"). Calls are registered by the call layer and
// completed+removed by the handler (§4.3 step 3).
type PendingCalls struct {
	mu      sync.Mutex
	pending map[Identifier]*Call
}

// NewPendingCalls creates an empty registry.
func NewPendingCalls() *PendingCalls {
	return &PendingCalls{pending: make(map[Identifier]*Call)}
}

// newEcho draws a fresh random 20-byte echo token (§3 "Echo token").
func newEcho() (Identifier, error) {
	var id Identifier
	if _, err := rand.Read(id[:]); err != nil {
		return id, err
	}
	return id, nil
}

// Register allocates a fresh echo and a pending completion for it, in that
// order, so the registration is visible before any reply could possibly
// reference the echo.
func (p *PendingCalls) Register() (*Call, error) {
	echo, err := newEcho()
	if err != nil {
		return nil, err
	}
	c := &Call{Echo: echo, done: make(chan Event, 1)}
	p.mu.Lock()
	p.pending[echo] = c
	n := len(p.pending)
	p.mu.Unlock()
	metrics.RPCPending.Set(int64(n))
	return c, nil
}

// Complete fulfills the pending call registered under echo with ev, removing
// it from the registry. It reports whether a pending call was found; a
// duplicate or unsolicited response (echo already gone) is silently dropped
// per §5 "exactly one response event is delivered... subsequent events with
// the same echo are silently dropped".
func (p *PendingCalls) Complete(echo Identifier, ev Event) bool {
	p.mu.Lock()
	c, ok := p.pending[echo]
	if ok {
		delete(p.pending, echo)
	}
	n := len(p.pending)
	p.mu.Unlock()
	if !ok {
		return false
	}
	metrics.RPCPending.Set(int64(n))
	c.done <- ev
	return true
}

// Cancel removes a pending call without completing it. Callers must invoke
// this on their own timeout path so the registry never grows unbounded
// (§9 "Cancellation & timeout").
func (p *PendingCalls) Cancel(echo Identifier) {
	p.mu.Lock()
	_, existed := p.pending[echo]
	delete(p.pending, echo)
	n := len(p.pending)
	p.mu.Unlock()
	if existed {
		metrics.RPCPending.Set(int64(n))
		metrics.RPCTimeouts.Inc()
	}
}

// Len returns the number of outstanding calls (the count the
// dht.rpc.pending gauge tracks).
func (p *PendingCalls) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
