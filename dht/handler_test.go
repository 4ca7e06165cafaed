package dht

import (
	"net"
	"testing"
	"time"
)

func newTestHandlerDeps(t *testing.T) (self Node, routes *RoutingTable, storage *Storage, calls *PendingCalls, conns *ConnManager, bus *Bus) {
	t.Helper()
	self = Node{ID: testIdentifier(0), Remote: testRemote(1)}
	routes = NewRoutingTable(self.ID, 20)
	storage = NewStorage()
	calls = NewPendingCalls()
	bus = NewBus(16, 0)
	var err error
	conns, err = NewConnManager("127.0.0.1:0", bus)
	if err != nil {
		t.Fatalf("NewConnManager: %v", err)
	}
	t.Cleanup(func() { conns.Stop() })
	return
}

func TestHandler_PongOnPing(t *testing.T) {
	self, routes, storage, calls, conns, bus := newTestHandlerDeps(t)

	// A fake peer listens for the PONG the handler will send back.
	peerListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer peerListener.Close()

	gotPong := make(chan Frame, 1)
	go func() {
		c, err := peerListener.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		f, err := ReadFrame(c)
		if err == nil {
			gotPong <- f
		}
	}()

	h := NewHandler(self, routes, storage, calls, conns, bus)
	go h.Run()
	defer bus.Publish(Event{Type: EventServiceShutdown})

	peerAddr := peerListener.Addr().(*net.TCPAddr)
	peer := Node{ID: testIdentifier(1), Remote: Remote{Host: peerAddr.IP, Port: uint16(peerAddr.Port)}}
	echo := testIdentifier(2)
	bus.Publish(Event{Type: EventHandlePing, Data: EventData{RemoteNode: peer, Echo: echo}})

	select {
	case f := <-gotPong:
		if f.Header.Command != CmdPong {
			t.Fatalf("got command %v, want PONG", f.Header.Command)
		}
		if f.Header.Echo != echo {
			t.Fatalf("got echo %v, want %v", f.Header.Echo, echo)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PONG")
	}

	if routes.Size() != 1 {
		t.Fatalf("expected handler to add the peer to the routing table, got size %d", routes.Size())
	}
}

func TestHandler_StoreWritesLocally(t *testing.T) {
	self, routes, storage, calls, conns, bus := newTestHandlerDeps(t)
	h := NewHandler(self, routes, storage, calls, conns, bus)
	go h.Run()
	defer bus.Publish(Event{Type: EventServiceShutdown})

	key, value := testIdentifier(5), []byte("committed")
	peer := Node{ID: testIdentifier(6), Remote: testRemote(9999)} // unreachable: send will fail, harmlessly
	bus.Publish(Event{Type: EventHandleStore, Data: EventData{
		RemoteNode: peer,
		StoreKV:    &StorePayload{Key: key, Value: value},
	}})

	deadline := time.After(2 * time.Second)
	for {
		if v, ok := storage.Get(key); ok {
			if string(v) != string(value) {
				t.Fatalf("got %q, want %q", v, value)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for storage to be written")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHandler_CompletesResponseEvents(t *testing.T) {
	self, routes, storage, calls, conns, bus := newTestHandlerDeps(t)
	h := NewHandler(self, routes, storage, calls, conns, bus)
	go h.Run()
	defer bus.Publish(Event{Type: EventServiceShutdown})

	call, err := calls.Register()
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	peer := Node{ID: testIdentifier(7), Remote: testRemote(1)}
	bus.Publish(Event{Type: EventHandlePongPing, Data: EventData{RemoteNode: peer, Echo: call.Echo}})

	select {
	case ev := <-call.Done():
		if ev.Type != EventHandlePongPing {
			t.Fatalf("got %v, want EventHandlePongPing", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the call to complete")
	}
}

func TestHandler_ShutdownStopsLoop(t *testing.T) {
	self, routes, storage, calls, conns, bus := newTestHandlerDeps(t)
	h := NewHandler(self, routes, storage, calls, conns, bus)

	stopped := make(chan struct{})
	go func() {
		h.Run()
		close(stopped)
	}()
	bus.Publish(Event{Type: EventServiceShutdown})

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not stop after EventServiceShutdown")
	}
}
