package dht

import (
	"net"
	"testing"
	"time"
)

func TestConnManager_ReceivesOneFramePerConnection(t *testing.T) {
	bus := NewBus(16, 0)
	cm, err := NewConnManager("127.0.0.1:0", bus)
	if err != nil {
		t.Fatalf("NewConnManager: %v", err)
	}
	if err := cm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer cm.Stop()

	sender := Node{ID: testIdentifier(1), Remote: testRemote(1)}
	payload := EncodePing(testIdentifier(2), sender.ID, sender.Remote)

	addr := cm.Addr().(*net.TCPAddr)
	remote := Remote{Host: addr.IP, Port: uint16(addr.Port)}
	if err := cm.Send(remote, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case ev := <-bus.C():
		if ev.Type != EventHandlePing {
			t.Fatalf("got %v, want EventHandlePing", ev.Type)
		}
		if ev.Data.RemoteNode.ID != sender.ID {
			t.Fatalf("got sender %v, want %v", ev.Data.RemoteNode.ID, sender.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the event to be published")
	}
}

func TestConnManager_DecodeErrorDropsConnectionOnly(t *testing.T) {
	bus := NewBus(16, 0)
	cm, err := NewConnManager("127.0.0.1:0", bus)
	if err != nil {
		t.Fatalf("NewConnManager: %v", err)
	}
	if err := cm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer cm.Stop()

	addr := cm.Addr().(*net.TCPAddr)
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Write([]byte{0x01}) // header truncated: decode error
	conn.Close()

	// The listener must still accept a subsequent, well-formed connection.
	sender := Node{ID: testIdentifier(1), Remote: testRemote(1)}
	payload := EncodePing(testIdentifier(2), sender.ID, sender.Remote)
	remote := Remote{Host: addr.IP, Port: uint16(addr.Port)}
	if err := cm.Send(remote, payload); err != nil {
		t.Fatalf("Send after prior decode error: %v", err)
	}

	select {
	case ev := <-bus.C():
		if ev.Type != EventHandlePing {
			t.Fatalf("got %v, want EventHandlePing", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the event after a prior decode error")
	}
}

func TestConnManager_SendToDeadAddrFails(t *testing.T) {
	bus := NewBus(16, 0)
	cm, err := NewConnManager("127.0.0.1:0", bus)
	if err != nil {
		t.Fatalf("NewConnManager: %v", err)
	}
	defer cm.Stop()

	// Nothing listens on this port: dial should fail.
	err = cm.Send(Remote{Host: net.IPv4(127, 0, 0, 1), Port: 1}, []byte("x"))
	if err == nil {
		t.Fatal("expected Send to a closed port to fail")
	}
}

func TestFrameToEvent_ReduceHasNoDispatch(t *testing.T) {
	f := Frame{Header: Header{Command: CmdReduce}}
	if _, ok := frameToEvent(f); ok {
		t.Fatal("REDUCE should have no dispatch event")
	}
}
