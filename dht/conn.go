package dht

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ddcm-project/kadnode/log"
	"github.com/ddcm-project/kadnode/metrics"
)

// dialTimeout bounds how long an outbound connection attempt may take
// before it is treated as a transport failure (§7 "Transport error").
const dialTimeout = 5 * time.Second

// ConnManager serves one listening endpoint and issues one short-lived
// outbound connection per outbound RPC (§4.2). Inbound connections are read
// exactly once (one frame per stream) and turned into a HANDLE_* event on
// the bus; outbound sends are fire-and-forget — the eventual response
// arrives as its own independent inbound connection, correlated by echo.
type ConnManager struct {
	listener net.Listener
	bus      *Bus
	logger   *log.Logger

	wg       sync.WaitGroup
	closeOne sync.Once
	closed   chan struct{}
}

// NewConnManager binds a TCP listener at addr. It does not start accepting
// connections until Start is called.
func NewConnManager(addr string, bus *Bus) (*ConnManager, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dht: listen %s: %w", addr, err)
	}
	return &ConnManager{
		listener: l,
		bus:      bus,
		logger:   log.Default().Module("conn"),
		closed:   make(chan struct{}),
	}, nil
}

// Addr returns the bound listen address.
func (cm *ConnManager) Addr() net.Addr {
	return cm.listener.Addr()
}

// Start launches the accept loop in a background goroutine.
func (cm *ConnManager) Start() error {
	cm.wg.Add(1)
	go cm.acceptLoop()
	return nil
}

// Stop closes the listener and waits for the accept loop to exit.
func (cm *ConnManager) Stop() error {
	cm.closeOne.Do(func() { close(cm.closed) })
	err := cm.listener.Close()
	cm.wg.Wait()
	return err
}

func (cm *ConnManager) acceptLoop() {
	defer cm.wg.Done()
	for {
		conn, err := cm.listener.Accept()
		if err != nil {
			select {
			case <-cm.closed:
				return
			default:
				cm.logger.Warn("accept failed", "error", err)
				return
			}
		}
		go cm.handleConn(conn)
	}
}

// handleConn reads exactly one frame and publishes the corresponding
// HANDLE_* event. Decode errors drop the connection without disturbing any
// other state (§7 "Decode error").
func (cm *ConnManager) handleConn(conn net.Conn) {
	defer conn.Close()

	frame, err := ReadFrame(conn)
	if err != nil {
		metrics.CodecDecodeErrors.Inc()
		cm.logger.Debug("decode error, dropping connection", "error", err, "remote", conn.RemoteAddr())
		return
	}
	ev, ok := frameToEvent(frame)
	if !ok {
		cm.logger.Debug("unhandled frame kind", "command", frame.Header.Command)
		return
	}
	cm.bus.Publish(ev)
}

// Send dials remote, writes payload as a single frame, and closes — a
// fire-and-forget send. The response, if any, arrives later as its own
// independent inbound connection (§4.2).
func (cm *ConnManager) Send(remote Remote, payload []byte) error {
	conn, err := net.DialTimeout("tcp", remote.Addr().String(), dialTimeout)
	if err != nil {
		return fmt.Errorf("dht: dial %s: %w", remote, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("dht: write to %s: %w", remote, err)
	}
	return nil
}

// frameToEvent translates a decoded inbound Frame into the Event the
// handler dispatches on (§4.3, §6).
func frameToEvent(f Frame) (Event, bool) {
	remoteNode := Node{ID: f.Header.SenderID, Remote: f.Header.SenderRemote}
	base := EventData{RemoteNode: remoteNode, Echo: f.Header.Echo}

	switch f.Header.Command {
	case CmdPing:
		return Event{Service: SourceTCPService, Type: EventHandlePing, Data: base}, true
	case CmdPong:
		return Event{Service: SourceTCPService, Type: EventHandlePongPing, Data: base}, true
	case CmdStore:
		d := base
		d.StoreKV = f.Store
		return Event{Service: SourceTCPService, Type: EventHandleStore, Data: d}, true
	case CmdPongStore:
		d := base
		d.Key = &f.PongStore.Key
		return Event{Service: SourceTCPService, Type: EventHandlePongStore, Data: d}, true
	case CmdFindNode:
		d := base
		d.Target = f.FindNode
		return Event{Service: SourceTCPService, Type: EventHandleFindNode, Data: d}, true
	case CmdPongFindNode:
		d := base
		d.Target = &f.PongFindNode.Target
		d.Nodes = f.PongFindNode.Nodes
		return Event{Service: SourceTCPService, Type: EventHandlePongFindNode, Data: d}, true
	case CmdFindValue:
		d := base
		d.Key = f.FindValue
		return Event{Service: SourceTCPService, Type: EventHandleFindValue, Data: d}, true
	case CmdPongFindValue:
		d := base
		d.Key = &f.PongFindValue.Key
		d.Value = f.PongFindValue.Value
		return Event{Service: SourceTCPService, Type: EventHandlePongFindValue, Data: d}, true
	default:
		// REDUCE/PONG_REDUCE: codec exists, no dispatch defined (§9).
		return Event{}, false
	}
}
