package dht

import (
	"fmt"
	"time"

	"github.com/ddcm-project/kadnode/log"
)

// Service is the top-level DHT node: it wires the routing table, storage,
// event bus, handler, connection manager, and lookup engine behind the
// public API of §4.6/§10 and satisfies node.Service for lifecycle
// registration. Grounded on original_source/ddcm/Service.py's Service class.
type Service struct {
	self    Node
	Routes  *RoutingTable
	Storage *Storage
	Bus     *Bus
	Calls  *PendingCalls
	Conns  *ConnManager
	Lookup *LookupEngine

	handler *Handler
	logger  *log.Logger
}

// NewService constructs a Service listening at listenAddr, identified by
// self, with the given bucket capacity, lookup concurrency, and per-call
// timeout. It does not start the listener or handler goroutine until Start
// is called.
func NewService(self Node, listenAddr string, ksize, alpha int, timeout time.Duration, debugCapacity int) (*Service, error) {
	bus := NewBus(DefaultBusCapacity, debugCapacity)
	conns, err := NewConnManager(listenAddr, bus)
	if err != nil {
		return nil, err
	}
	routes := NewRoutingTable(self.ID, ksize)
	storage := NewStorage()
	calls := NewPendingCalls()
	lookup := NewLookupEngine(self, routes, storage, calls, conns, alpha, ksize, timeout)
	handler := NewHandler(self, routes, storage, calls, conns, bus)

	return &Service{
		self:    self,
		Routes:  routes,
		Storage: storage,
		Bus:     bus,
		Calls:   calls,
		Conns:   conns,
		Lookup:  lookup,
		handler: handler,
		logger:  log.Default().Module("service"),
	}, nil
}

// Name identifies this service to a node.LifecycleManager.
func (s *Service) Name() string { return "dht" }

// Start launches the connection manager's accept loop and the handler's
// dispatch loop, then publishes EventServiceStart (§6).
func (s *Service) Start() error {
	if err := s.Conns.Start(); err != nil {
		return fmt.Errorf("dht: start connection manager: %w", err)
	}
	go s.handler.Run()
	s.Bus.Publish(Event{Service: SourceService, Type: EventServiceStart, Data: EventData{RemoteNode: s.self}})
	s.logger.Info("dht service started", "id", s.self.ID, "addr", s.Conns.Addr())
	return nil
}

// Stop publishes EventServiceShutdown (stopping the handler loop) and closes
// the listener.
func (s *Service) Stop() error {
	s.Bus.Publish(Event{Service: SourceService, Type: EventServiceShutdown})
	if err := s.Conns.Stop(); err != nil {
		return fmt.Errorf("dht: stop connection manager: %w", err)
	}
	return nil
}

// StoreValue is the public store(key, value, cached) operation (§4.6).
func (s *Service) StoreValue(key Identifier, value []byte, cached bool) error {
	return s.Lookup.Store(key, value, cached)
}

// FindValue is the public find_value(key) operation (§4.6).
func (s *Service) FindValue(key Identifier) ([]byte, bool) {
	return s.Lookup.FindValue(key)
}

// FindNode is the public find_node(targetId) operation (§4.6).
func (s *Service) FindNode(target Identifier) (Node, bool) {
	return s.Lookup.FindNode(target)
}

// Bootstrap seeds the routing table with a known peer, as the first step of
// joining the overlay (the reference implementation relies on an initial
// addNode of a bootstrap contact before any lookup can make progress).
func (s *Service) Bootstrap(peer Node) {
	s.Routes.AddNode(peer)
}
