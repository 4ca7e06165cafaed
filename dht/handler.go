package dht

import (
	"github.com/ddcm-project/kadnode/log"
)

// Handler is the single-threaded event consumer that drives the rest of the
// node from bus traffic (§4.3, §5). It is the main writer of RoutingTable
// (Service.Bootstrap also adds a seed peer) and the only completer of
// PendingCalls; both types guard their own state with a mutex.
//
// Grounded on original_source/ddcm/Handler.py's handle_events: update the
// routing table from every rpc event before dispatch, branch on event type,
// and complete the matching call future for PONG_* events.
type Handler struct {
	self    Node
	routes  *RoutingTable
	storage *Storage
	calls   *PendingCalls
	conns   *ConnManager
	bus     *Bus
	logger  *log.Logger
}

// NewHandler wires a Handler to its collaborators.
func NewHandler(self Node, routes *RoutingTable, storage *Storage, calls *PendingCalls, conns *ConnManager, bus *Bus) *Handler {
	return &Handler{
		self:    self,
		routes:  routes,
		storage: storage,
		calls:   calls,
		conns:   conns,
		bus:     bus,
		logger:  log.Default().Module("handler"),
	}
}

// Run drains the bus until an EventServiceShutdown arrives or the channel is
// closed. It is meant to run in its own goroutine for the lifetime of the
// service.
func (h *Handler) Run() {
	for ev := range h.bus.C() {
		if ev.Type.isRPCTraffic() {
			h.routes.AddNode(ev.Data.RemoteNode)
		}

		switch ev.Type {
		case EventServiceShutdown:
			return
		case EventHandlePing:
			h.onPing(ev)
		case EventHandleStore:
			h.onStore(ev)
		case EventHandleFindNode:
			h.onFindNode(ev)
		case EventHandleFindValue:
			h.onFindValue(ev)
		default:
			if ev.Type.isRPCResponse() {
				h.calls.Complete(ev.Data.Echo, ev)
			}
		}
	}
}

func (h *Handler) onPing(ev Event) {
	payload := EncodePong(ev.Data.Echo, h.self.ID, h.self.Remote)
	h.send(ev.Data.RemoteNode.Remote, payload, "PONG")
}

func (h *Handler) onStore(ev Event) {
	if ev.Data.StoreKV == nil {
		h.logger.Warn("HANDLE_STORE missing payload")
		return
	}
	h.storage.Store(ev.Data.StoreKV.Key, ev.Data.StoreKV.Value)
	payload := EncodePongStore(ev.Data.Echo, h.self.ID, h.self.Remote, ev.Data.StoreKV.Key)
	h.send(ev.Data.RemoteNode.Remote, payload, "PONG_STORE")
}

func (h *Handler) onFindNode(ev Event) {
	if ev.Data.Target == nil {
		h.logger.Warn("HANDLE_FIND_NODE missing target")
		return
	}
	neighbors := h.routes.FindNeighbors(*ev.Data.Target)
	payload, err := EncodePongFindNode(ev.Data.Echo, h.self.ID, h.self.Remote, *ev.Data.Target, neighbors)
	if err != nil {
		h.logger.Warn("failed to encode PONG_FIND_NODE", "error", err)
		return
	}
	h.send(ev.Data.RemoteNode.Remote, payload, "PONG_FIND_NODE")
}

func (h *Handler) onFindValue(ev Event) {
	if ev.Data.Key == nil {
		h.logger.Warn("HANDLE_FIND_VALUE missing key")
		return
	}
	value, _ := h.storage.Get(*ev.Data.Key)
	payload, err := EncodePongFindValue(ev.Data.Echo, h.self.ID, h.self.Remote, *ev.Data.Key, value)
	if err != nil {
		h.logger.Warn("failed to encode PONG_FIND_VALUE", "error", err)
		return
	}
	h.send(ev.Data.RemoteNode.Remote, payload, "PONG_FIND_VALUE")
}

func (h *Handler) send(to Remote, payload []byte, kind string) {
	if err := h.conns.Send(to, payload); err != nil {
		h.logger.Debug("send failed", "kind", kind, "to", to, "error", err)
	}
}
