package main

import (
	"fmt"

	"github.com/ddcm-project/kadnode/dht"
	"github.com/ddcm-project/kadnode/node"
)

// routingHealthChecker reports degraded while the routing table holds no
// peers (no bootstrap peer was given and none has been learned yet) and
// healthy once it holds at least one.
type routingHealthChecker struct {
	routes *dht.RoutingTable
}

func (c routingHealthChecker) Check() *node.SubsystemHealth {
	size := c.routes.Size()
	if size == 0 {
		return &node.SubsystemHealth{
			Status:  node.StatusDegraded,
			Message: "no peers in routing table yet",
		}
	}
	return &node.SubsystemHealth{
		Status:  node.StatusHealthy,
		Message: fmt.Sprintf("%d peers in routing table", size),
	}
}

// storageHealthChecker reports the number of locally held keys. The local
// store has no failure mode of its own, so this always reports healthy.
type storageHealthChecker struct {
	storage *dht.Storage
}

func (c storageHealthChecker) Check() *node.SubsystemHealth {
	return &node.SubsystemHealth{
		Status:  node.StatusHealthy,
		Message: fmt.Sprintf("%d keys stored locally", c.storage.Len()),
	}
}

// connHealthChecker reports unhealthy when the connection manager has no
// listener address (the listener never bound). It does not detect a
// listener that was closed after binding.
type connHealthChecker struct {
	conns *dht.ConnManager
}

func (c connHealthChecker) Check() *node.SubsystemHealth {
	addr := c.conns.Addr()
	if addr == nil {
		return &node.SubsystemHealth{
			Status:  node.StatusUnhealthy,
			Message: "listener not bound",
		}
	}
	return &node.SubsystemHealth{
		Status:  node.StatusHealthy,
		Message: fmt.Sprintf("listening on %s", addr),
	}
}

// newHealthChecker wires a node.HealthChecker to the running service's
// routing table, storage, and connection manager.
func newHealthChecker(svc *dht.Service) *node.HealthChecker {
	hc := node.NewHealthChecker()
	hc.RegisterSubsystem("routing", routingHealthChecker{routes: svc.Routes})
	hc.RegisterSubsystem("storage", storageHealthChecker{storage: svc.Storage})
	hc.RegisterSubsystem("conn", connHealthChecker{conns: svc.Conns})
	return hc
}
