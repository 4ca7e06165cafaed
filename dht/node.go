package dht

import (
	"fmt"
	"net"

	"github.com/holiman/uint256"
)

// Remote is an IPv4 network endpoint: {host, port}. Only IPv4 is supported
// by the wire codec (§4.1). Host may hold either the 4-byte or the 16-byte
// form of an IPv4 address; String, Addr and the wire encoder convert it
// with To4.
type Remote struct {
	Host net.IP
	Port uint16
}

// String renders the remote as "host:port".
func (r Remote) String() string {
	return fmt.Sprintf("%s:%d", r.Host.To4(), r.Port)
}

// Addr returns the net.TCPAddr equivalent of this remote.
func (r Remote) Addr() *net.TCPAddr {
	return &net.TCPAddr{IP: r.Host.To4(), Port: int(r.Port)}
}

// Node is the addressable unit of the overlay: an identifier paired with the
// network endpoint where that identifier can be reached. Two nodes are equal
// iff their ids match (§3).
type Node struct {
	ID     Identifier
	Remote Remote
}

// Equal reports whether two nodes share the same identifier.
func (n Node) Equal(o Node) bool {
	return n.ID == o.ID
}

// Distance returns d(n.ID, target) — the XOR distance from this node's
// identifier to target.
func (n Node) Distance(target Identifier) *uint256.Int {
	return Distance(n.ID, target)
}
