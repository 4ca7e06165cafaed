package dht

import (
	"sort"
	"sync"

	"github.com/ddcm-project/kadnode/metrics"
)

// numBuckets is the number of k-buckets in a full 160-bit routing table —
// one per possible common-prefix length (§3, §4.4).
const numBuckets = IDLen * 8

// RoutingTable is the collection of k-buckets plus the local node's own id
// (§3, §4.4). Mutation comes from the handler and from Service.Bootstrap,
// both through AddNode, which takes the write lock; readers such as
// FindNeighbors take the read lock.
type RoutingTable struct {
	mu      sync.RWMutex
	self    Identifier
	ksize   int
	buckets [numBuckets]*kBucket
}

// NewRoutingTable creates an empty routing table for the given local id and
// bucket capacity.
func NewRoutingTable(self Identifier, ksize int) *RoutingTable {
	rt := &RoutingTable{self: self, ksize: ksize}
	for i := range rt.buckets {
		rt.buckets[i] = newKBucket(ksize)
	}
	return rt
}

// bucketIndex returns the bucket that n.ID belongs to relative to self.
func (rt *RoutingTable) bucketIndex(id Identifier) int {
	idx := CommonPrefixLen(rt.self, id)
	if idx >= numBuckets {
		idx = numBuckets - 1
	}
	return idx
}

// AddNode implements §4.4's addNode. Self-insertion is filtered (§9
// "Same-id self-insert" — the source does not filter this; this
// implementation does, to preserve the "own id not in any bucket"
// invariant).
func (rt *RoutingTable) AddNode(n Node) {
	if n.ID == rt.self {
		return
	}
	rt.mu.Lock()
	rt.buckets[rt.bucketIndex(n.ID)].add(n)
	size := rt.sizeLocked()
	rt.mu.Unlock()
	metrics.Peers.Set(int64(size))
}

// RemoveNode removes a node from its bucket, if present.
func (rt *RoutingTable) RemoveNode(id Identifier) bool {
	if id == rt.self {
		return false
	}
	rt.mu.Lock()
	removed := rt.buckets[rt.bucketIndex(id)].remove(id)
	size := rt.sizeLocked()
	rt.mu.Unlock()
	if removed {
		metrics.Peers.Set(int64(size))
	}
	return removed
}

// FindNeighbors returns the ksize nodes in the table closest to target by
// XOR distance, ascending, ties (impossible given id uniqueness) broken by
// id lexicographic order (§4.4).
func (rt *RoutingTable) FindNeighbors(target Identifier) []Node {
	rt.mu.RLock()
	all := make([]Node, 0, rt.ksize*4)
	for _, b := range rt.buckets {
		all = append(all, b.nodes()...)
	}
	rt.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		di := Distance(all[i].ID, target)
		dj := Distance(all[j].ID, target)
		if c := di.Cmp(dj); c != 0 {
			return c < 0
		}
		return string(all[i].ID[:]) < string(all[j].ID[:])
	})

	if len(all) > rt.ksize {
		all = all[:rt.ksize]
	}
	return all
}

// Self returns the local node's identifier.
func (rt *RoutingTable) Self() Identifier {
	return rt.self
}

// Size returns the total number of nodes currently held across all buckets.
func (rt *RoutingTable) Size() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.sizeLocked()
}

// sizeLocked returns the total node count. Caller must hold rt.mu.
func (rt *RoutingTable) sizeLocked() int {
	n := 0
	for _, b := range rt.buckets {
		n += b.len()
	}
	return n
}

// BucketLen returns the number of entries in the bucket covering id's
// distance from self — exposed for tests of the bucket-capacity invariant.
func (rt *RoutingTable) BucketLen(id Identifier) int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.buckets[rt.bucketIndex(id)].len()
}
