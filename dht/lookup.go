package dht

import (
	"errors"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/ddcm-project/kadnode/log"
	"github.com/ddcm-project/kadnode/metrics"
)

// ErrLookupTimeout is returned by a lookup-engine query when no response
// arrives within the configured timeout (§5 "Cancellation & timeouts" —
// the call layer has no intrinsic timeout, so the lookup engine is the
// caller that applies one).
var ErrLookupTimeout = errors.New("dht: lookup query timed out")

// LookupEngine performs iterative node/value lookups and parallel stores
// (§4.6). Grounded on original_source/src/kademlia/Service.py's find_node/
// find_value/store and original_source/ddcm/Service.py's call wiring.
type LookupEngine struct {
	self    Node
	routes  *RoutingTable
	storage *Storage
	calls   *PendingCalls
	conns   *ConnManager
	alpha   int
	ksize   int
	timeout time.Duration
	logger  *log.Logger
}

// NewLookupEngine creates a LookupEngine bound to the given collaborators.
func NewLookupEngine(self Node, routes *RoutingTable, storage *Storage, calls *PendingCalls, conns *ConnManager, alpha, ksize int, timeout time.Duration) *LookupEngine {
	return &LookupEngine{
		self:    self,
		routes:  routes,
		storage: storage,
		calls:   calls,
		conns:   conns,
		alpha:   alpha,
		ksize:   ksize,
		timeout: timeout,
		logger:  log.Default().Module("lookup"),
	}
}

// FindNode performs the iterative search for a node with a specific id
// (§4.6 find_node). It returns the node and true if found, or the zero
// Node and false if the search exhausts its shortlist without locating it.
func (le *LookupEngine) FindNode(target Identifier) (Node, bool) {
	metrics.LookupsFindNode.Inc()
	rounds := 0
	defer func() { metrics.LookupRounds.Observe(float64(rounds)) }()

	shortlist := make(map[Identifier]Node)
	queried := make(map[Identifier]bool)
	var closest *uint256.Int

	for _, n := range le.routes.FindNeighbors(target) {
		if len(shortlist) >= le.alpha {
			break
		}
		if n.ID == target {
			return n, true
		}
		shortlist[n.ID] = n
	}
	if len(shortlist) == 0 {
		return Node{}, false
	}

	for {
		batch := make([]Node, 0, le.alpha)
		for _, n := range shortlist {
			batch = append(batch, n)
			if len(batch) >= le.alpha {
				break
			}
		}
		shortlist = make(map[Identifier]Node)
		if len(batch) == 0 {
			return Node{}, false
		}
		for _, n := range batch {
			queried[n.ID] = true
		}
		rounds++

		type reply struct {
			nodes []Node
			ok    bool
		}
		repliesCh := make(chan reply, len(batch))
		var wg sync.WaitGroup
		for _, n := range batch {
			n := n
			wg.Add(1)
			go func() {
				defer wg.Done()
				nodes, err := le.queryFindNode(n, target)
				if err != nil {
					le.logger.Debug("find_node query failed", "peer", n.ID, "error", err)
					repliesCh <- reply{ok: false}
					return
				}
				repliesCh <- reply{nodes: nodes, ok: true}
			}()
		}
		wg.Wait()
		close(repliesCh)

		var roundMin *uint256.Int
		added := false
		for r := range repliesCh {
			if !r.ok {
				continue
			}
			for _, n := range r.nodes {
				if n.ID == target {
					return n, true
				}
				if queried[n.ID] {
					continue
				}
				d := Distance(n.ID, target)
				if roundMin == nil || d.Cmp(roundMin) < 0 {
					roundMin = d
				}
				if closest == nil || d.Cmp(closest) <= 0 {
					if _, already := shortlist[n.ID]; !already {
						shortlist[n.ID] = n
						added = true
					}
				}
			}
		}
		if roundMin != nil && (closest == nil || roundMin.Cmp(closest) < 0) {
			closest = roundMin
		}
		if !added && len(shortlist) == 0 {
			return Node{}, false
		}
	}
}

// FindValue checks local storage first, then performs the same walk as
// FindNode against an initial batch of alpha neighbors, issuing FIND_VALUE,
// and returns whatever the first successful reply carries — mirroring the
// reference implementation's behavior of terminating on any reply rather
// than specifically a hit (§4.6, §9).
func (le *LookupEngine) FindValue(key Identifier) ([]byte, bool) {
	metrics.LookupsFindValue.Inc()
	if v, ok := le.storage.Get(key); ok {
		return v, true
	}

	seeds := le.routes.FindNeighbors(key)
	if len(seeds) > le.alpha {
		seeds = seeds[:le.alpha]
	}
	if len(seeds) == 0 {
		return nil, false
	}

	type reply struct {
		value []byte
		ok    bool
	}
	ch := make(chan reply, len(seeds))
	for _, n := range seeds {
		n := n
		go func() {
			v, err := le.queryFindValue(n, key)
			if err != nil {
				le.logger.Debug("find_value query failed", "peer", n.ID, "error", err)
				ch <- reply{ok: false}
				return
			}
			ch <- reply{value: v, ok: true}
		}()
	}

	for i := 0; i < len(seeds); i++ {
		r := <-ch
		if !r.ok {
			continue
		}
		if len(r.value) == 0 {
			return nil, false
		}
		return r.value, true
	}
	return nil, false
}

// Store computes the ksize neighbors closest to key from the local routing
// table and fans out a parallel STORE to each, tolerating individual
// failures. If cached is true it also stores locally (§4.6 store).
func (le *LookupEngine) Store(key Identifier, value []byte, cached bool) error {
	metrics.LookupsStore.Inc()
	if cached {
		le.storage.Store(key, value)
	}
	targets := le.routes.FindNeighbors(key)
	if len(targets) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, n := range targets {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := le.queryStore(n, key, value); err != nil {
				le.logger.Debug("store to peer failed", "peer", n.ID, "error", err)
			}
		}()
	}
	wg.Wait()
	return nil
}

func (le *LookupEngine) queryFindNode(n Node, target Identifier) ([]Node, error) {
	call, err := le.calls.Register()
	if err != nil {
		return nil, err
	}
	payload := EncodeFindNode(call.Echo, le.self.ID, le.self.Remote, target)
	if err := le.conns.Send(n.Remote, payload); err != nil {
		le.calls.Cancel(call.Echo)
		return nil, err
	}
	select {
	case ev := <-call.Done():
		return ev.Data.Nodes, nil
	case <-time.After(le.timeout):
		le.calls.Cancel(call.Echo)
		return nil, ErrLookupTimeout
	}
}

func (le *LookupEngine) queryFindValue(n Node, key Identifier) ([]byte, error) {
	call, err := le.calls.Register()
	if err != nil {
		return nil, err
	}
	payload := EncodeFindValue(call.Echo, le.self.ID, le.self.Remote, key)
	if err := le.conns.Send(n.Remote, payload); err != nil {
		le.calls.Cancel(call.Echo)
		return nil, err
	}
	select {
	case ev := <-call.Done():
		return ev.Data.Value, nil
	case <-time.After(le.timeout):
		le.calls.Cancel(call.Echo)
		return nil, ErrLookupTimeout
	}
}

func (le *LookupEngine) queryStore(n Node, key Identifier, value []byte) error {
	call, err := le.calls.Register()
	if err != nil {
		return err
	}
	payload, err := EncodeStore(call.Echo, le.self.ID, le.self.Remote, StorePayload{Key: key, Value: value})
	if err != nil {
		le.calls.Cancel(call.Echo)
		return err
	}
	if err := le.conns.Send(n.Remote, payload); err != nil {
		le.calls.Cancel(call.Echo)
		return err
	}
	select {
	case <-call.Done():
		return nil
	case <-time.After(le.timeout):
		le.calls.Cancel(call.Echo)
		return ErrLookupTimeout
	}
}
