package metrics

// Pre-defined metrics for the kadnode DHT node. All metrics live in
// DefaultRegistry so they are globally accessible without passing a
// registry around (§13).

var (
	// ---- Routing table metrics ----

	// Peers tracks the current number of nodes held across all k-buckets.
	Peers = DefaultRegistry.Gauge("dht.peers")

	// ---- Lookup metrics ----

	// LookupsFindNode counts find_node calls issued by the lookup engine.
	LookupsFindNode = DefaultRegistry.Counter("dht.lookups.find_node")
	// LookupsFindValue counts find_value calls issued by the lookup engine.
	LookupsFindValue = DefaultRegistry.Counter("dht.lookups.find_value")
	// LookupsStore counts store calls issued by the lookup engine.
	LookupsStore = DefaultRegistry.Counter("dht.lookups.store")
	// LookupRounds records the number of iterative rounds a find_node/
	// find_value call took to terminate.
	LookupRounds = DefaultRegistry.Histogram("dht.lookup.rounds")

	// ---- Call layer metrics ----

	// RPCPending tracks the number of outstanding entries in the echo
	// registry.
	RPCPending = DefaultRegistry.Gauge("dht.rpc.pending")
	// RPCTimeouts counts pending calls that were cancelled by a caller
	// timeout rather than completed by a reply.
	RPCTimeouts = DefaultRegistry.Counter("dht.rpc.timeouts")

	// ---- Storage metrics ----

	// StorageKeys tracks the number of keys held in the local key-value
	// store.
	StorageKeys = DefaultRegistry.Gauge("dht.storage.keys")

	// ---- Codec metrics ----

	// CodecDecodeErrors counts frames dropped for failing to decode.
	CodecDecodeErrors = DefaultRegistry.Counter("dht.codec.decode_errors")

	// ---- Event bus metrics ----

	// BusDepth tracks the current number of queued events on the bus.
	BusDepth = DefaultRegistry.Gauge("dht.bus.depth")
	// BusDebugDropped counts events dropped from the non-blocking debug tap
	// because it was full.
	BusDebugDropped = DefaultRegistry.Counter("dht.bus.debug_dropped")
)
