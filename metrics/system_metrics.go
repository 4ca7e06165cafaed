// system_metrics.go provides collection and export of runtime system metrics
// including goroutine count, memory usage, GC statistics, disk usage, and
// configurable node-level metrics (peer count, stored key count, routing
// table fill ratio).
package metrics

import (
	"encoding/json"
	"runtime"
	"sync"
	"time"
)

// MemStats holds key memory statistics from the Go runtime.
type MemStats struct {
	// HeapAlloc is the number of bytes of allocated heap objects.
	HeapAlloc uint64 `json:"heapAlloc"`

	// TotalAlloc is the cumulative bytes allocated for heap objects.
	TotalAlloc uint64 `json:"totalAlloc"`

	// Sys is the total bytes of memory obtained from the OS.
	Sys uint64 `json:"sys"`

	// NumGC is the number of completed GC cycles.
	NumGC uint64 `json:"numGC"`
}

// DiskStats holds disk usage information.
type DiskStats struct {
	// Total is the total capacity of the disk in bytes.
	Total uint64 `json:"total"`

	// Used is the number of bytes in use on the disk.
	Used uint64 `json:"used"`

	// Free is the number of bytes available on the disk.
	Free uint64 `json:"free"`
}

// PeerCountFunc is a callback that returns the current peer count, typically
// backed by a routing table's Size().
type PeerCountFunc func() int

// StoredKeysFunc is a callback that returns the number of keys currently
// held in local storage.
type StoredKeysFunc func() uint64

// RoutingFillFunc is a callback that returns how full the routing table is,
// as a float64 between 0.0 (empty) and 1.0 (every bucket at capacity).
type RoutingFillFunc func() float64

// DiskUsageFunc is a callback that returns disk usage for a given path.
type DiskUsageFunc func(path string) DiskStats

// SystemMetrics tracks key runtime and node-level metrics for a kadnode
// process.
type SystemMetrics struct {
	mu        sync.RWMutex
	startTime time.Time

	// Cached snapshot from the last Refresh() call.
	memStats    MemStats
	goroutines  int
	lastCollect time.Time

	// Configurable callbacks for node-level metrics.
	peerCountFn   PeerCountFunc
	storedKeysFn  StoredKeysFunc
	routingFillFn RoutingFillFunc
	diskUsageFn   DiskUsageFunc
}

// NewSystemMetrics creates a new SystemMetrics instance. Callbacks default
// to no-op functions returning zero values; use Set*Func methods to override.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		startTime:     time.Now(),
		peerCountFn:   func() int { return 0 },
		storedKeysFn:  func() uint64 { return 0 },
		routingFillFn: func() float64 { return 0.0 },
		diskUsageFn:   func(path string) DiskStats { return DiskStats{} },
	}
}

// SetPeerCountFunc sets the callback for retrieving the current peer count.
func (sm *SystemMetrics) SetPeerCountFunc(fn PeerCountFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if fn != nil {
		sm.peerCountFn = fn
	}
}

// SetStoredKeysFunc sets the callback for retrieving the local key count.
func (sm *SystemMetrics) SetStoredKeysFunc(fn StoredKeysFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if fn != nil {
		sm.storedKeysFn = fn
	}
}

// SetRoutingFillFunc sets the callback for retrieving the routing table fill
// ratio.
func (sm *SystemMetrics) SetRoutingFillFunc(fn RoutingFillFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if fn != nil {
		sm.routingFillFn = fn
	}
}

// SetDiskUsageFunc sets the callback for retrieving disk usage.
func (sm *SystemMetrics) SetDiskUsageFunc(fn DiskUsageFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if fn != nil {
		sm.diskUsageFn = fn
	}
}

// Refresh takes a snapshot of the current system metrics from the Go
// runtime. Call this periodically (e.g. every few seconds) to update
// cached values.
func (sm *SystemMetrics) Refresh() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.memStats = MemStats{
		HeapAlloc:  ms.HeapAlloc,
		TotalAlloc: ms.TotalAlloc,
		Sys:        ms.Sys,
		NumGC:      uint64(ms.NumGC),
	}
	sm.goroutines = runtime.NumGoroutine()
	sm.lastCollect = time.Now()
}

// GoRoutineCount returns the number of goroutines at the last Refresh() call.
// If Refresh() has not been called, reads the current goroutine count directly.
func (sm *SystemMetrics) GoRoutineCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.goroutines == 0 {
		return runtime.NumGoroutine()
	}
	return sm.goroutines
}

// MemoryUsage returns the memory statistics from the last Refresh() call.
// If Refresh() has not been called, performs a live read.
func (sm *SystemMetrics) MemoryUsage() MemStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.lastCollect.IsZero() {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return MemStats{
			HeapAlloc:  ms.HeapAlloc,
			TotalAlloc: ms.TotalAlloc,
			Sys:        ms.Sys,
			NumGC:      uint64(ms.NumGC),
		}
	}
	return sm.memStats
}

// DiskUsage returns disk usage statistics for the given path by invoking
// the configured disk usage callback.
func (sm *SystemMetrics) DiskUsage(path string) DiskStats {
	sm.mu.RLock()
	fn := sm.diskUsageFn
	sm.mu.RUnlock()
	return fn(path)
}

// UptimeSeconds returns the number of seconds since the SystemMetrics
// instance was created.
func (sm *SystemMetrics) UptimeSeconds() float64 {
	return time.Since(sm.startTime).Seconds()
}

// PeerCount returns the current peer count by invoking the callback.
func (sm *SystemMetrics) PeerCount() int {
	sm.mu.RLock()
	fn := sm.peerCountFn
	sm.mu.RUnlock()
	return fn()
}

// StoredKeys returns the number of locally stored keys by invoking the
// callback.
func (sm *SystemMetrics) StoredKeys() uint64 {
	sm.mu.RLock()
	fn := sm.storedKeysFn
	sm.mu.RUnlock()
	return fn()
}

// RoutingFill returns the routing table fill ratio as a float64 between
// 0.0 (empty) and 1.0 (every bucket at capacity).
func (sm *SystemMetrics) RoutingFill() float64 {
	sm.mu.RLock()
	fn := sm.routingFillFn
	sm.mu.RUnlock()

	p := fn()
	// Clamp to [0.0, 1.0].
	if p < 0.0 {
		return 0.0
	}
	if p > 1.0 {
		return 1.0
	}
	return p
}

// metricsSnapshot is the internal type used for JSON serialization of all
// system metrics.
type metricsSnapshot struct {
	Goroutines  int      `json:"goroutines"`
	Memory      MemStats `json:"memory"`
	UptimeSec   float64  `json:"uptimeSeconds"`
	PeerCount   int      `json:"peerCount"`
	StoredKeys  uint64   `json:"storedKeys"`
	RoutingFill float64  `json:"routingFill"`
	CollectedAt string   `json:"collectedAt"`
}

// ExportJSON serializes all current metrics as a JSON object. It performs
// a fresh Refresh() before exporting to ensure up-to-date values.
func (sm *SystemMetrics) ExportJSON() ([]byte, error) {
	sm.Refresh()

	sm.mu.RLock()
	memSnap := sm.memStats
	goroutineSnap := sm.goroutines
	sm.mu.RUnlock()

	snapshot := metricsSnapshot{
		Goroutines:  goroutineSnap,
		Memory:      memSnap,
		UptimeSec:   sm.UptimeSeconds(),
		PeerCount:   sm.PeerCount(),
		StoredKeys:  sm.StoredKeys(),
		RoutingFill: sm.RoutingFill(),
		CollectedAt: time.Now().UTC().Format(time.RFC3339),
	}

	return json.Marshal(snapshot)
}

// Collect implements CustomCollector, exposing the same values as ExportJSON
// as Prometheus gauge lines so a PrometheusExporter can scrape them directly
// alongside the counters in a Registry.
func (sm *SystemMetrics) Collect() []MetricLine {
	sm.mu.RLock()
	goroutineSnap := sm.goroutines
	sm.mu.RUnlock()
	if goroutineSnap == 0 {
		goroutineSnap = runtime.NumGoroutine()
	}

	return []MetricLine{
		{Name: "system.goroutines", Value: float64(goroutineSnap)},
		{Name: "system.uptime_seconds", Value: sm.UptimeSeconds()},
		{Name: "dht.peer_count", Value: float64(sm.PeerCount())},
		{Name: "dht.stored_keys", Value: float64(sm.StoredKeys())},
		{Name: "dht.routing_fill", Value: sm.RoutingFill()},
	}
}

// LastCollectTime returns the time of the last Refresh() call, or zero
// if Refresh() has never been called.
func (sm *SystemMetrics) LastCollectTime() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastCollect
}

// GoVersion returns the Go runtime version string.
func GoVersion() string {
	return runtime.Version()
}

// NumCPU returns the number of logical CPUs available.
func NumCPU() int {
	return runtime.NumCPU()
}

// GOARCH returns the target architecture.
func GOARCH() string {
	return runtime.GOARCH
}

// GOOS returns the target operating system.
func GOOS() string {
	return runtime.GOOS
}
