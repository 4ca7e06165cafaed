package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter serves metrics at an HTTP endpoint using the real
// github.com/prometheus/client_golang registry and exposition handler,
// bridging this package's own Registry (a dependency-free counter/gauge/
// histogram store) into it via a custom prometheus.Collector.

// PrometheusConfig configures the Prometheus exporter.
type PrometheusConfig struct {
	// Namespace is an optional prefix prepended to all metric names
	// (e.g. "kadnode" produces "kadnode_dht_peers").
	Namespace string
	// EnableRuntime controls whether Go runtime and process metrics
	// (goroutines, memory, GC, file descriptors) are included.
	EnableRuntime bool
	// Path is the HTTP path to serve metrics on (default "/metrics").
	Path string
}

// DefaultPrometheusConfig returns a config with sensible defaults.
func DefaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		Namespace:     "kadnode",
		EnableRuntime: true,
		Path:          "/metrics",
	}
}

// CustomCollector is an interface for registering arbitrary metric producers
// that are read during each scrape.
type CustomCollector interface {
	// Collect returns the current set of metric data points.
	Collect() []MetricLine
}

// MetricLine represents a single metric data point with optional labels.
type MetricLine struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// PrometheusExporter formats and serves metrics over HTTP.
type PrometheusExporter struct {
	mu      sync.Mutex
	config  PrometheusConfig
	promReg *prometheus.Registry
	custom  map[string]*customCollectorAdapter
}

// NewPrometheusExporter creates a new exporter that reads from the given
// Registry and registers it, plus the optional runtime collectors, with a
// fresh prometheus.Registry.
func NewPrometheusExporter(registry *Registry, config PrometheusConfig) *PrometheusExporter {
	if config.Path == "" {
		config.Path = "/metrics"
	}
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(&registryCollector{registry: registry, namespace: config.Namespace})
	if config.EnableRuntime {
		promReg.MustRegister(collectors.NewGoCollector())
		promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return &PrometheusExporter{
		config:  config,
		promReg: promReg,
		custom:  make(map[string]*customCollectorAdapter),
	}
}

// RegisterCollector adds a named custom collector. If a collector with the
// same name exists, it is replaced.
func (pe *PrometheusExporter) RegisterCollector(name string, c CustomCollector) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	if old, ok := pe.custom[name]; ok {
		pe.promReg.Unregister(old)
	}
	adapter := &customCollectorAdapter{c: c, namespace: pe.config.Namespace}
	pe.custom[name] = adapter
	pe.promReg.MustRegister(adapter)
}

// UnregisterCollector removes a previously registered custom collector.
func (pe *PrometheusExporter) UnregisterCollector(name string) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	if old, ok := pe.custom[name]; ok {
		pe.promReg.Unregister(old)
		delete(pe.custom, name)
	}
}

// Handler returns an http.Handler that serves the configured metrics path.
func (pe *PrometheusExporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(pe.config.Path, promhttp.HandlerFor(pe.promReg, promhttp.HandlerOpts{}))
	return mux
}

// promName converts a dot-separated metric name to Prometheus format: dots
// and dashes become underscores, with the namespace prefix prepended.
func promName(namespace, name string) string {
	sanitized := strings.ReplaceAll(name, ".", "_")
	sanitized = strings.ReplaceAll(sanitized, "-", "_")
	if namespace != "" {
		return namespace + "_" + sanitized
	}
	return sanitized
}

// registryCollector adapts this package's Registry to prometheus.Collector,
// reading current values at scrape time rather than mirroring updates.
type registryCollector struct {
	registry  *Registry
	namespace string
}

// Describe intentionally sends nothing: the set of metric names is dynamic
// (Registry creates metrics on first access), so this is an unchecked
// collector per prometheus.Collector's documented contract.
func (rc *registryCollector) Describe(ch chan<- *prometheus.Desc) {}

func (rc *registryCollector) Collect(ch chan<- prometheus.Metric) {
	rc.registry.mu.RLock()
	defer rc.registry.mu.RUnlock()

	for _, name := range sortedKeys(rc.registry.counters) {
		c := rc.registry.counters[name]
		desc := prometheus.NewDesc(promName(rc.namespace, name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(c.Value()))
	}
	for _, name := range sortedKeys(rc.registry.gauges) {
		g := rc.registry.gauges[name]
		desc := prometheus.NewDesc(promName(rc.namespace, name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(g.Value()))
	}
	for _, name := range sortedKeys(rc.registry.histograms) {
		h := rc.registry.histograms[name]
		desc := prometheus.NewDesc(promName(rc.namespace, name), name, nil, nil)
		ch <- prometheus.MustNewConstSummary(desc, uint64(h.Count()), h.Sum(), nil)
	}
}

// customCollectorAdapter adapts a CustomCollector to prometheus.Collector.
type customCollectorAdapter struct {
	c         CustomCollector
	namespace string
}

func (a *customCollectorAdapter) Describe(ch chan<- *prometheus.Desc) {}

func (a *customCollectorAdapter) Collect(ch chan<- prometheus.Metric) {
	for _, line := range a.c.Collect() {
		labelNames := make([]string, 0, len(line.Labels))
		for k := range line.Labels {
			labelNames = append(labelNames, k)
		}
		sort.Strings(labelNames)
		labelValues := make([]string, len(labelNames))
		for i, k := range labelNames {
			labelValues[i] = line.Labels[k]
		}
		desc := prometheus.NewDesc(promName(a.namespace, line.Name), line.Name, labelNames, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, line.Value, labelValues...)
	}
}

// sortedKeys returns a map's keys in sorted order, for deterministic scrape
// output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
