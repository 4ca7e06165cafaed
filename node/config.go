// Package node implements the kadnode process lifecycle: configuration
// loading, service registration, and coordinated startup/shutdown of the
// DHT service and its ancillary subsystems.
package node

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ddcm-project/kadnode/dht"
)

// Config holds all configuration for a kadnode process, mirroring the
// dotted TOML keys of §6/§10: node.id, server.host, server.port,
// kbucket.ksize, query.alpha, query.timeout_ms, debug.events,
// debug.logging, metrics.enabled, metrics.addr.
type Config struct {
	Node    NodeSection    `toml:"node"`
	Server  ServerSection  `toml:"server"`
	KBucket KBucketSection `toml:"kbucket"`
	Query   QuerySection   `toml:"query"`
	Debug   DebugSection   `toml:"debug"`
	Metrics MetricsSection `toml:"metrics"`
}

// NodeSection identifies the local node.
type NodeSection struct {
	// ID is a hex-encoded 160-bit identifier. Empty means "generate one
	// randomly at startup" (ResolveID handles this).
	ID string `toml:"id"`
}

// ServerSection configures the TCP listener.
type ServerSection struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// KBucketSection configures routing-table bucket capacity.
type KBucketSection struct {
	Ksize int `toml:"ksize"`
}

// QuerySection configures the lookup engine.
type QuerySection struct {
	Alpha     int `toml:"alpha"`
	TimeoutMs int `toml:"timeout_ms"`
}

// DebugSection configures the optional debug event tap and log verbosity.
type DebugSection struct {
	Events  bool   `toml:"events"`
	Logging string `toml:"logging"`
}

// MetricsSection configures the Prometheus exporter.
type MetricsSection struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// DefaultConfig returns a Config with the typical values named in §10:
// ksize=20, alpha=3, server.port=30300.
func DefaultConfig() Config {
	return Config{
		Server:  ServerSection{Host: "0.0.0.0", Port: 30300},
		KBucket: KBucketSection{Ksize: 20},
		Query:   QuerySection{Alpha: 3, TimeoutMs: 5000},
		Debug:   DebugSection{Events: false, Logging: "info"},
		Metrics: MetricsSection{Enabled: false, Addr: "127.0.0.1:9100"},
	}
}

// Load reads and decodes a TOML configuration file, then applies Validate.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration values for correctness, in the style of the
// teacher's own Config.Validate(): range checks on ports, zero checks on
// ksize/alpha, and a hex-format check on node.id when supplied.
func (c *Config) Validate() error {
	if c.Node.ID != "" {
		if _, err := dht.ParseIdentifier(c.Node.ID); err != nil {
			return fmt.Errorf("config: node.id: %w", err)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server.port: %d", c.Server.Port)
	}
	if c.KBucket.Ksize <= 0 {
		return fmt.Errorf("config: kbucket.ksize must be positive, got %d", c.KBucket.Ksize)
	}
	if c.Query.Alpha <= 0 {
		return fmt.Errorf("config: query.alpha must be positive, got %d", c.Query.Alpha)
	}
	if c.Query.TimeoutMs <= 0 {
		return fmt.Errorf("config: query.timeout_ms must be positive, got %d", c.Query.TimeoutMs)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("config: metrics.addr must be set when metrics.enabled is true")
	}
	switch c.Debug.Logging {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown debug.logging level %q", c.Debug.Logging)
	}
	return nil
}

// ResolveID returns the configured node.id, or a freshly generated random
// identifier if none was set.
func (c *Config) ResolveID() (dht.Identifier, error) {
	if c.Node.ID != "" {
		return dht.ParseIdentifier(c.Node.ID)
	}
	var id dht.Identifier
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("config: generate node id: %w", err)
	}
	return id, nil
}

// ListenAddr returns the server's listen address as host:port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// QueryTimeout returns the per-call timeout as a time.Duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Query.TimeoutMs) * time.Millisecond
}
