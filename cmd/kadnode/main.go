// Command kadnode runs a single Kademlia DHT node: it loads configuration,
// brings up the DHT service and optional metrics endpoint under a
// node.LifecycleManager, and shuts down cleanly on SIGINT/SIGTERM.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ddcm-project/kadnode/dht"
	"github.com/ddcm-project/kadnode/log"
	"github.com/ddcm-project/kadnode/metrics"
	"github.com/ddcm-project/kadnode/node"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := node.DefaultConfig()

	var configPath, logFormat, bootstrap string
	var showVersion bool

	fs := newCustomFlagSet("kadnode")
	fs.StringVar(&configPath, "config", "", "path to a TOML configuration file (overrides the flags below)")
	fs.StringVar(&logFormat, "log-format", "json", "log output format: json, text, color")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&cfg.Node.ID, "node-id", cfg.Node.ID, "hex-encoded 160-bit node identifier (random if empty)")
	fs.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "listen host")
	fs.IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "listen port")
	fs.IntVar(&cfg.KBucket.Ksize, "ksize", cfg.KBucket.Ksize, "k-bucket capacity")
	fs.IntVar(&cfg.Query.Alpha, "alpha", cfg.Query.Alpha, "lookup concurrency")
	fs.IntVar(&cfg.Query.TimeoutMs, "timeout-ms", cfg.Query.TimeoutMs, "per-call timeout in milliseconds")
	fs.BoolVar(&cfg.Debug.Events, "debug-events", cfg.Debug.Events, "enable the debug event tap")
	fs.StringVar(&cfg.Debug.Logging, "log-level", cfg.Debug.Logging, "log level: debug, info, warn, error")
	fs.BoolVar(&cfg.Metrics.Enabled, "metrics", cfg.Metrics.Enabled, "enable the Prometheus metrics endpoint")
	fs.StringVar(&cfg.Metrics.Addr, "metrics-addr", cfg.Metrics.Addr, "Prometheus metrics listen address")
	fs.StringVar(&bootstrap, "bootstrap", "", "bootstrap peer as id@host:port")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if showVersion {
		fmt.Printf("kadnode %s (commit %s)\n", version, commit)
		return 0
	}

	if configPath != "" {
		loaded, err := node.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	logger := log.NewWithFormat(logFormat, slogLevel(cfg.Debug.Logging))
	log.SetDefault(logger)

	id, err := cfg.ResolveID()
	if err != nil {
		logger.Error("resolve node id", "error", err)
		return 1
	}

	host := net.ParseIP(cfg.Server.Host)
	if host == nil {
		logger.Error("invalid server.host", "host", cfg.Server.Host)
		return 1
	}
	self := dht.Node{ID: id, Remote: dht.Remote{Host: host, Port: uint16(cfg.Server.Port)}}

	debugCapacity := 0
	if cfg.Debug.Events {
		debugCapacity = 256
	}
	svc, err := dht.NewService(self, cfg.ListenAddr(), cfg.KBucket.Ksize, cfg.Query.Alpha, cfg.QueryTimeout(), debugCapacity)
	if err != nil {
		logger.Error("construct dht service", "error", err)
		return 1
	}

	if bootstrap != "" {
		peer, err := parseBootstrap(bootstrap)
		if err != nil {
			logger.Error("invalid bootstrap peer", "value", bootstrap, "error", err)
			return 1
		}
		svc.Bootstrap(peer)
	}

	lifecycle := node.NewLifecycleManager(node.DefaultLifecycleConfig())
	if err := lifecycle.Register(svc, 0); err != nil {
		logger.Error("register dht service", "error", err)
		return 1
	}

	if cfg.Metrics.Enabled {
		exporter := metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())

		sysMetrics := metrics.NewSystemMetrics()
		sysMetrics.SetPeerCountFunc(svc.Routes.Size)
		sysMetrics.SetStoredKeysFunc(func() uint64 { return uint64(svc.Storage.Len()) })
		sysMetrics.SetRoutingFillFunc(func() float64 {
			return float64(svc.Routes.Size()) / float64(cfg.KBucket.Ksize*dht.IDLen*8)
		})
		exporter.RegisterCollector("system", sysMetrics)

		health := newHealthChecker(svc)
		mux := http.NewServeMux()
		mux.Handle("/", exporter.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			report := health.CheckAll()
			data, err := json.Marshal(report)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if report.OverallStatus == node.StatusUnhealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			w.Write(data)
		})

		server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics endpoint enabled", "addr", cfg.Metrics.Addr)
	}

	if errs := lifecycle.StartAll(); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("service failed to start", "error", e)
		}
		return 1
	}
	logger.Info("kadnode started", "id", id, "listen", cfg.ListenAddr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig)

	if errs := lifecycle.StopAll(); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("service failed to stop cleanly", "error", e)
		}
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}

// parseBootstrap parses "id@host:port" into a dht.Node.
func parseBootstrap(s string) (dht.Node, error) {
	idPart, hostPart, ok := strings.Cut(s, "@")
	if !ok {
		return dht.Node{}, fmt.Errorf("expected id@host:port, got %q", s)
	}
	id, err := dht.ParseIdentifier(idPart)
	if err != nil {
		return dht.Node{}, err
	}
	host, portStr, err := net.SplitHostPort(hostPart)
	if err != nil {
		return dht.Node{}, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return dht.Node{}, fmt.Errorf("invalid host %q", host)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return dht.Node{}, fmt.Errorf("invalid port %q", portStr)
	}
	return dht.Node{ID: id, Remote: dht.Remote{Host: ip, Port: uint16(port)}}, nil
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
