package config

import (
	"github.com/marmos91/handlefs/pkg/metrics"
	promMetrics "github.com/marmos91/handlefs/pkg/metrics/prometheus"
	"github.com/marmos91/handlefs/pkg/vfs"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// VFS is the collector handed to the adapter (never nil, no-op if disabled)
	VFS vfs.Metrics
}

// InitializeMetrics creates the metrics components the configuration asks for.
//
// If metrics are enabled, the global Prometheus registry is initialized and
// an HTTP server is created for it. Otherwise the server is nil and VFS is a
// no-op with zero overhead.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{VFS: vfs.NoopMetrics{}}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port}),
		VFS:    promMetrics.NewVFSMetrics(),
	}
}
