// Package prometheus provides Prometheus-backed implementations of the
// consumer-side metrics interfaces.
package prometheus

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/handlefs/pkg/metrics"
	"github.com/marmos91/handlefs/pkg/vfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// vfsMetrics is the Prometheus implementation of vfs.Metrics.
type vfsMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTotal        *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	cacheEvictions    *prometheus.CounterVec
	cacheEntries      *prometheus.GaugeVec
	unmappedErrno     *prometheus.CounterVec
}

// NewVFSMetrics creates a Prometheus-backed vfs.Metrics registered on the
// global registry.
//
// Returns vfs.NoopMetrics if metrics are not enabled (InitRegistry not called).
func NewVFSMetrics() vfs.Metrics {
	if !metrics.IsEnabled() {
		return vfs.NoopMetrics{}
	}
	return newVFSMetrics(metrics.GetRegistry())
}

func newVFSMetrics(reg prometheus.Registerer) *vfsMetrics {
	return &vfsMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "handlefs_vfs_operations_total",
				Help: "Total number of filesystem operations by operation and status",
			},
			[]string{"op", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "handlefs_vfs_operation_duration_seconds",
				Help: "Duration of filesystem operations in seconds",
				Buckets: []float64{
					0.00001, // 10µs
					0.0001,  // 100µs
					0.001,   // 1ms
					0.01,    // 10ms
					0.1,     // 100ms
					1,       // 1s
					10,      // 10s
				},
			},
			[]string{"op"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "handlefs_vfs_bytes_total",
				Help: "Total bytes moved by read, write and copy operations",
			},
			[]string{"op"},
		),
		cacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "handlefs_descriptor_cache_lookups_total",
				Help: "Descriptor cache lookups by cache and result (hit or miss)",
			},
			[]string{"cache", "result"},
		),
		cacheEvictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "handlefs_descriptor_cache_evictions_total",
				Help: "Descriptors closed because the cache reached capacity",
			},
			[]string{"cache"},
		),
		cacheEntries: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "handlefs_descriptor_cache_entries",
				Help: "Current number of cached descriptors",
			},
			[]string{"cache"},
		),
		unmappedErrno: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "handlefs_unmapped_errno_total",
				Help: "Native errors with no domain mapping, reported as server faults",
			},
			[]string{"errno"},
		),
	}
}

func (m *vfsMetrics) RecordOperation(op string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(op, status(err)).Inc()
	m.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *vfsMetrics) RecordBytes(op string, n int64) {
	if n > 0 {
		m.bytesTotal.WithLabelValues(op).Add(float64(n))
	}
}

func (m *vfsMetrics) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *vfsMetrics) RecordCacheEviction(cache string) {
	m.cacheEvictions.WithLabelValues(cache).Inc()
}

func (m *vfsMetrics) SetCacheEntries(cache string, n int) {
	m.cacheEntries.WithLabelValues(cache).Set(float64(n))
}

func (m *vfsMetrics) RecordUnmappedErrno(errno string) {
	m.unmappedErrno.WithLabelValues(errno).Inc()
}

// status turns an operation outcome into a low-cardinality label: "ok",
// "cancelled", or the domain error code name.
func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return vfs.CodeOf(err).String()
	}
}
