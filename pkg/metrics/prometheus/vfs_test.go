package prometheus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/marmos91/handlefs/pkg/vfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample returns the value of the series name{labels} from reg, or fails.
func sample(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue series
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("series %s%v not found", name, labels)
	return 0
}

func TestVFSMetrics_Operations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newVFSMetrics(reg)

	m.RecordOperation("lookup", time.Millisecond, nil)
	m.RecordOperation("lookup", time.Millisecond, nil)
	m.RecordOperation("lookup", time.Millisecond, vfs.NewError(vfs.ErrCodeNotFound, "lookup", nil))
	m.RecordOperation("read", time.Millisecond, context.Canceled)
	m.RecordOperation("write", time.Millisecond, fmt.Errorf("wrapped: %w", context.DeadlineExceeded))

	assert.Equal(t, 2.0, sample(t, reg, "handlefs_vfs_operations_total", map[string]string{"op": "lookup", "status": "ok"}))
	assert.Equal(t, 1.0, sample(t, reg, "handlefs_vfs_operations_total",
		map[string]string{"op": "lookup", "status": vfs.ErrCodeNotFound.String()}))
	assert.Equal(t, 1.0, sample(t, reg, "handlefs_vfs_operations_total", map[string]string{"op": "read", "status": "cancelled"}))
	assert.Equal(t, 1.0, sample(t, reg, "handlefs_vfs_operations_total", map[string]string{"op": "write", "status": "cancelled"}))
	assert.Equal(t, 3.0, sample(t, reg, "handlefs_vfs_operation_duration_seconds", map[string]string{"op": "lookup"}))
}

func TestVFSMetrics_BytesAndCaches(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newVFSMetrics(reg)

	m.RecordBytes("read", 4096)
	m.RecordBytes("read", 0)
	m.RecordBytes("read", 100)
	m.RecordCacheLookup("data", true)
	m.RecordCacheLookup("data", true)
	m.RecordCacheLookup("data", false)
	m.RecordCacheEviction("traversal")
	m.SetCacheEntries("data", 7)
	m.SetCacheEntries("data", 5)
	m.RecordUnmappedErrno("EXDEV")

	assert.Equal(t, 4196.0, sample(t, reg, "handlefs_vfs_bytes_total", map[string]string{"op": "read"}))
	assert.Equal(t, 2.0, sample(t, reg, "handlefs_descriptor_cache_lookups_total", map[string]string{"cache": "data", "result": "hit"}))
	assert.Equal(t, 1.0, sample(t, reg, "handlefs_descriptor_cache_lookups_total", map[string]string{"cache": "data", "result": "miss"}))
	assert.Equal(t, 1.0, sample(t, reg, "handlefs_descriptor_cache_evictions_total", map[string]string{"cache": "traversal"}))
	assert.Equal(t, 5.0, sample(t, reg, "handlefs_descriptor_cache_entries", map[string]string{"cache": "data"}))
	assert.Equal(t, 1.0, sample(t, reg, "handlefs_unmapped_errno_total", map[string]string{"errno": "EXDEV"}))
}

func TestNewVFSMetrics_DisabledIsNoop(t *testing.T) {
	// this package never initializes the global registry
	_, ok := NewVFSMetrics().(vfs.NoopMetrics)
	assert.True(t, ok)
}
