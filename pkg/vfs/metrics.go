package vfs

import "time"

// Metrics collects adapter observability data.
//
// The interface lives here so adapters do not depend on Prometheus.
// Implementations must be safe for concurrent use. A nil Metrics passed to
// an adapter is replaced by NoopMetrics.
type Metrics interface {
	// RecordOperation records one completed operation and its outcome.
	RecordOperation(op string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved by read, write or copy.
	RecordBytes(op string, n int64)

	// RecordCacheLookup records a descriptor cache hit or miss.
	RecordCacheLookup(cache string, hit bool)

	// RecordCacheEviction records a descriptor closed because of LRU pressure.
	RecordCacheEviction(cache string)

	// SetCacheEntries reports the number of resident descriptors.
	SetCacheEntries(cache string, n int)

	// RecordUnmappedErrno records a native error that fell through to
	// ErrCodeServerFault.
	RecordUnmappedErrno(errno string)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordOperation(string, time.Duration, error) {}
func (NoopMetrics) RecordBytes(string, int64)                    {}
func (NoopMetrics) RecordCacheLookup(string, bool)               {}
func (NoopMetrics) RecordCacheEviction(string)                   {}
func (NoopMetrics) SetCacheEntries(string, int)                  {}
func (NoopMetrics) RecordUnmappedErrno(string)                   {}
