// Package bufpool provides reusable scratch buffers for native calls.
//
// Buffers are checked out with Get and must be returned with Put. The pool
// keeps three size classes over sync.Pool; requests above the largest class
// are allocated directly and never pooled.
//
// Size classes:
//   - 4KB: statx records, readlink targets
//   - 64KB: directory entry batches, extended attribute values
//   - 1MB: bulk data transfer
package bufpool

import (
	"sync"
	"sync/atomic"
)

const (
	SmallSize  = 4 << 10
	MediumSize = 64 << 10
	LargeSize  = 1 << 20
)

// Pool manages byte slices organized by size class.
//
// Safe for concurrent use.
type Pool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool

	gets     atomic.Int64
	puts     atomic.Int64
	oversize atomic.Int64
}

// Stats is a snapshot of pool accounting.
type Stats struct {
	// Gets counts buffers checked out
	Gets int64

	// Puts counts buffers returned to a size class
	Puts int64

	// Oversize counts requests larger than LargeSize
	Oversize int64
}

// Outstanding returns the number of pooled buffers checked out and not yet
// returned.
func (s Stats) Outstanding() int64 {
	return s.Gets - s.Oversize - s.Puts
}

func newClass(size int) sync.Pool {
	return sync.Pool{
		New: func() any {
			buf := make([]byte, size)
			return &buf
		},
	}
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		small:  newClass(SmallSize),
		medium: newClass(MediumSize),
		large:  newClass(LargeSize),
	}
}

// Get returns a byte slice of length size.
//
// The backing array may be larger than requested. The caller must call Put
// when finished and must not use the slice afterwards.
func (p *Pool) Get(size int) []byte {
	p.gets.Add(1)

	var bufPtr *[]byte
	switch {
	case size <= SmallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= MediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= LargeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		p.oversize.Add(1)
		return make([]byte, size)
	}

	buf := *bufPtr
	return buf[:size]
}

// Put returns a buffer obtained from Get.
//
// Buffers whose capacity does not match a size class are dropped.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}

	fullBuf := buf[:cap(buf)]
	switch cap(buf) {
	case SmallSize:
		p.small.Put(&fullBuf)
	case MediumSize:
		p.medium.Put(&fullBuf)
	case LargeSize:
		p.large.Put(&fullBuf)
	default:
		return
	}
	p.puts.Add(1)
}

// Stats returns current accounting counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Gets:     p.gets.Load(),
		Puts:     p.puts.Load(),
		Oversize: p.oversize.Load(),
	}
}
