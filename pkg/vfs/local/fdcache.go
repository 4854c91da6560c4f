//go:build linux

package local

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/marmos91/handlefs/internal/logger"
	"github.com/marmos91/handlefs/pkg/vfs"
	"golang.org/x/sync/singleflight"
)

// descriptor is a reference-counted native file descriptor.
//
// The cache holds one reference for as long as the descriptor is the
// current mapping for its handle. Every borrower holds another. The
// descriptor is closed exactly once, when the last reference is released,
// so eviction never closes a descriptor out from under an in-flight pread.
type descriptor struct {
	fd   int
	refs atomic.Int32
	gw   Gateway
	// onClose runs after the descriptor has been closed
	onClose func()
}

func newDescriptor(gw Gateway, fd int, onClose func()) *descriptor {
	d := &descriptor{fd: fd, gw: gw, onClose: onClose}
	d.refs.Store(1)
	return d
}

// acquire takes a reference. It fails if the descriptor is already closed
// or closing.
func (d *descriptor) acquire() bool {
	for {
		n := d.refs.Load()
		if n <= 0 {
			return false
		}
		if d.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a reference and closes the descriptor at zero.
func (d *descriptor) release() {
	if d.refs.Add(-1) != 0 {
		return
	}
	if err := d.gw.Close(d.fd); err != nil {
		logger.Warn("close fd %d: %v", d.fd, err)
	}
	if d.onClose != nil {
		d.onClose()
	}
}

// openFunc opens a native descriptor for a handle on a cache miss.
type openFunc func(h vfs.Handle) (int, error)

// fdCache is a bounded LRU of open descriptors keyed by handle bytes.
//
// Loads are single-flight per key: concurrent misses for the same handle
// issue one open. Insertion, replacement and removal are serialized by mu
// so that a key never has two live cached descriptors.
type fdCache struct {
	name    string
	gw      Gateway
	open    openFunc
	metrics vfs.Metrics

	mu    sync.Mutex
	lru   *lru.Cache[string, *descriptor]
	group singleflight.Group

	// evicting is set while Remove/Purge run so the callback can tell
	// explicit removal from capacity eviction
	evicting atomic.Bool
	live     atomic.Int64
}

func newFDCache(name string, size int, gw Gateway, open openFunc, metrics vfs.Metrics) (*fdCache, error) {
	c := &fdCache{
		name:    name,
		gw:      gw,
		open:    open,
		metrics: metrics,
	}
	cache, err := lru.NewWithEvict(size, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = cache
	return c, nil
}

func (c *fdCache) onEvict(key string, d *descriptor) {
	if !c.evicting.Load() {
		c.metrics.RecordCacheEviction(c.name)
		logger.Debug("%s cache: evicting fd %d", c.name, d.fd)
	}
	d.release()
	c.metrics.SetCacheEntries(c.name, c.lru.Len())
}

// get returns a borrowed descriptor for h, opening one on a miss. The
// caller must call release when done.
func (c *fdCache) get(h vfs.Handle) (*descriptor, error) {
	key := h.Key()
	for {
		if d, ok := c.lru.Get(key); ok && d.acquire() {
			c.metrics.RecordCacheLookup(c.name, true)
			return d, nil
		}
		c.metrics.RecordCacheLookup(c.name, false)

		v, err, _ := c.group.Do(key, func() (any, error) {
			if d, ok := c.lru.Peek(key); ok {
				return d, nil
			}
			fd, err := c.open(h)
			if err != nil {
				return nil, err
			}
			d := c.newEntry(fd)
			c.insert(key, d)
			return d, nil
		})
		if err != nil {
			return nil, err
		}

		// The descriptor may have been evicted between the load and this
		// acquire. Go round again rather than hand out a closed fd.
		if d := v.(*descriptor); d.acquire() {
			return d, nil
		}
	}
}

// peek returns a borrowed descriptor only if one is already cached.
func (c *fdCache) peek(h vfs.Handle) (*descriptor, bool) {
	d, ok := c.lru.Peek(h.Key())
	if !ok || !d.acquire() {
		return nil, false
	}
	return d, true
}

// put seeds the cache with an fd opened by another operation. Ownership
// of fd passes to the cache.
func (c *fdCache) put(h vfs.Handle, fd int) {
	c.insert(h.Key(), c.newEntry(fd))
}

func (c *fdCache) newEntry(fd int) *descriptor {
	c.live.Add(1)
	return newDescriptor(c.gw, fd, func() { c.live.Add(-1) })
}

func (c *fdCache) insert(key string, d *descriptor) {
	c.mu.Lock()
	prev, replaced := c.lru.Peek(key)
	c.lru.Add(key, d)
	c.mu.Unlock()

	// Add replaces in place without running the eviction callback, so the
	// displaced descriptor is released here.
	if replaced && prev != d {
		prev.release()
	}
	c.metrics.SetCacheEntries(c.name, c.lru.Len())
}

// invalidate evicts and releases the cached descriptor for h, if any.
func (c *fdCache) invalidate(h vfs.Handle) {
	c.mu.Lock()
	c.evicting.Store(true)
	c.lru.Remove(h.Key())
	c.evicting.Store(false)
	c.mu.Unlock()
}

// purge releases every cached descriptor.
func (c *fdCache) purge() {
	c.mu.Lock()
	c.evicting.Store(true)
	c.lru.Purge()
	c.evicting.Store(false)
	c.mu.Unlock()
}

// len returns the number of cached descriptors.
func (c *fdCache) len() int {
	return c.lru.Len()
}

// openDescriptors returns descriptors not yet closed, cached or borrowed.
func (c *fdCache) openDescriptors() int64 {
	return c.live.Load()
}
