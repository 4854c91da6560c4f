//go:build linux

// Package local implements vfs.FileSystem over a local directory tree
// using kernel file handles.
//
// Objects are addressed by handles from name_to_handle_at(2) and reopened
// with open_by_handle_at(2), so the adapter never resolves absolute paths.
// The process needs CAP_DAC_READ_SEARCH for open_by_handle_at.
//
// Two descriptor caches sit in front of open_by_handle_at: one for
// read-write data access, one for directory traversal. Both close
// descriptors on eviction.
package local

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/handlefs/internal/bufpool"
	"github.com/marmos91/handlefs/internal/logger"
	"github.com/marmos91/handlefs/internal/ratelimiter"
	"github.com/marmos91/handlefs/pkg/vfs"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

const (
	dataCacheName      = "data"
	traversalCacheName = "traversal"

	dataOpenFlags      = unix.O_RDWR | unix.O_NOFOLLOW
	traversalOpenFlags = unix.O_RDONLY | unix.O_DIRECTORY | unix.O_NOFOLLOW
	pathOpenFlags      = unix.O_PATH | unix.O_NOFOLLOW
)

var (
	errUseMkdir      = errors.New("directories must be created with mkdir")
	errUseSymlink    = errors.New("symbolic links must be created with symlink")
	errBadNodeType   = errors.New("type cannot be created with mknod")
	errSizeOnSpecial = errors.New("size can only be changed on regular files")
	errClosed        = errors.New("file system closed")
)

// Options configures a local adapter.
type Options struct {
	// Root is the directory to export
	Root string

	// DataCacheSize bounds the read-write descriptor cache
	DataCacheSize int

	// TraversalCacheSize bounds the directory descriptor cache
	TraversalCacheSize int

	// DirentBufferSize is the getdents64 batch size in bytes
	DirentBufferSize int

	// XattrPrefix is prepended to extended attribute names lacking it
	XattrPrefix string

	// MaxConcurrentCopies bounds background CopyRange goroutines
	MaxConcurrentCopies int

	// CopyChunkSize is the length of each copy_file_range call
	CopyChunkSize int64

	// CopyBandwidth limits range copies in bytes per second, 0 = unlimited
	CopyBandwidth uint64

	// Metrics receives observability data, nil disables collection
	Metrics vfs.Metrics

	// Gateway issues native calls, nil uses UnixGateway
	Gateway Gateway
}

func (o *Options) applyDefaults() {
	if o.DataCacheSize <= 0 {
		o.DataCacheSize = 1024
	}
	if o.TraversalCacheSize <= 0 {
		o.TraversalCacheSize = 1024
	}
	if o.DirentBufferSize <= 0 {
		o.DirentBufferSize = 32 << 10
	}
	if o.XattrPrefix == "" {
		o.XattrPrefix = "user."
	}
	if o.MaxConcurrentCopies <= 0 {
		o.MaxConcurrentCopies = 4
	}
	if o.CopyChunkSize <= 0 {
		o.CopyChunkSize = 4 << 20
	}
	if o.Metrics == nil {
		o.Metrics = vfs.NoopMetrics{}
	}
	if o.Gateway == nil {
		o.Gateway = UnixGateway{}
	}
}

// FS is a vfs.FileSystem backed by a local directory.
//
// Safe for concurrent use. No lock is held across unrelated objects; shared
// state is confined to the two descriptor caches.
type FS struct {
	opts    Options
	gw      Gateway
	metrics vfs.Metrics
	buffers *bufpool.Pool

	rootFd int
	root   vfs.Handle

	data      *fdCache
	traversal *fdCache

	copySlots   *semaphore.Weighted
	copyLimiter *ratelimiter.RateLimiter
	copies      sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ vfs.FileSystem = (*FS)(nil)

// New opens the export root and mints its handle.
//
// New fails fast if the filesystem does not support file handles or the
// process may not reopen them.
func New(opts Options) (*FS, error) {
	opts.applyDefaults()
	if opts.Root == "" {
		return nil, fmt.Errorf("local: export root is required")
	}

	fs := &FS{
		opts:        opts,
		gw:          opts.Gateway,
		metrics:     opts.Metrics,
		buffers:     bufpool.New(),
		copySlots:   semaphore.NewWeighted(int64(opts.MaxConcurrentCopies)),
		copyLimiter: ratelimiter.New(opts.CopyBandwidth, uint64(opts.CopyChunkSize)),
	}

	rootFd, err := fs.gw.Open(opts.Root, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("local: open export root %s: %w", opts.Root, translate("open", err))
	}
	fs.rootFd = rootFd

	root, err := encodeHandle(fs.gw, rootFd, "", unix.AT_EMPTY_PATH)
	if err != nil {
		_ = fs.gw.Close(rootFd)
		return nil, fmt.Errorf("local: export %s does not support file handles: %w", opts.Root, err)
	}
	fs.root = root

	probe, err := openHandle(fs.gw, rootFd, root, pathOpenFlags)
	if err != nil {
		_ = fs.gw.Close(rootFd)
		return nil, fmt.Errorf("local: cannot reopen handles under %s (CAP_DAC_READ_SEARCH required): %w", opts.Root, err)
	}
	_ = fs.gw.Close(probe)

	fs.data, err = newFDCache(dataCacheName, opts.DataCacheSize, fs.gw, fs.opener(dataOpenFlags), fs.metrics)
	if err != nil {
		_ = fs.gw.Close(rootFd)
		return nil, err
	}
	fs.traversal, err = newFDCache(traversalCacheName, opts.TraversalCacheSize, fs.gw, fs.opener(traversalOpenFlags), fs.metrics)
	if err != nil {
		_ = fs.gw.Close(rootFd)
		return nil, err
	}

	logger.Info("Exporting %s (root handle %d bytes, data cache %d, traversal cache %d)",
		opts.Root, len(root), opts.DataCacheSize, opts.TraversalCacheSize)
	return fs, nil
}

func (fs *FS) opener(flags int) openFunc {
	return func(h vfs.Handle) (int, error) {
		return openHandle(fs.gw, fs.rootFd, h, flags)
	}
}

// RootHandle returns the handle of the export root.
func (fs *FS) RootHandle() vfs.Handle {
	return fs.root.Clone()
}

// Close waits for background copies, then closes every cached descriptor
// and the root descriptor. Calling Close more than once is safe; calling
// other methods concurrently with or after Close is not.
func (fs *FS) Close() error {
	fs.closeOnce.Do(func() {
		fs.closed.Store(true)
		fs.copies.Wait()
		fs.data.purge()
		fs.traversal.purge()
		if err := fs.gw.Close(fs.rootFd); err != nil {
			fs.closeErr = translate("close", err)
		}
		logger.Debug("Closed export %s", fs.opts.Root)
	})
	return fs.closeErr
}

// track records an operation outcome. Use as
//
//	defer fs.track("lookup", time.Now(), &err)
func (fs *FS) track(op string, start time.Time, errp *error) {
	err := *errp
	fs.metrics.RecordOperation(op, time.Since(start), err)
	if name := unmappedErrno(err); name != "" {
		fs.metrics.RecordUnmappedErrno(name)
	}
}

// withPathFd runs fn with a descriptor usable for fstat-style calls on h.
// A resident cached descriptor is preferred; otherwise an O_PATH
// descriptor is opened for the duration of the call.
func (fs *FS) withPathFd(h vfs.Handle, fn func(fd int) error) error {
	if d, ok := fs.traversal.peek(h); ok {
		defer d.release()
		return fn(d.fd)
	}
	if d, ok := fs.data.peek(h); ok {
		defer d.release()
		return fn(d.fd)
	}

	fd, err := openHandle(fs.gw, fs.rootFd, h, pathOpenFlags)
	if err != nil {
		return err
	}
	defer fs.closeFd(fd)
	return fn(fd)
}

func (fs *FS) closeFd(fd int) {
	if err := fs.gw.Close(fd); err != nil {
		logger.Warn("close fd %d: %v", fd, err)
	}
}

// checkName rejects names that would escape the directory they are
// resolved in.
func checkName(op, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return vfs.NewError(vfs.ErrCodeInvalidArgument, op, fmt.Errorf("invalid name %q", name))
	}
	return nil
}

func procFdPath(fd int) string {
	return fmt.Sprintf("/proc/self/fd/%d", fd)
}
