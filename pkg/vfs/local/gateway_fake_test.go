//go:build linux

package local

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"
)

// fakeGateway simulates the kernel for cache, codec and enumeration tests.
// Handles are the entry name as payload; the root is "/". Calls it does
// not implement panic through the nil embedded interface.
type fakeGateway struct {
	Gateway

	mu      sync.Mutex
	nextFd  int
	live    map[int]string
	closes  []int
	opens   map[string]int
	calls   map[string]int
	cursor  map[int]int
	nameErr map[string]error
	openErr map[string]error

	// dirents are the batches Getdents returns, in order, for every fresh
	// enumeration descriptor
	dirents [][]byte

	// gate, if set, blocks OpenByHandleAt until closed
	gate chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextFd:  100,
		live:    map[int]string{},
		opens:   map[string]int{},
		calls:   map[string]int{},
		cursor:  map[int]int{},
		nameErr: map[string]error{},
		openErr: map[string]error{},
	}
}

func (g *fakeGateway) alloc(what string) int {
	g.nextFd++
	g.live[g.nextFd] = what
	return g.nextFd
}

func (g *fakeGateway) count(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[call]
}

func (g *fakeGateway) openCount(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opens[key]
}

func (g *fakeGateway) liveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

func (g *fakeGateway) Open(path string, flags int, mode uint32) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["open"]++
	return g.alloc("/"), nil
}

func (g *fakeGateway) Openat(dirfd int, path string, flags int, mode uint32) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["openat"]++
	fd := g.alloc(path)
	g.cursor[fd] = 0
	return fd, nil
}

func (g *fakeGateway) Close(fd int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["close"]++
	if _, ok := g.live[fd]; !ok {
		return unix.EBADF
	}
	delete(g.live, fd)
	g.closes = append(g.closes, fd)
	return nil
}

func (g *fakeGateway) NameToHandleAt(dirfd int, path string, flags int) (unix.FileHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["name_to_handle_at"]++
	if err := g.nameErr[path]; err != nil {
		return unix.FileHandle{}, err
	}
	if path == "" {
		path = g.live[dirfd]
	}
	return unix.NewFileHandle(1, []byte(path)), nil
}

func (g *fakeGateway) OpenByHandleAt(mountfd int, handle unix.FileHandle, flags int) (int, error) {
	key := string(handle.Bytes())

	g.mu.Lock()
	g.calls["open_by_handle_at"]++
	g.opens[key]++
	gate := g.gate
	err := g.openErr[key]
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return -1, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.alloc(key), nil
}

func (g *fakeGateway) Getdents(fd int, buf []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["getdents64"]++
	i := g.cursor[fd]
	if i >= len(g.dirents) {
		return 0, nil
	}
	g.cursor[fd] = i + 1
	return copy(buf, g.dirents[i]), nil
}

// fakeEntry describes one record for direntBatch.
type fakeEntry struct {
	ino  uint64
	off  int64
	typ  uint8
	name string
}

// direntBatch encodes records as linux_dirent64, padded to 8 bytes.
func direntBatch(entries ...fakeEntry) []byte {
	var out []byte
	for _, e := range entries {
		reclen := (direntLayout64.nameAt + len(e.name) + 1 + 7) &^ 7
		rec := make([]byte, reclen)
		binary.NativeEndian.PutUint64(rec[direntLayout64.ino:], e.ino)
		binary.NativeEndian.PutUint64(rec[direntLayout64.off:], uint64(e.off))
		binary.NativeEndian.PutUint16(rec[direntLayout64.reclen:], uint16(reclen))
		rec[direntLayout64.typ] = e.typ
		copy(rec[direntLayout64.nameAt:], e.name)
		out = append(out, rec...)
	}
	return out
}

// Statx reports every entry as a 0644 regular file owned by 1000:1000,
// except the root, which is a directory.
func (g *fakeGateway) Statx(dirfd int, path string, flags int, mask int, buf []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["statx"]++
	if err := g.nameErr[path]; err != nil {
		return err
	}
	if path == "" {
		path = g.live[dirfd]
	}

	raw := rawStatx{
		mask:  unix.STATX_BASIC_STATS,
		mode:  unix.S_IFREG | 0o644,
		nlink: 1,
		uid:   1000,
		gid:   1000,
		size:  uint64(len(path)),
		ino:   uint64(len(path)),
		mtime: [2]int64{1_700_000_000, 0},
		ctime: [2]int64{1_700_000_000, 0},
	}
	if path == "/" {
		raw.mode = unix.S_IFDIR | 0o755
		raw.nlink = 2
	}
	copy(buf, raw.encode(&statxLayoutV1))
	return nil
}

func (g *fakeGateway) Fstatfs(fd int, st *unix.Statfs_t) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["fstatfs"]++
	*st = unix.Statfs_t{
		Bsize:  4096,
		Blocks: 1000,
		Bfree:  400,
		Bavail: 300,
		Files:  5000,
		Ffree:  4000,
	}
	return nil
}
