//go:build linux

package local

import (
	"encoding/binary"
	"fmt"

	"github.com/marmos91/handlefs/pkg/vfs"
	"golang.org/x/sys/unix"
)

// statxLayout declares the byte offset of every struct statx field the
// adapter reads. Supporting a different kernel ABI means adding a table,
// not touching the decoder.
type statxLayout struct {
	name string
	size int

	mask      int // u32
	blksize   int // u32
	nlink     int // u32
	uid       int // u32
	gid       int // u32
	mode      int // u16
	ino       int // u64
	fileSize  int // u64
	blocks    int // u64
	atime     int // statx_timestamp
	btime     int // statx_timestamp
	ctime     int // statx_timestamp
	mtime     int // statx_timestamp
	rdevMajor int // u32
	rdevMinor int // u32
	devMajor  int // u32
	devMinor  int // u32
	tsSecOff  int // i64 within statx_timestamp
	tsNsecOff int // u32 within statx_timestamp
}

// statxLayoutV1 is struct statx from include/uapi/linux/stat.h as
// introduced in Linux 4.11. Later kernels only append fields.
var statxLayoutV1 = statxLayout{
	name:      "statx-v1",
	size:      256,
	mask:      0,
	blksize:   4,
	nlink:     16,
	uid:       20,
	gid:       24,
	mode:      28,
	ino:       32,
	fileSize:  40,
	blocks:    48,
	atime:     64,
	btime:     80,
	ctime:     96,
	mtime:     112,
	rdevMajor: 128,
	rdevMinor: 132,
	devMajor:  136,
	devMinor:  140,
	tsSecOff:  0,
	tsNsecOff: 8,
}

// statxMask is what the adapter asks for on every getattr.
const statxMask = unix.STATX_BASIC_STATS | unix.STATX_BTIME

func (l *statxLayout) u16(buf []byte, off int) uint16 {
	return binary.NativeEndian.Uint16(buf[off:])
}

func (l *statxLayout) u32(buf []byte, off int) uint32 {
	return binary.NativeEndian.Uint32(buf[off:])
}

func (l *statxLayout) u64(buf []byte, off int) uint64 {
	return binary.NativeEndian.Uint64(buf[off:])
}

// millis reads a statx_timestamp and converts it to milliseconds since
// the epoch.
func (l *statxLayout) millis(buf []byte, off int) int64 {
	sec := int64(l.u64(buf, off+l.tsSecOff))
	nsec := int64(l.u32(buf, off+l.tsNsecOff))
	return sec*1000 + nsec/1_000_000
}

// decode interprets a raw statx record.
func (l *statxLayout) decode(buf []byte) (*vfs.Attr, error) {
	if len(buf) < l.size {
		return nil, fmt.Errorf("%s: record is %d bytes, need %d", l.name, len(buf), l.size)
	}

	mask := l.u32(buf, l.mask)
	mode := uint32(l.u16(buf, l.mode))

	attr := &vfs.Attr{
		Type:      typeFromMode(mode),
		Mode:      mode & 0o7777,
		Nlink:     l.u32(buf, l.nlink),
		UID:       l.u32(buf, l.uid),
		GID:       l.u32(buf, l.gid),
		Size:      l.u64(buf, l.fileSize),
		Blocks:    l.u64(buf, l.blocks),
		BlockSize: l.u32(buf, l.blksize),
		Ino:       l.u64(buf, l.ino),
		Dev:       unix.Mkdev(l.u32(buf, l.devMajor), l.u32(buf, l.devMinor)),
		Rdev:      unix.Mkdev(l.u32(buf, l.rdevMajor), l.u32(buf, l.rdevMinor)),
		Atime:     l.millis(buf, l.atime),
		Mtime:     l.millis(buf, l.mtime),
		Ctime:     l.millis(buf, l.ctime),
	}
	if mask&unix.STATX_BTIME != 0 {
		attr.Btime = l.millis(buf, l.btime)
	}
	attr.Generation = max(attr.Mtime, attr.Ctime)

	return attr, nil
}

// typeFromMode maps the S_IFMT bits of st_mode.
func typeFromMode(mode uint32) vfs.FileType {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return vfs.TypeRegular
	case unix.S_IFDIR:
		return vfs.TypeDirectory
	case unix.S_IFLNK:
		return vfs.TypeSymlink
	case unix.S_IFBLK:
		return vfs.TypeBlockDevice
	case unix.S_IFCHR:
		return vfs.TypeCharDevice
	case unix.S_IFSOCK:
		return vfs.TypeSocket
	case unix.S_IFIFO:
		return vfs.TypeFIFO
	default:
		return vfs.TypeUnknown
	}
}

// modeFromType returns the S_IFMT bits for mknod.
func modeFromType(t vfs.FileType) (uint32, bool) {
	switch t {
	case vfs.TypeRegular:
		return unix.S_IFREG, true
	case vfs.TypeBlockDevice:
		return unix.S_IFBLK, true
	case vfs.TypeCharDevice:
		return unix.S_IFCHR, true
	case vfs.TypeSocket:
		return unix.S_IFSOCK, true
	case vfs.TypeFIFO:
		return unix.S_IFIFO, true
	default:
		return 0, false
	}
}

// statAt runs statx and decodes the result using a pooled buffer.
func (fs *FS) statAt(dirfd int, name string, flags int) (*vfs.Attr, error) {
	buf := fs.buffers.Get(statxLayoutV1.size)
	defer fs.buffers.Put(buf)

	if err := fs.gw.Statx(dirfd, name, flags|unix.AT_SYMLINK_NOFOLLOW, statxMask, buf); err != nil {
		return nil, translate("statx", err)
	}
	attr, err := statxLayoutV1.decode(buf)
	if err != nil {
		return nil, vfs.NewError(vfs.ErrCodeServerFault, "statx", err)
	}
	return attr, nil
}
