//go:build linux

package local

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/handlefs/pkg/vfs"
	"golang.org/x/sys/unix"
)

// direntLayout declares the offsets of a variable-length directory record.
type direntLayout struct {
	name string

	ino    int // u64
	off    int // i64, resumption offset
	reclen int // u16, total record length including padding
	typ    int // u8
	nameAt int // NUL-terminated name, padded to reclen
}

// direntLayout64 is struct linux_dirent64 as returned by getdents64(2).
var direntLayout64 = direntLayout{
	name:   "linux_dirent64",
	ino:    0,
	off:    8,
	reclen: 16,
	typ:    18,
	nameAt: 19,
}

// direntRecord is one decoded directory record.
type direntRecord struct {
	Ino  uint64
	Off  int64
	Type uint8
	Name string
}

// parse walks the records in buf, calling fn for each until fn returns
// false. A record whose length is shorter than its header or runs past the
// end of buf is reported as an error.
func (l *direntLayout) parse(buf []byte, fn func(rec direntRecord) bool) error {
	for pos := 0; pos < len(buf); {
		rest := buf[pos:]
		if len(rest) < l.nameAt {
			return fmt.Errorf("%s: truncated header at offset %d", l.name, pos)
		}

		reclen := int(binary.NativeEndian.Uint16(rest[l.reclen:]))
		if reclen < l.nameAt || reclen > len(rest) {
			return fmt.Errorf("%s: invalid record length %d at offset %d", l.name, reclen, pos)
		}

		name := rest[l.nameAt:reclen]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}

		rec := direntRecord{
			Ino:  binary.NativeEndian.Uint64(rest[l.ino:]),
			Off:  int64(binary.NativeEndian.Uint64(rest[l.off:])),
			Type: rest[l.typ],
			Name: string(name),
		}
		if !fn(rec) {
			return nil
		}
		pos += reclen
	}
	return nil
}

// typeFromDT maps a d_type tag. DT_UNKNOWN is common on some filesystems
// and means the caller must stat the entry to learn its type.
func typeFromDT(dt uint8) vfs.FileType {
	switch dt {
	case unix.DT_REG:
		return vfs.TypeRegular
	case unix.DT_DIR:
		return vfs.TypeDirectory
	case unix.DT_LNK:
		return vfs.TypeSymlink
	case unix.DT_BLK:
		return vfs.TypeBlockDevice
	case unix.DT_CHR:
		return vfs.TypeCharDevice
	case unix.DT_SOCK:
		return vfs.TypeSocket
	case unix.DT_FIFO:
		return vfs.TypeFIFO
	default:
		return vfs.TypeUnknown
	}
}
