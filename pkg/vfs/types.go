package vfs

import (
	"bytes"
	"time"
)

// Handle is an opaque, location-independent identity for a filesystem object.
//
// Handles are issued by the adapter and must be treated as uninterpreted
// bytes by callers. Two handles refer to the same object iff their bytes
// are equal.
type Handle []byte

// Equal reports whether two handles carry the same bytes.
func (h Handle) Equal(other Handle) bool {
	return bytes.Equal(h, other)
}

// Key returns the handle bytes as a string, for use as a map key.
func (h Handle) Key() string {
	return string(h)
}

// Clone returns a copy that does not alias h.
func (h Handle) Clone() Handle {
	return bytes.Clone(h)
}

// FileType represents the type of a filesystem object.
type FileType int

const (
	// TypeUnknown is reported when the kernel does not disclose the type
	TypeUnknown FileType = iota
	TypeRegular
	TypeDirectory
	TypeSymlink
	TypeBlockDevice
	TypeCharDevice
	TypeSocket
	TypeFIFO
)

func (t FileType) String() string {
	switch t {
	case TypeRegular:
		return "regular"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	case TypeBlockDevice:
		return "block-device"
	case TypeCharDevice:
		return "char-device"
	case TypeSocket:
		return "socket"
	case TypeFIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// Attr is a point-in-time snapshot of an object's metadata.
//
// Attr values are produced fresh by every GetAttr call and are never cached.
// Timestamps are milliseconds since the Unix epoch.
type Attr struct {
	// Type is the object type
	Type FileType

	// Mode holds the permission bits (including setuid/setgid/sticky), 0o7777
	Mode uint32

	// Nlink is the number of hard links
	Nlink uint32

	UID uint32
	GID uint32

	// Size is the logical size in bytes (link target length for symlinks)
	Size uint64

	// Blocks is the allocated size in 512-byte units
	Blocks uint64

	// BlockSize is the preferred I/O size
	BlockSize uint32

	// Ino is the inode number, unique within Dev
	Ino uint64

	// Dev identifies the filesystem holding the object
	Dev uint64

	// Rdev is the device number for block and character devices
	Rdev uint64

	Atime int64
	Mtime int64
	Ctime int64

	// Btime is the creation time, zero when the filesystem does not report it
	Btime int64

	// Generation changes whenever data or metadata changes; it is the later
	// of Mtime and Ctime
	Generation int64
}

// ModTime returns Mtime as a time.Time.
func (a *Attr) ModTime() time.Time {
	return time.UnixMilli(a.Mtime)
}

// IsDir reports whether the attributes describe a directory.
func (a *Attr) IsDir() bool {
	return a.Type == TypeDirectory
}

// SetAttr specifies which attributes to change.
//
// Only non-nil fields are applied. This mirrors the NFS SETATTR and
// sattr4 semantics where each attribute is individually optional.
type SetAttr struct {
	// Mode sets the permission bits. Ignored for symlinks.
	Mode *uint32

	UID *uint32
	GID *uint32

	// Size truncates or extends a regular file. Rejected for symlinks.
	Size *uint64

	Atime *time.Time
	Mtime *time.Time
}

// IsEmpty reports whether no attribute is requested.
func (s *SetAttr) IsEmpty() bool {
	return s == nil || (s.Mode == nil && s.UID == nil && s.GID == nil &&
		s.Size == nil && s.Atime == nil && s.Mtime == nil)
}

// Owner is the ownership applied to newly created objects.
type Owner struct {
	UID uint32
	GID uint32
}

// DirEntry is one entry returned by ReadDir.
type DirEntry struct {
	Name string

	// Cookie resumes enumeration right after this entry
	Cookie uint64

	// Type is the type reported by the directory record, TypeUnknown on
	// filesystems that do not fill it in
	Type FileType

	Handle Handle

	// Attr is populated only when requested
	Attr *Attr
}

// DirPage is one page of a directory enumeration.
type DirPage struct {
	Entries []DirEntry

	// Cookie is the value to pass to the next ReadDir call
	Cookie uint64

	// EOF is true when no entries remain after this page
	EOF bool
}

// Durability is the stability level a write must reach before it returns.
type Durability int

const (
	// Unstable returns as soon as the data is in the page cache
	Unstable Durability = iota

	// DataSync flushes file data and the metadata needed to read it back
	DataSync

	// FileSync flushes data and all metadata
	FileSync
)

func (d Durability) String() string {
	switch d {
	case Unstable:
		return "unstable"
	case DataSync:
		return "data-sync"
	case FileSync:
		return "file-sync"
	default:
		return "unknown"
	}
}

// WriteResult reports the outcome of a write.
type WriteResult struct {
	// Count is the number of bytes written
	Count int

	// Committed is the durability actually reached
	Committed Durability
}

// FsStat is a snapshot of filesystem usage.
type FsStat struct {
	TotalBytes uint64
	FreeBytes  uint64

	// AvailBytes is free space available to unprivileged users
	AvailBytes uint64

	TotalFiles uint64
	FreeFiles  uint64
}

// UsedBytes returns the number of bytes in use.
func (s *FsStat) UsedBytes() uint64 {
	return s.TotalBytes - s.FreeBytes
}

// UsedFiles returns the number of inodes in use.
func (s *FsStat) UsedFiles() uint64 {
	return s.TotalFiles - s.FreeFiles
}

// XattrSetMode controls SetXattr behavior when the attribute exists or not.
type XattrSetMode int

const (
	// XattrEither creates or replaces
	XattrEither XattrSetMode = iota

	// XattrCreate fails with ErrCodeAlreadyExists if the attribute exists
	XattrCreate

	// XattrReplace fails with ErrCodeNoAttribute if the attribute is missing
	XattrReplace
)

// ACE is an NFSv4-style access control entry.
type ACE struct {
	Type       uint32
	Flags      uint32
	AccessMask uint32
	Who        string
}

// CopyResult is delivered once a CopyRange completes.
type CopyResult struct {
	// Copied is the number of bytes copied before completion or failure
	Copied int64

	Err error
}
