// Package vfs defines the handle-based operation contract between a file
// serving protocol engine and a storage adapter.
//
// Objects are addressed by opaque Handles rather than paths. Every method
// reports failures as *Error values carrying a closed ErrorCode, so the
// protocol layer can map them to its own status codes without inspecting
// native errors.
//
// Contexts are checked before the adapter issues a native call. Once a
// call reaches the operating system it runs to completion.
package vfs

import "context"

// FileSystem is the operation contract a protocol engine calls into.
//
// Implementations must be safe for concurrent use.
type FileSystem interface {
	// ========================================================================
	// Namespace
	// ========================================================================

	// RootHandle returns the handle of the exported directory.
	RootHandle() Handle

	// Lookup resolves name inside the directory parent.
	Lookup(ctx context.Context, parent Handle, name string) (Handle, error)

	// ParentOf returns the handle of the directory containing h.
	// Returns ErrNoParent (wrapped) for the root handle.
	ParentOf(ctx context.Context, h Handle) (Handle, error)

	// Create creates a non-directory object. Regular files are created
	// exclusively; directories must go through Mkdir.
	Create(ctx context.Context, parent Handle, typ FileType, name string, owner Owner, mode uint32) (Handle, error)

	// Mknod creates a device node, FIFO or socket with explicit device numbers.
	Mknod(ctx context.Context, parent Handle, typ FileType, name string, owner Owner, mode uint32, major, minor uint32) (Handle, error)

	Mkdir(ctx context.Context, parent Handle, name string, owner Owner, mode uint32) (Handle, error)

	// Symlink creates a symbolic link name in parent pointing at target.
	Symlink(ctx context.Context, parent Handle, name, target string, owner Owner) (Handle, error)

	// Link creates a hard link name in dir to the object target.
	Link(ctx context.Context, dir Handle, name string, target Handle) (Handle, error)

	Readlink(ctx context.Context, h Handle) (string, error)

	// Remove unlinks name from parent, choosing rmdir semantics for directories.
	Remove(ctx context.Context, parent Handle, name string) error

	Rename(ctx context.Context, srcDir Handle, srcName string, dstDir Handle, dstName string) error

	// ReadDir returns entries of dir after cookie. Cookie 0 starts from the
	// beginning. maxEntries <= 0 means no limit. Resumption is best-effort
	// if the directory changes between calls.
	ReadDir(ctx context.Context, dir Handle, cookie uint64, maxEntries int, withAttrs bool) (*DirPage, error)

	// ========================================================================
	// Data
	// ========================================================================

	// Read reads into p at offset off. A short count means end of file.
	Read(ctx context.Context, h Handle, p []byte, off int64) (int, error)

	Write(ctx context.Context, h Handle, p []byte, off int64, durability Durability) (WriteResult, error)

	// Commit flushes previously written unstable data to stable storage.
	Commit(ctx context.Context, h Handle, off int64, count int64) error

	// CopyRange copies length bytes (0 = to end of file) from src to dst on
	// a background goroutine. Exactly one result is delivered on the
	// returned channel.
	CopyRange(ctx context.Context, src Handle, srcOff int64, dst Handle, dstOff int64, length int64) <-chan CopyResult

	// ========================================================================
	// Attributes
	// ========================================================================

	GetAttr(ctx context.Context, h Handle) (*Attr, error)
	SetAttr(ctx context.Context, h Handle, attr *SetAttr) error
	StatFS(ctx context.Context) (*FsStat, error)

	// Access returns the subset of mode the caller may exercise.
	Access(ctx context.Context, h Handle, mode uint32) (uint32, error)

	GetACL(ctx context.Context, h Handle) ([]ACE, error)
	SetACL(ctx context.Context, h Handle, acl []ACE) error

	// ========================================================================
	// Extended attributes
	// ========================================================================

	ListXattrs(ctx context.Context, h Handle) ([]string, error)
	GetXattr(ctx context.Context, h Handle, name string) ([]byte, error)
	SetXattr(ctx context.Context, h Handle, name string, value []byte, mode XattrSetMode) error
	RemoveXattr(ctx context.Context, h Handle, name string) error

	// Close releases every native resource held by the adapter.
	Close() error
}
