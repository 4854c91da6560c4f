//go:build linux

package local

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Gateway is the set of native calls the adapter issues.
//
// Every component of the adapter reaches the kernel through one Gateway
// value passed in at construction, so tests can substitute a fake that
// counts calls and injects errno values. All path arguments are relative
// to the directory descriptor they accompany.
type Gateway interface {
	Open(path string, flags int, mode uint32) (int, error)
	Openat(dirfd int, path string, flags int, mode uint32) (int, error)
	Close(fd int) error

	NameToHandleAt(dirfd int, path string, flags int) (unix.FileHandle, error)
	OpenByHandleAt(mountfd int, handle unix.FileHandle, flags int) (int, error)

	// Statx fills buf with a raw struct statx. buf must be at least as large
	// as the layout in use.
	Statx(dirfd int, path string, flags int, mask int, buf []byte) error
	Fstatfs(fd int, st *unix.Statfs_t) error

	Pread(fd int, p []byte, off int64) (int, error)
	Pwrite(fd int, p []byte, off int64) (int, error)
	Fsync(fd int) error
	Fdatasync(fd int) error
	CopyFileRange(rfd int, roff *int64, wfd int, woff *int64, n int, flags int) (int, error)

	Mkdirat(dirfd int, path string, mode uint32) error
	Mknodat(dirfd int, path string, mode uint32, dev uint64) error
	Unlinkat(dirfd int, path string, flags int) error
	Renameat(olddirfd int, oldpath string, newdirfd int, newpath string) error
	Linkat(olddirfd int, oldpath string, newdirfd int, newpath string, flags int) error
	Symlinkat(target string, dirfd int, path string) error
	Readlinkat(dirfd int, path string, buf []byte) (int, error)
	Getdents(fd int, buf []byte) (int, error)

	Fchownat(dirfd int, path string, uid, gid int, flags int) error
	Fchmod(fd int, mode uint32) error
	Fchmodat(dirfd int, path string, mode uint32, flags int) error
	Ftruncate(fd int, size int64) error
	UtimesNanoAt(dirfd int, path string, ts []unix.Timespec, flags int) error

	Flistxattr(fd int, dest []byte) (int, error)
	Fgetxattr(fd int, name string, dest []byte) (int, error)
	Fsetxattr(fd int, name string, data []byte, flags int) error
	Fremovexattr(fd int, name string) error
}

// UnixGateway issues real system calls through golang.org/x/sys/unix.
type UnixGateway struct{}

var _ Gateway = UnixGateway{}

func (UnixGateway) Open(path string, flags int, mode uint32) (int, error) {
	return unix.Open(path, flags, mode)
}

func (UnixGateway) Openat(dirfd int, path string, flags int, mode uint32) (int, error) {
	return unix.Openat(dirfd, path, flags, mode)
}

func (UnixGateway) Close(fd int) error {
	return unix.Close(fd)
}

func (UnixGateway) NameToHandleAt(dirfd int, path string, flags int) (unix.FileHandle, error) {
	fh, _, err := unix.NameToHandleAt(dirfd, path, flags)
	return fh, err
}

func (UnixGateway) OpenByHandleAt(mountfd int, handle unix.FileHandle, flags int) (int, error) {
	return unix.OpenByHandleAt(mountfd, handle, flags)
}

// Statx issues the raw statx(2) call so the record can be decoded against
// an explicit layout table instead of unix.Statx_t.
func (UnixGateway) Statx(dirfd int, path string, flags int, mask int, buf []byte) error {
	if len(buf) < statxLayoutV1.size {
		return unix.EINVAL
	}
	p, err := unix.BytePtrFromString(path)
	if err != nil {
		return err
	}
	_, _, errno := unix.Syscall6(unix.SYS_STATX,
		uintptr(dirfd),
		uintptr(unsafe.Pointer(p)),
		uintptr(flags),
		uintptr(mask),
		uintptr(unsafe.Pointer(&buf[0])),
		0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (UnixGateway) Fstatfs(fd int, st *unix.Statfs_t) error {
	return unix.Fstatfs(fd, st)
}

func (UnixGateway) Pread(fd int, p []byte, off int64) (int, error) {
	return unix.Pread(fd, p, off)
}

func (UnixGateway) Pwrite(fd int, p []byte, off int64) (int, error) {
	return unix.Pwrite(fd, p, off)
}

func (UnixGateway) Fsync(fd int) error {
	return unix.Fsync(fd)
}

func (UnixGateway) Fdatasync(fd int) error {
	return unix.Fdatasync(fd)
}

func (UnixGateway) CopyFileRange(rfd int, roff *int64, wfd int, woff *int64, n int, flags int) (int, error) {
	return unix.CopyFileRange(rfd, roff, wfd, woff, n, flags)
}

func (UnixGateway) Mkdirat(dirfd int, path string, mode uint32) error {
	return unix.Mkdirat(dirfd, path, mode)
}

func (UnixGateway) Mknodat(dirfd int, path string, mode uint32, dev uint64) error {
	return unix.Mknodat(dirfd, path, mode, int(dev))
}

func (UnixGateway) Unlinkat(dirfd int, path string, flags int) error {
	return unix.Unlinkat(dirfd, path, flags)
}

func (UnixGateway) Renameat(olddirfd int, oldpath string, newdirfd int, newpath string) error {
	return unix.Renameat(olddirfd, oldpath, newdirfd, newpath)
}

func (UnixGateway) Linkat(olddirfd int, oldpath string, newdirfd int, newpath string, flags int) error {
	return unix.Linkat(olddirfd, oldpath, newdirfd, newpath, flags)
}

func (UnixGateway) Symlinkat(target string, dirfd int, path string) error {
	return unix.Symlinkat(target, dirfd, path)
}

func (UnixGateway) Readlinkat(dirfd int, path string, buf []byte) (int, error) {
	return unix.Readlinkat(dirfd, path, buf)
}

func (UnixGateway) Getdents(fd int, buf []byte) (int, error) {
	return unix.Getdents(fd, buf)
}

func (UnixGateway) Fchownat(dirfd int, path string, uid, gid int, flags int) error {
	return unix.Fchownat(dirfd, path, uid, gid, flags)
}

func (UnixGateway) Fchmod(fd int, mode uint32) error {
	return unix.Fchmod(fd, mode)
}

func (UnixGateway) Fchmodat(dirfd int, path string, mode uint32, flags int) error {
	return unix.Fchmodat(dirfd, path, mode, flags)
}

func (UnixGateway) Ftruncate(fd int, size int64) error {
	return unix.Ftruncate(fd, size)
}

func (UnixGateway) UtimesNanoAt(dirfd int, path string, ts []unix.Timespec, flags int) error {
	return unix.UtimesNanoAt(dirfd, path, ts, flags)
}

func (UnixGateway) Flistxattr(fd int, dest []byte) (int, error) {
	return unix.Flistxattr(fd, dest)
}

func (UnixGateway) Fgetxattr(fd int, name string, dest []byte) (int, error) {
	return unix.Fgetxattr(fd, name, dest)
}

func (UnixGateway) Fsetxattr(fd int, name string, data []byte, flags int) error {
	return unix.Fsetxattr(fd, name, data, flags)
}

func (UnixGateway) Fremovexattr(fd int, name string) error {
	return unix.Fremovexattr(fd, name)
}
