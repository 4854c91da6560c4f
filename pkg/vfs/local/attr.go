//go:build linux

package local

import (
	"context"
	"time"

	"github.com/marmos91/handlefs/pkg/vfs"
	"golang.org/x/sys/unix"
)

// GetAttr returns a fresh attribute snapshot of h. Symlinks are reported
// as themselves, never followed.
func (fs *FS) GetAttr(ctx context.Context, h vfs.Handle) (attr *vfs.Attr, err error) {
	defer fs.track("getattr", time.Now(), &err)

	if err = ctx.Err(); err != nil {
		return nil, err
	}
	return fs.getAttr(h)
}

func (fs *FS) getAttr(h vfs.Handle) (*vfs.Attr, error) {
	var attr *vfs.Attr
	err := fs.withPathFd(h, func(fd int) error {
		var err error
		attr, err = fs.statAt(fd, "", unix.AT_EMPTY_PATH)
		return err
	})
	return attr, err
}

// SetAttr applies the non-nil fields of sa.
//
// The object is opened with the least access the change needs: read-write
// only for a size change, O_PATH for anything that is not a regular file or
// directory so FIFOs and devices are never opened for I/O. Mode and times
// are skipped for symlinks; a size change on a symlink is rejected.
func (fs *FS) SetAttr(ctx context.Context, h vfs.Handle, sa *vfs.SetAttr) (err error) {
	defer fs.track("setattr", time.Now(), &err)

	if sa.IsEmpty() {
		return nil
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	cur, err := fs.getAttr(h)
	if err != nil {
		return err
	}

	symlink := cur.Type == vfs.TypeSymlink
	flags := pathOpenFlags
	switch {
	case sa.Size != nil && cur.Type == vfs.TypeDirectory:
		return vfs.NewError(vfs.ErrCodeIsDirectory, "setattr", nil)
	case sa.Size != nil && cur.Type != vfs.TypeRegular:
		return vfs.NewError(vfs.ErrCodeInvalidArgument, "setattr", errSizeOnSpecial)
	case sa.Size != nil:
		flags = unix.O_RDWR | unix.O_NOFOLLOW
	case cur.Type == vfs.TypeRegular || cur.Type == vfs.TypeDirectory:
		flags = unix.O_RDONLY | unix.O_NOFOLLOW
	}

	fd, err := openHandle(fs.gw, fs.rootFd, h, flags)
	if err != nil {
		return err
	}
	defer fs.closeFd(fd)

	if sa.UID != nil || sa.GID != nil {
		uid, gid := -1, -1
		if sa.UID != nil {
			uid = int(*sa.UID)
		}
		if sa.GID != nil {
			gid = int(*sa.GID)
		}
		if err = fs.gw.Fchownat(fd, "", uid, gid, unix.AT_EMPTY_PATH); err != nil {
			return translate("fchownat", err)
		}
	}

	if sa.Mode != nil && !symlink {
		mode := *sa.Mode & 0o7777
		if flags&unix.O_PATH != 0 {
			err = fs.gw.Fchmodat(unix.AT_FDCWD, procFdPath(fd), mode, 0)
		} else {
			err = fs.gw.Fchmod(fd, mode)
		}
		if err != nil {
			return translate("fchmod", err)
		}
	}

	if sa.Size != nil {
		if err = fs.gw.Ftruncate(fd, int64(*sa.Size)); err != nil {
			return translate("ftruncate", err)
		}
	}

	if (sa.Atime != nil || sa.Mtime != nil) && !symlink {
		ts := []unix.Timespec{
			{Nsec: unix.UTIME_OMIT},
			{Nsec: unix.UTIME_OMIT},
		}
		if sa.Atime != nil {
			ts[0] = unix.NsecToTimespec(sa.Atime.UnixNano())
		}
		if sa.Mtime != nil {
			ts[1] = unix.NsecToTimespec(sa.Mtime.UnixNano())
		}
		if err = fs.gw.UtimesNanoAt(unix.AT_FDCWD, procFdPath(fd), ts, 0); err != nil {
			return translate("utimensat", err)
		}
	}

	return nil
}

// StatFS reports usage of the filesystem holding the export.
func (fs *FS) StatFS(ctx context.Context) (st *vfs.FsStat, err error) {
	defer fs.track("statfs", time.Now(), &err)

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	var raw unix.Statfs_t
	if err = fs.gw.Fstatfs(fs.rootFd, &raw); err != nil {
		return nil, translate("fstatfs", err)
	}

	unit := uint64(raw.Frsize)
	if unit == 0 {
		unit = uint64(raw.Bsize)
	}
	return &vfs.FsStat{
		TotalBytes: raw.Blocks * unit,
		FreeBytes:  raw.Bfree * unit,
		AvailBytes: raw.Bavail * unit,
		TotalFiles: raw.Files,
		FreeFiles:  raw.Ffree,
	}, nil
}

// Access grants every requested bit. Authorization is the caller's job;
// the handle is only checked for structural validity.
func (fs *FS) Access(ctx context.Context, h vfs.Handle, mode uint32) (uint32, error) {
	if _, err := decodeHandle(h); err != nil {
		return 0, err
	}
	return mode, nil
}

// GetACL returns an empty ACL. The local store keeps no ACLs.
func (fs *FS) GetACL(ctx context.Context, h vfs.Handle) ([]vfs.ACE, error) {
	return []vfs.ACE{}, nil
}

// SetACL accepts and discards acl.
func (fs *FS) SetACL(ctx context.Context, h vfs.Handle, acl []vfs.ACE) error {
	return nil
}
