//go:build linux

package local

import (
	"context"
	"time"

	"github.com/marmos91/handlefs/internal/logger"
	"github.com/marmos91/handlefs/pkg/vfs"
	"golang.org/x/sys/unix"
)

// Lookup resolves name in the directory parent.
//
// "." returns parent itself and ".." is answered by ParentOf, so a lookup
// can never climb above the export root.
func (fs *FS) Lookup(ctx context.Context, parent vfs.Handle, name string) (h vfs.Handle, err error) {
	switch name {
	case ".":
		return parent.Clone(), nil
	case "..":
		return fs.ParentOf(ctx, parent)
	}

	defer fs.track("lookup", time.Now(), &err)

	if err = checkName("lookup", name); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := fs.traversal.get(parent)
	if err != nil {
		return nil, err
	}
	defer dir.release()

	return encodeHandle(fs.gw, dir.fd, name, 0)
}

// ParentOf returns the directory containing h. The root handle has no
// parent inside the export and yields vfs.ErrNoParent.
func (fs *FS) ParentOf(ctx context.Context, h vfs.Handle) (parent vfs.Handle, err error) {
	defer fs.track("parent", time.Now(), &err)

	if h.Equal(fs.root) {
		return nil, vfs.NewError(vfs.ErrCodeNotFound, "parent", vfs.ErrNoParent)
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := fs.traversal.get(h)
	if err != nil {
		return nil, err
	}
	defer dir.release()

	return encodeHandle(fs.gw, dir.fd, "..", 0)
}

// Create creates a regular file exclusively, or a special file through
// Mknod with device number 0:0. The new regular file's descriptor seeds
// the data cache so the first write does not reopen it.
func (fs *FS) Create(ctx context.Context, parent vfs.Handle, typ vfs.FileType, name string, owner vfs.Owner, mode uint32) (h vfs.Handle, err error) {
	switch typ {
	case vfs.TypeRegular:
	case vfs.TypeDirectory:
		return nil, vfs.NewError(vfs.ErrCodeNotSupported, "create", errUseMkdir)
	case vfs.TypeSymlink:
		return nil, vfs.NewError(vfs.ErrCodeInvalidArgument, "create", errUseSymlink)
	default:
		return fs.Mknod(ctx, parent, typ, name, owner, mode, 0, 0)
	}

	defer fs.track("create", time.Now(), &err)

	if err = checkName("create", name); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := fs.traversal.get(parent)
	if err != nil {
		return nil, err
	}
	defer dir.release()

	fd, err := fs.gw.Openat(dir.fd, name, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_NOFOLLOW|unix.O_CLOEXEC, mode&0o7777)
	if err != nil {
		return nil, translate("openat", err)
	}

	if err = fs.gw.Fchownat(fd, "", int(owner.UID), int(owner.GID), unix.AT_EMPTY_PATH); err != nil {
		fs.closeFd(fd)
		return nil, translate("fchownat", err)
	}

	h, err = encodeHandle(fs.gw, fd, "", unix.AT_EMPTY_PATH)
	if err != nil {
		fs.closeFd(fd)
		return nil, err
	}

	fs.data.put(h, fd)
	logger.Debug("create: %q (%d bytes handle)", name, len(h))
	return h, nil
}

// Mknod creates a device node, FIFO or socket.
func (fs *FS) Mknod(ctx context.Context, parent vfs.Handle, typ vfs.FileType, name string, owner vfs.Owner, mode uint32, major, minor uint32) (h vfs.Handle, err error) {
	defer fs.track("mknod", time.Now(), &err)

	ifmt, ok := modeFromType(typ)
	if !ok || typ == vfs.TypeRegular {
		return nil, vfs.NewError(vfs.ErrCodeInvalidArgument, "mknod", errBadNodeType)
	}
	if err = checkName("mknod", name); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := fs.traversal.get(parent)
	if err != nil {
		return nil, err
	}
	defer dir.release()

	if err = fs.gw.Mknodat(dir.fd, name, ifmt|(mode&0o7777), unix.Mkdev(major, minor)); err != nil {
		return nil, translate("mknodat", err)
	}
	if err = fs.gw.Fchownat(dir.fd, name, int(owner.UID), int(owner.GID), unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return nil, translate("fchownat", err)
	}

	return encodeHandle(fs.gw, dir.fd, name, 0)
}

// Mkdir creates a directory and seeds the traversal cache with it.
func (fs *FS) Mkdir(ctx context.Context, parent vfs.Handle, name string, owner vfs.Owner, mode uint32) (h vfs.Handle, err error) {
	defer fs.track("mkdir", time.Now(), &err)

	if err = checkName("mkdir", name); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := fs.traversal.get(parent)
	if err != nil {
		return nil, err
	}
	defer dir.release()

	if err = fs.gw.Mkdirat(dir.fd, name, mode&0o7777); err != nil {
		return nil, translate("mkdirat", err)
	}

	h, err = encodeHandle(fs.gw, dir.fd, name, 0)
	if err != nil {
		return nil, err
	}

	fd, err := openHandle(fs.gw, fs.rootFd, h, traversalOpenFlags)
	if err != nil {
		return nil, err
	}
	if err = fs.gw.Fchownat(fd, "", int(owner.UID), int(owner.GID), unix.AT_EMPTY_PATH); err != nil {
		fs.closeFd(fd)
		return nil, translate("fchownat", err)
	}

	fs.traversal.put(h, fd)
	return h, nil
}

// Symlink creates name in parent pointing at target. Symlinks carry no
// permission bits of their own, so only ownership is applied.
func (fs *FS) Symlink(ctx context.Context, parent vfs.Handle, name, target string, owner vfs.Owner) (h vfs.Handle, err error) {
	defer fs.track("symlink", time.Now(), &err)

	if err = checkName("symlink", name); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := fs.traversal.get(parent)
	if err != nil {
		return nil, err
	}
	defer dir.release()

	if err = fs.gw.Symlinkat(target, dir.fd, name); err != nil {
		return nil, translate("symlinkat", err)
	}
	if err = fs.gw.Fchownat(dir.fd, name, int(owner.UID), int(owner.GID), unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return nil, translate("fchownat", err)
	}

	return encodeHandle(fs.gw, dir.fd, name, 0)
}

// Link creates a hard link name in dir to target and returns target's
// handle, which is unchanged by linking.
func (fs *FS) Link(ctx context.Context, dir vfs.Handle, name string, target vfs.Handle) (h vfs.Handle, err error) {
	defer fs.track("link", time.Now(), &err)

	if err = checkName("link", name); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	d, err := fs.traversal.get(dir)
	if err != nil {
		return nil, err
	}
	defer d.release()

	fd, err := openHandle(fs.gw, fs.rootFd, target, pathOpenFlags)
	if err != nil {
		return nil, err
	}
	defer fs.closeFd(fd)

	if err = fs.gw.Linkat(fd, "", d.fd, name, unix.AT_EMPTY_PATH); err != nil {
		return nil, translate("linkat", err)
	}

	return encodeHandle(fs.gw, d.fd, name, 0)
}

// Readlink returns the target of the symbolic link h.
func (fs *FS) Readlink(ctx context.Context, h vfs.Handle) (target string, err error) {
	defer fs.track("readlink", time.Now(), &err)

	if err = ctx.Err(); err != nil {
		return "", err
	}

	fd, err := openHandle(fs.gw, fs.rootFd, h, pathOpenFlags)
	if err != nil {
		return "", err
	}
	defer fs.closeFd(fd)

	buf := fs.buffers.Get(unix.PathMax)
	defer fs.buffers.Put(buf)

	n, err := fs.gw.Readlinkat(fd, "", buf)
	if err != nil {
		return "", translate("readlinkat", err)
	}
	return string(buf[:n]), nil
}

// Remove unlinks name from parent and invalidates any cached descriptor
// for the removed object. Descriptors already borrowed by in-flight calls
// stay valid until released.
func (fs *FS) Remove(ctx context.Context, parent vfs.Handle, name string) (err error) {
	defer fs.track("remove", time.Now(), &err)

	if err = checkName("remove", name); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	dir, err := fs.traversal.get(parent)
	if err != nil {
		return err
	}
	defer dir.release()

	target, err := encodeHandle(fs.gw, dir.fd, name, 0)
	if err != nil {
		return err
	}
	attr, err := fs.statAt(dir.fd, name, 0)
	if err != nil {
		return err
	}

	flags := 0
	if attr.IsDir() {
		flags = unix.AT_REMOVEDIR
	}
	if err = fs.gw.Unlinkat(dir.fd, name, flags); err != nil {
		return translate("unlinkat", err)
	}

	fs.data.invalidate(target)
	fs.traversal.invalidate(target)
	return nil
}

// Rename moves srcName in srcDir to dstName in dstDir. If dstName already
// existed, the replaced object's cached descriptors are invalidated.
func (fs *FS) Rename(ctx context.Context, srcDir vfs.Handle, srcName string, dstDir vfs.Handle, dstName string) (err error) {
	defer fs.track("rename", time.Now(), &err)

	if err = checkName("rename", srcName); err != nil {
		return err
	}
	if err = checkName("rename", dstName); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	src, err := fs.traversal.get(srcDir)
	if err != nil {
		return err
	}
	defer src.release()

	dst, err := fs.traversal.get(dstDir)
	if err != nil {
		return err
	}
	defer dst.release()

	// Best effort: the destination may not exist.
	replaced, _ := encodeHandle(fs.gw, dst.fd, dstName, 0)

	if err = fs.gw.Renameat(src.fd, srcName, dst.fd, dstName); err != nil {
		return translate("renameat", err)
	}

	if replaced != nil {
		fs.data.invalidate(replaced)
		fs.traversal.invalidate(replaced)
	}
	return nil
}
