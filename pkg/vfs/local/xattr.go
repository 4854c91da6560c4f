//go:build linux

package local

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/marmos91/handlefs/internal/bufpool"
	"github.com/marmos91/handlefs/pkg/vfs"
	"golang.org/x/sys/unix"
)

// xattrMax is XATTR_SIZE_MAX and XATTR_LIST_MAX.
const xattrMax = bufpool.MediumSize

// ListXattrs returns the names in the configured namespace with the
// prefix removed.
func (fs *FS) ListXattrs(ctx context.Context, h vfs.Handle) (names []string, err error) {
	defer fs.track("listxattr", time.Now(), &err)

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	err = fs.withXattrFd(h, func(fd int) error {
		buf := fs.buffers.Get(xattrMax)
		defer fs.buffers.Put(buf)

		n, err := fs.gw.Flistxattr(fd, buf)
		if err != nil {
			return translate("flistxattr", err)
		}

		names = []string{}
		for _, raw := range bytes.Split(buf[:n], []byte{0}) {
			name, ok := strings.CutPrefix(string(raw), fs.opts.XattrPrefix)
			if ok && name != "" {
				names = append(names, name)
			}
		}
		return nil
	})
	return names, err
}

// GetXattr returns the value of name.
func (fs *FS) GetXattr(ctx context.Context, h vfs.Handle, name string) (value []byte, err error) {
	defer fs.track("getxattr", time.Now(), &err)

	attrName, err := fs.xattrName("getxattr", name)
	if err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	err = fs.withXattrFd(h, func(fd int) error {
		buf := fs.buffers.Get(xattrMax)
		defer fs.buffers.Put(buf)

		n, err := fs.gw.Fgetxattr(fd, attrName, buf)
		if err != nil {
			return translate("fgetxattr", err)
		}
		value = bytes.Clone(buf[:n])
		return nil
	})
	return value, err
}

// SetXattr stores value under name.
func (fs *FS) SetXattr(ctx context.Context, h vfs.Handle, name string, value []byte, mode vfs.XattrSetMode) (err error) {
	defer fs.track("setxattr", time.Now(), &err)

	attrName, err := fs.xattrName("setxattr", name)
	if err != nil {
		return err
	}

	var flags int
	switch mode {
	case vfs.XattrEither:
	case vfs.XattrCreate:
		flags = unix.XATTR_CREATE
	case vfs.XattrReplace:
		flags = unix.XATTR_REPLACE
	default:
		return vfs.NewError(vfs.ErrCodeInvalidArgument, "setxattr", nil)
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	return fs.withXattrFd(h, func(fd int) error {
		return translate("fsetxattr", fs.gw.Fsetxattr(fd, attrName, value, flags))
	})
}

// RemoveXattr deletes name.
func (fs *FS) RemoveXattr(ctx context.Context, h vfs.Handle, name string) (err error) {
	defer fs.track("removexattr", time.Now(), &err)

	attrName, err := fs.xattrName("removexattr", name)
	if err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	return fs.withXattrFd(h, func(fd int) error {
		return translate("fremovexattr", fs.gw.Fremovexattr(fd, attrName))
	})
}

func (fs *FS) xattrName(op, name string) (string, error) {
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return "", vfs.NewError(vfs.ErrCodeInvalidArgument, op, nil)
	}
	if strings.HasPrefix(name, fs.opts.XattrPrefix) {
		return name, nil
	}
	return fs.opts.XattrPrefix + name, nil
}

// withXattrFd runs fn with a descriptor that accepts f*xattr calls.
//
// O_PATH descriptors do not, so a resident cached descriptor is used when
// available and otherwise a read-only one is opened. Only regular files and
// directories carry user extended attributes; anything else is rejected
// before it is opened.
func (fs *FS) withXattrFd(h vfs.Handle, fn func(fd int) error) error {
	if d, ok := fs.traversal.peek(h); ok {
		defer d.release()
		return fn(d.fd)
	}
	if d, ok := fs.data.peek(h); ok {
		defer d.release()
		return fn(d.fd)
	}

	attr, err := fs.getAttr(h)
	if err != nil {
		return err
	}
	if attr.Type != vfs.TypeRegular && attr.Type != vfs.TypeDirectory {
		return vfs.NewError(vfs.ErrCodeNotSupported, "xattr", nil)
	}

	fd, err := openHandle(fs.gw, fs.rootFd, h, unix.O_RDONLY|unix.O_NOFOLLOW)
	if err != nil {
		return err
	}
	defer fs.closeFd(fd)
	return fn(fd)
}
