//go:build linux

package local

import (
	"context"
	"time"

	"github.com/marmos91/handlefs/internal/logger"
	"github.com/marmos91/handlefs/pkg/vfs"
	"golang.org/x/sys/unix"
)

// ReadDir returns the entries of dir that follow cookie, in the order the
// kernel reports them.
//
// The cookie is the raw getdents64 d_off of the last entry returned.
// Resumption is best effort: entries added, removed or rehashed between
// calls may be skipped or returned twice. "." and ".." are never returned.
// Entries that disappear while the page is being built are skipped.
//
// Each call reads through a private descriptor opened relative to the
// cached traversal descriptor, so concurrent listings of the same
// directory never share a file position.
func (fs *FS) ReadDir(ctx context.Context, dir vfs.Handle, cookie uint64, maxEntries int, withAttrs bool) (page *vfs.DirPage, err error) {
	defer fs.track("readdir", time.Now(), &err)

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	d, err := fs.traversal.get(dir)
	if err != nil {
		return nil, err
	}
	defer d.release()

	fd, err := fs.gw.Openat(d.fd, ".", unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, translate("openat", err)
	}
	defer fs.closeFd(fd)

	buf := fs.buffers.Get(fs.opts.DirentBufferSize)
	defer fs.buffers.Put(buf)

	page = &vfs.DirPage{Entries: []vfs.DirEntry{}, Cookie: cookie}
	full := false

	for !full {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		n, rerr := fs.gw.Getdents(fd, buf)
		if rerr != nil {
			return nil, translate("getdents64", rerr)
		}
		if n == 0 {
			page.EOF = true
			break
		}

		var entryErr error
		perr := direntLayout64.parse(buf[:n], func(rec direntRecord) bool {
			if rec.Name == "." || rec.Name == ".." || uint64(rec.Off) <= cookie {
				return true
			}
			if maxEntries > 0 && len(page.Entries) >= maxEntries {
				full = true
				return false
			}

			entry, ok, err := fs.direntEntry(d.fd, rec, withAttrs)
			if err != nil {
				entryErr = err
				return false
			}
			if ok {
				page.Entries = append(page.Entries, entry)
			}
			// Advance past vanished entries too, so the next page does not
			// revisit them.
			page.Cookie = uint64(rec.Off)
			return true
		})
		if perr != nil {
			logger.Error("readdir: %v", perr)
			return nil, vfs.NewError(vfs.ErrCodeIO, "getdents64", perr)
		}
		if entryErr != nil {
			return nil, entryErr
		}
	}

	return page, nil
}

// direntEntry resolves the handle and, when asked, the attributes of one
// directory record. ok is false if the entry vanished in the meantime.
func (fs *FS) direntEntry(dirfd int, rec direntRecord, withAttrs bool) (vfs.DirEntry, bool, error) {
	entry := vfs.DirEntry{
		Name:   rec.Name,
		Cookie: uint64(rec.Off),
		Type:   typeFromDT(rec.Type),
	}

	h, err := encodeHandle(fs.gw, dirfd, rec.Name, 0)
	if vfs.IsCode(err, vfs.ErrCodeNotFound) {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	entry.Handle = h

	if withAttrs {
		attr, err := fs.statAt(dirfd, rec.Name, 0)
		if vfs.IsCode(err, vfs.ErrCodeNotFound) {
			return entry, false, nil
		}
		if err != nil {
			return entry, false, err
		}
		entry.Attr = attr
		entry.Type = attr.Type
	}
	return entry, true, nil
}
