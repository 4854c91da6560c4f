//go:build linux

package local

import (
	"context"
	"time"

	"github.com/marmos91/handlefs/pkg/vfs"
)

// Read reads into p at off through the data descriptor cache.
//
// Reads are positioned; the descriptor's file offset is shared by all
// callers and never used. A short count means end of file.
func (fs *FS) Read(ctx context.Context, h vfs.Handle, p []byte, off int64) (n int, err error) {
	defer fs.track("read", time.Now(), &err)

	if off < 0 {
		return 0, vfs.NewError(vfs.ErrCodeInvalidArgument, "read", nil)
	}
	if err = ctx.Err(); err != nil {
		return 0, err
	}

	d, err := fs.data.get(h)
	if err != nil {
		return 0, err
	}
	defer d.release()

	n, err = fs.gw.Pread(d.fd, p, off)
	if err != nil {
		return 0, translate("pread", err)
	}
	fs.metrics.RecordBytes("read", int64(n))
	return n, nil
}

// Write writes all of p at off, then flushes according to durability.
func (fs *FS) Write(ctx context.Context, h vfs.Handle, p []byte, off int64, durability vfs.Durability) (res vfs.WriteResult, err error) {
	defer fs.track("write", time.Now(), &err)

	if off < 0 {
		return res, vfs.NewError(vfs.ErrCodeInvalidArgument, "write", nil)
	}
	if err = ctx.Err(); err != nil {
		return res, err
	}

	d, err := fs.data.get(h)
	if err != nil {
		return res, err
	}
	defer d.release()

	for res.Count < len(p) {
		n, werr := fs.gw.Pwrite(d.fd, p[res.Count:], off+int64(res.Count))
		if werr != nil {
			return res, translate("pwrite", werr)
		}
		if n == 0 {
			return res, vfs.NewError(vfs.ErrCodeIO, "pwrite", nil)
		}
		res.Count += n
	}
	fs.metrics.RecordBytes("write", int64(res.Count))

	switch durability {
	case vfs.DataSync:
		if err = fs.gw.Fdatasync(d.fd); err != nil {
			return res, translate("fdatasync", err)
		}
	case vfs.FileSync:
		if err = fs.gw.Fsync(d.fd); err != nil {
			return res, translate("fsync", err)
		}
	}
	res.Committed = durability
	return res, nil
}

// Commit flushes data written with vfs.Unstable. The whole file is
// flushed regardless of the range.
func (fs *FS) Commit(ctx context.Context, h vfs.Handle, off int64, count int64) (err error) {
	defer fs.track("commit", time.Now(), &err)

	if err = ctx.Err(); err != nil {
		return err
	}

	d, err := fs.data.get(h)
	if err != nil {
		return err
	}
	defer d.release()

	return translate("fsync", fs.gw.Fsync(d.fd))
}
