//go:build linux

package local

import (
	"context"
	"time"

	"github.com/marmos91/handlefs/internal/logger"
	"github.com/marmos91/handlefs/pkg/vfs"
)

// CopyRange copies length bytes from src at srcOff to dst at dstOff with
// copy_file_range(2). A length of zero copies up to the end of src.
//
// Both data descriptors are borrowed before CopyRange returns, so a handle
// error is reported without starting the copy. The copy itself runs on a
// background goroutine, bounded by MaxConcurrentCopies and paced by
// CopyBandwidth. Exactly one CopyResult is delivered on the returned
// channel, which is then closed. Cancelling ctx stops the copy between
// chunks.
func (fs *FS) CopyRange(ctx context.Context, src vfs.Handle, srcOff int64, dst vfs.Handle, dstOff int64, length int64) <-chan vfs.CopyResult {
	result := make(chan vfs.CopyResult, 1)
	fail := func(err error) <-chan vfs.CopyResult {
		fs.metrics.RecordOperation("copy", 0, err)
		result <- vfs.CopyResult{Err: err}
		close(result)
		return result
	}

	if srcOff < 0 || dstOff < 0 || length < 0 {
		return fail(vfs.NewError(vfs.ErrCodeInvalidArgument, "copy", nil))
	}
	if fs.closed.Load() {
		return fail(vfs.NewError(vfs.ErrCodeServerFault, "copy", errClosed))
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	in, err := fs.data.get(src)
	if err != nil {
		return fail(err)
	}
	out, err := fs.data.get(dst)
	if err != nil {
		in.release()
		return fail(err)
	}

	fs.copies.Add(1)
	go func() {
		defer fs.copies.Done()
		defer in.release()
		defer out.release()

		start := time.Now()
		copied, err := fs.copyLoop(ctx, in.fd, srcOff, out.fd, dstOff, length)
		fs.track("copy", start, &err)
		fs.metrics.RecordBytes("copy", copied)
		if err != nil {
			logger.Debug("copy: stopped after %d bytes: %v", copied, err)
		}

		result <- vfs.CopyResult{Copied: copied, Err: err}
		close(result)
	}()

	return result
}

func (fs *FS) copyLoop(ctx context.Context, in int, inOff int64, out int, outOff int64, length int64) (int64, error) {
	if err := fs.copySlots.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer fs.copySlots.Release(1)

	var copied int64
	for length == 0 || copied < length {
		chunk := fs.opts.CopyChunkSize
		if length > 0 {
			chunk = min(chunk, length-copied)
		}
		if err := fs.copyLimiter.WaitN(ctx, int(chunk)); err != nil {
			return copied, err
		}

		n, err := fs.gw.CopyFileRange(in, &inOff, out, &outOff, int(chunk), 0)
		if err != nil {
			return copied, translate("copy_file_range", err)
		}
		if n == 0 {
			break
		}
		copied += int64(n)
	}
	return copied, nil
}
