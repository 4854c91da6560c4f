//go:build linux

package local

import (
	"encoding/binary"

	"github.com/marmos91/handlefs/internal/logger"
	"github.com/marmos91/handlefs/pkg/vfs"
	"golang.org/x/sys/unix"
)

// Handle wire layout, mirroring struct file_handle:
//
//	[0:4]  handle_bytes  uint32, native byte order
//	[4:8]  handle_type   int32, native byte order
//	[8:]   f_handle      handle_bytes opaque bytes
const (
	handleHeaderSize = 8

	// maxHandlePayload is MAX_HANDLE_SZ from linux/exportfs.h
	maxHandlePayload = 128
)

// kernelHandle is a decoded, structurally valid handle.
type kernelHandle struct {
	typ     int32
	payload []byte
}

func (k kernelHandle) fileHandle() unix.FileHandle {
	return unix.NewFileHandle(k.typ, k.payload)
}

// marshalHandle serializes a kernel file handle into its opaque form.
func marshalHandle(fh unix.FileHandle) vfs.Handle {
	payload := fh.Bytes()
	h := make(vfs.Handle, handleHeaderSize+len(payload))
	binary.NativeEndian.PutUint32(h[0:4], uint32(len(payload)))
	binary.NativeEndian.PutUint32(h[4:8], uint32(fh.Type()))
	copy(h[handleHeaderSize:], payload)
	return h
}

// decodeHandle validates handle bytes received from a caller.
//
// The length is checked before the embedded size field is trusted, and the
// size field must account for every remaining byte.
func decodeHandle(h vfs.Handle) (kernelHandle, error) {
	if len(h) < handleHeaderSize {
		logger.Debug("decode handle: %d bytes, below minimum %d", len(h), handleHeaderSize)
		return kernelHandle{}, vfs.NewError(vfs.ErrCodeInvalidArgument, "decode handle", vfs.ErrMalformedHandle)
	}

	size := binary.NativeEndian.Uint32(h[0:4])
	if size == 0 || size > maxHandlePayload || int(size) != len(h)-handleHeaderSize {
		logger.Debug("decode handle: size field %d does not match %d payload bytes", size, len(h)-handleHeaderSize)
		return kernelHandle{}, vfs.NewError(vfs.ErrCodeInvalidArgument, "decode handle", vfs.ErrMalformedHandle)
	}

	return kernelHandle{
		typ:     int32(binary.NativeEndian.Uint32(h[4:8])),
		payload: h[handleHeaderSize:],
	}, nil
}

// encodeHandle asks the kernel for the handle of name relative to dirfd.
// An empty name with unix.AT_EMPTY_PATH yields the handle of dirfd itself.
func encodeHandle(gw Gateway, dirfd int, name string, flags int) (vfs.Handle, error) {
	fh, err := gw.NameToHandleAt(dirfd, name, flags)
	if err != nil {
		return nil, translate("name_to_handle_at", err)
	}
	return marshalHandle(fh), nil
}

// openHandle reopens a previously issued handle. mountfd is any descriptor
// on the exported filesystem, normally the root descriptor.
func openHandle(gw Gateway, mountfd int, h vfs.Handle, flags int) (int, error) {
	kh, err := decodeHandle(h)
	if err != nil {
		return -1, err
	}
	fd, err := gw.OpenByHandleAt(mountfd, kh.fileHandle(), flags|unix.O_CLOEXEC)
	if err != nil {
		return -1, translate("open_by_handle_at", err)
	}
	return fd, nil
}
