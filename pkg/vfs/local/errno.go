//go:build linux

package local

import (
	"errors"

	"github.com/marmos91/handlefs/internal/logger"
	"github.com/marmos91/handlefs/pkg/vfs"
	"golang.org/x/sys/unix"
)

// errnoCodes maps native error numbers to domain error codes.
// Anything missing here becomes ErrCodeServerFault and is logged.
var errnoCodes = map[unix.Errno]vfs.ErrorCode{
	unix.ENOENT:       vfs.ErrCodeNotFound,
	unix.ENOTDIR:      vfs.ErrCodeNotDirectory,
	unix.EISDIR:       vfs.ErrCodeIsDirectory,
	unix.EIO:          vfs.ErrCodeIO,
	unix.ENOTEMPTY:    vfs.ErrCodeNotEmpty,
	unix.EEXIST:       vfs.ErrCodeAlreadyExists,
	unix.ESTALE:       vfs.ErrCodeStaleHandle,
	unix.EINVAL:       vfs.ErrCodeInvalidArgument,
	unix.ENOTSUP:      vfs.ErrCodeNotSupported,
	unix.ENXIO:        vfs.ErrCodeNoDevice,
	unix.ENODATA:      vfs.ErrCodeNoAttribute,
	unix.ENOSPC:       vfs.ErrCodeNoSpace,
	unix.EPERM:        vfs.ErrCodePermissionDenied,
	unix.EACCES:       vfs.ErrCodePermissionDenied,
	unix.EDQUOT:       vfs.ErrCodeNoSpace,
	unix.ENAMETOOLONG: vfs.ErrCodeInvalidArgument,
	unix.ELOOP:        vfs.ErrCodeInvalidArgument,
}

// translate converts the result of a native call into a domain error.
//
// It must be called directly on the error returned by the call it checks.
// A nil error or a zero errno means success.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var errno unix.Errno
	if !errors.As(err, &errno) {
		logger.Error("%s: non-errno failure: %v", op, err)
		return &vfs.Error{Code: vfs.ErrCodeServerFault, Op: op, Err: err}
	}
	if errno == 0 {
		return nil
	}

	code, ok := errnoCodes[errno]
	if !ok {
		logger.Error("%s: unmapped errno %s (%d)", op, unix.ErrnoName(errno), int(errno))
		code = vfs.ErrCodeServerFault
	}
	return &vfs.Error{Code: code, Op: op, Errno: errno}
}

// unmappedErrno returns the errno name of a server fault produced by
// translate, or "" for any other error.
func unmappedErrno(err error) string {
	var e *vfs.Error
	if !errors.As(err, &e) || e.Code != vfs.ErrCodeServerFault || e.Errno == 0 {
		return ""
	}
	if name := unix.ErrnoName(e.Errno); name != "" {
		return name
	}
	return "unknown"
}
