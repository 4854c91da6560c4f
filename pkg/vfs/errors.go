package vfs

import (
	"errors"
	"fmt"
	"syscall"
)

// Error represents a domain error from a filesystem operation.
//
// Errors are constructed once, at the point where a failing native call is
// translated, and returned unchanged to the caller. Protocol handlers map
// Code to their own status vocabulary (e.g., NFS4ERR_NOENT).
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Op is the adapter operation or native call that failed (e.g., "lookup")
	Op string

	// Errno is the native error number, zero when the error did not come
	// from the operating system
	Errno syscall.Errno

	// Err is an optional underlying cause (e.g., ErrNoParent)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	switch {
	case e.Err != nil:
		return msg + ": " + e.Err.Error()
	case e.Errno != 0:
		return fmt.Sprintf("%s (%s)", msg, e.Errno.Error())
	}
	return msg
}

// Unwrap returns the underlying cause, falling back to the errno so that
// errors.Is(err, syscall.ENOENT) keeps working.
func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if e.Errno != 0 {
		return e.Errno
	}
	return nil
}

// ErrorCode represents the category of a filesystem error.
//
// The set is closed: every native failure is folded into one of these
// codes, with ErrCodeServerFault as the catch-all.
type ErrorCode int

const (
	// ErrCodeOK is reported by CodeOf for a nil error
	ErrCodeOK ErrorCode = iota

	// ErrCodeNotFound indicates the named object does not exist
	ErrCodeNotFound

	// ErrCodeNotDirectory indicates a directory was expected
	ErrCodeNotDirectory

	// ErrCodeIsDirectory indicates a non-directory was expected
	ErrCodeIsDirectory

	// ErrCodeIO indicates a low-level I/O failure
	ErrCodeIO

	// ErrCodeNotEmpty indicates a directory still has entries
	ErrCodeNotEmpty

	// ErrCodeAlreadyExists indicates the target name is taken
	ErrCodeAlreadyExists

	// ErrCodeStaleHandle indicates the handle no longer refers to a live
	// object. Terminal: callers should not retry.
	ErrCodeStaleHandle

	// ErrCodeInvalidArgument indicates bad parameters, including malformed handles
	ErrCodeInvalidArgument

	// ErrCodeNotSupported indicates the operation is not supported for
	// this object or by the underlying filesystem
	ErrCodeNotSupported

	// ErrCodeNoDevice indicates no such device or address
	ErrCodeNoDevice

	// ErrCodeNoAttribute indicates a missing extended attribute
	ErrCodeNoAttribute

	// ErrCodeNoSpace indicates the filesystem is out of space or quota
	ErrCodeNoSpace

	// ErrCodePermissionDenied indicates the operating system refused the call
	ErrCodePermissionDenied

	// ErrCodeServerFault is the catch-all for unmapped native errors
	ErrCodeServerFault
)

var codeNames = [...]string{
	ErrCodeOK:               "ok",
	ErrCodeNotFound:         "not found",
	ErrCodeNotDirectory:     "not a directory",
	ErrCodeIsDirectory:      "is a directory",
	ErrCodeIO:               "i/o error",
	ErrCodeNotEmpty:         "directory not empty",
	ErrCodeAlreadyExists:    "already exists",
	ErrCodeStaleHandle:      "stale handle",
	ErrCodeInvalidArgument:  "invalid argument",
	ErrCodeNotSupported:     "not supported",
	ErrCodeNoDevice:         "no such device",
	ErrCodeNoAttribute:      "no such attribute",
	ErrCodeNoSpace:          "no space left",
	ErrCodePermissionDenied: "permission denied",
	ErrCodeServerFault:      "server fault",
}

// String returns a human-readable name for the code.
func (c ErrorCode) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("error code %d", int(c))
}

var (
	// ErrNoParent is returned by ParentOf for the root handle. It is wrapped
	// in an *Error with ErrCodeNotFound; use errors.Is to tell it apart from
	// an ordinary missing entry.
	ErrNoParent = errors.New("no parent above export root")

	// ErrMalformedHandle is returned when handle bytes fail structural
	// validation. Wrapped in an *Error with ErrCodeInvalidArgument.
	ErrMalformedHandle = errors.New("malformed handle")
)

// NewError creates a domain error without a native errno.
func NewError(code ErrorCode, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// CodeOf returns the error category of err.
//
// Errors that are not *Error (context cancellation, programming errors)
// report ErrCodeServerFault; a nil error reports ErrCodeOK.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeServerFault
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
