// This is a compatibility shim for POSIX-defined errno codes across platforms.
// The syscall package doesn't define all the values we need on all systems,
// particularly things like EMEDIUMTYPE.

package errors

import (
	"fmt"
)

type Errno int

const (
	EOK Errno = iota
	EPERM
	ENOENT
	EIO
	EBUSY
	EEXIST
	EINVAL
	ENOSPC
	EROFS
	ENOTSUP
	EMEDIUMTYPE
)

// errorMessagesByCode must stay a literal. The sentinels below read it during
// variable initialization, before any init() runs.
var errorMessagesByCode = map[Errno]string{
	EPERM:       "Operation not permitted",
	ENOENT:      "No such file or directory",
	EIO:         "Input/output error",
	EBUSY:       "Device or resource busy",
	EEXIST:      "File exists",
	EINVAL:      "Invalid argument",
	ENOSPC:      "No space left on device",
	EROFS:       "Read-only file system",
	ENOTSUP:     "Operation not supported",
	EMEDIUMTYPE: "Wrong medium type",
}

var ErrNotPermitted = New(EPERM)
var ErrNotFound = New(ENOENT)
var ErrIOFailed = New(EIO)
var ErrBusy = New(EBUSY)
var ErrExists = New(EEXIST)
var ErrInvalidArgument = New(EINVAL)
var ErrNoSpaceOnDevice = New(ENOSPC)
var ErrReadOnlyFileSystem = New(EROFS)
var ErrNotSupported = New(ENOTSUP)
var ErrInvalidFileSystem = New(EMEDIUMTYPE)

// ErrDirectoryFull is returned when every slot in the directory table is in
// use. CP/M reports this the same way as running out of blocks.
var ErrDirectoryFull = NewWithMessage(ENOSPC, "no free directory entries")

func StrError(code Errno) string {
	message, ok := errorMessagesByCode[code]
	if ok {
		return message
	}
	return fmt.Sprintf("error %d not recognized.", int(code))
}
