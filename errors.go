package sfs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DriverError is the error type returned by every file system operation. All
// errors derive from one of the ErrXxx values below, so callers can test for a
// kind with [errors.Is] regardless of how much context was attached.
type DriverError interface {
	error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type baseSFSError string

const rootError = baseSFSError("")

var ErrAlreadyMounted = rootError.WithMessage("File system already mounted")
var ErrNotMounted = rootError.WithMessage("File system not mounted")
var ErrInvalidMagic = rootError.WithMessage("Wrong medium type: bad magic number")
var ErrSizeMismatch = rootError.WithMessage("Block count doesn't match device")
var ErrCorruptSuperblock = rootError.WithMessage("Superblock needs cleaning")
var ErrNoFreeInode = rootError.WithMessage("No free inodes left on device")
var ErrInvalidInode = rootError.WithMessage("Invalid inode")
var ErrOffsetBeyondEnd = rootError.WithMessage("Offset beyond end of file")
var ErrDiskFull = rootError.WithMessage("No space left on device")
var ErrCorruptInode = rootError.WithMessage("Inode needs cleaning")
var ErrFileTooLarge = rootError.WithMessage("File too large")
var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrIOFailed = rootError.WithMessage("Input/output error")

func (e baseSFSError) Error() string {
	return string(e)
}

func (e baseSFSError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       message,
		originalError: e,
	}
}

func (e baseSFSError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customDriverError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}

// CastToDriverError converts any error into a [DriverError]. Errors that already
// are DriverErrors are returned unmodified, nil stays nil, and anything else
// (typically an I/O failure from the block device) is wrapped in
// [ErrIOFailed].
func CastToDriverError(err error) DriverError {
	if err == nil {
		return nil
	}

	driverErr, ok := err.(DriverError)
	if ok {
		return driverErr
	}
	return ErrIOFailed.Wrap(err)
}
